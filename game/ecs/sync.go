package ecs

import "sort"

// Delta describes every entity change since the previous delta. A client
// holding BaseSeq can apply it to arrive at Seq.
type Delta struct {
	Seq     uint64        `json:"seq"`
	BaseSeq uint64        `json:"base_seq"`
	Created []EntityState `json:"created,omitempty"`
	Updated []EntityState `json:"updated,omitempty"`
	Removed []EntityID    `json:"removed,omitempty"`
}

// Snapshot is the full world state used to bootstrap a new client.
type Snapshot struct {
	Seq      uint64        `json:"seq"`
	Entities []EntityState `json:"entities"`
}

// SyncSystem turns the world's accumulated change flags into deltas and
// snapshots for the network layer.
type SyncSystem struct {
	world *World
	seq   uint64
}

// NewSyncSystem creates a sync system bound to one world.
func NewSyncSystem(w *World) *SyncSystem {
	return &SyncSystem{world: w}
}

// Seq returns the sequence number of the most recently produced delta.
func (s *SyncSystem) Seq() uint64 {
	return s.seq
}

// Delta drains the world's change flags into a new delta. An empty delta
// (no changes) keeps the sequence number unchanged.
func (s *SyncSystem) Delta() Delta {
	w := s.world

	d := Delta{BaseSeq: s.seq}

	for _, id := range sortedIDs(w.created) {
		d.Created = append(d.Created, w.state(id))
	}
	for _, id := range sortedIDs(w.dirty) {
		d.Updated = append(d.Updated, w.state(id))
	}
	d.Removed = sortedIDs(w.removed)

	if len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0 {
		d.Seq = s.seq
		return d
	}

	s.seq++
	d.Seq = s.seq

	w.created = make(map[EntityID]bool)
	w.dirty = make(map[EntityID]bool)
	w.removed = make(map[EntityID]bool)
	return d
}

// Snapshot returns the complete entity list at the current sequence point.
func (s *SyncSystem) Snapshot() Snapshot {
	w := s.world
	snap := Snapshot{Seq: s.seq, Entities: make([]EntityState, 0, len(w.alive))}
	for _, id := range w.Entities() {
		snap.Entities = append(snap.Entities, w.state(id))
	}
	return snap
}

func sortedIDs(set map[EntityID]bool) []EntityID {
	if len(set) == 0 {
		return nil
	}
	ids := make([]EntityID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
