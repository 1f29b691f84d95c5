package ecs

import (
	"sort"
	"time"
)

// System is a per-tick behavior run against the world.
type System interface {
	Update(dt time.Duration, w *World)
	Priority() int
}

// World is a minimal entity-component store. It is not safe for concurrent
// use; the owning session serializes access.
type World struct {
	nextID      EntityID
	alive       map[EntityID]bool
	transforms  map[EntityID]*Transform
	movements   map[EntityID]*Movement
	appearances map[EntityID]*Appearance

	systems []System

	created map[EntityID]bool
	dirty   map[EntityID]bool
	removed map[EntityID]bool
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		alive:       make(map[EntityID]bool),
		transforms:  make(map[EntityID]*Transform),
		movements:   make(map[EntityID]*Movement),
		appearances: make(map[EntityID]*Appearance),
		created:     make(map[EntityID]bool),
		dirty:       make(map[EntityID]bool),
		removed:     make(map[EntityID]bool),
	}
}

// CreateEntity allocates a fresh entity id.
func (w *World) CreateEntity() EntityID {
	w.nextID++
	id := w.nextID
	w.alive[id] = true
	w.created[id] = true
	return id
}

// DestroyEntity removes an entity and all its components. It returns false
// for unknown or already destroyed entities.
func (w *World) DestroyEntity(id EntityID) bool {
	if !w.alive[id] {
		return false
	}
	delete(w.alive, id)
	delete(w.transforms, id)
	delete(w.movements, id)
	delete(w.appearances, id)
	delete(w.dirty, id)
	// An entity created and destroyed within the same sync window was never
	// announced, so it must not appear in the removed list either.
	if w.created[id] {
		delete(w.created, id)
	} else {
		w.removed[id] = true
	}
	return true
}

// Alive reports whether the entity exists.
func (w *World) Alive(id EntityID) bool {
	return w.alive[id]
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return len(w.alive)
}

// Entities returns all live entity ids in ascending order.
func (w *World) Entities() []EntityID {
	ids := make([]EntityID, 0, len(w.alive))
	for id := range w.alive {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetTransform attaches or replaces the transform of an entity.
func (w *World) SetTransform(id EntityID, t Transform) bool {
	if !w.alive[id] {
		return false
	}
	w.transforms[id] = &t
	w.MarkDirty(id)
	return true
}

// Transform returns the entity's transform, or nil if absent.
func (w *World) Transform(id EntityID) *Transform {
	return w.transforms[id]
}

// SetMovement attaches or replaces the movement of an entity.
func (w *World) SetMovement(id EntityID, m Movement) bool {
	if !w.alive[id] {
		return false
	}
	w.movements[id] = &m
	w.MarkDirty(id)
	return true
}

// Movement returns the entity's movement, or nil if absent.
func (w *World) Movement(id EntityID) *Movement {
	return w.movements[id]
}

// SetAppearance attaches or replaces the appearance of an entity.
func (w *World) SetAppearance(id EntityID, a Appearance) bool {
	if !w.alive[id] {
		return false
	}
	w.appearances[id] = &a
	w.MarkDirty(id)
	return true
}

// Appearance returns the entity's appearance, or nil if absent.
func (w *World) Appearance(id EntityID) *Appearance {
	return w.appearances[id]
}

// MarkDirty flags an entity for inclusion in the next delta.
func (w *World) MarkDirty(id EntityID) {
	if w.alive[id] && !w.created[id] {
		w.dirty[id] = true
	}
}

// RegisterSystem adds a system, kept sorted by descending priority.
func (w *World) RegisterSystem(s System) {
	w.systems = append(w.systems, s)
	sort.SliceStable(w.systems, func(i, j int) bool {
		return w.systems[i].Priority() > w.systems[j].Priority()
	})
}

// Update runs all registered systems once with the given time step.
func (w *World) Update(dt time.Duration) {
	for _, s := range w.systems {
		s.Update(dt, w)
	}
}

// state builds the wire representation of a single entity.
func (w *World) state(id EntityID) EntityState {
	s := EntityState{ID: id}
	if t, ok := w.transforms[id]; ok {
		c := *t
		s.Transform = &c
	}
	if m, ok := w.movements[id]; ok {
		c := *m
		s.Movement = &c
	}
	if a, ok := w.appearances[id]; ok {
		c := *a
		s.Appearance = &c
	}
	return s
}
