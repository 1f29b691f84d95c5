package ecs

import "testing"

func TestDeltaCreatedUpdatedRemoved(t *testing.T) {
	w := NewWorld()
	s := NewSyncSystem(w)

	a := w.CreateEntity()
	w.SetTransform(a, Transform{X: 1})

	d := s.Delta()
	if d.Seq != 1 || d.BaseSeq != 0 {
		t.Errorf("First delta seq=%d base=%d, want 1/0", d.Seq, d.BaseSeq)
	}
	if len(d.Created) != 1 || d.Created[0].ID != a {
		t.Fatalf("Expected entity %d in created, got %+v", a, d.Created)
	}
	if len(d.Updated) != 0 {
		t.Error("Create must not also report the entity as updated")
	}

	w.SetTransform(a, Transform{X: 2})
	d = s.Delta()
	if len(d.Updated) != 1 || d.Updated[0].Transform.X != 2 {
		t.Fatalf("Expected update with x=2, got %+v", d.Updated)
	}

	w.DestroyEntity(a)
	d = s.Delta()
	if len(d.Removed) != 1 || d.Removed[0] != a {
		t.Fatalf("Expected entity %d removed, got %+v", a, d.Removed)
	}
}

func TestEmptyDeltaKeepsSequence(t *testing.T) {
	w := NewWorld()
	s := NewSyncSystem(w)

	a := w.CreateEntity()
	w.SetTransform(a, Transform{})
	s.Delta()

	d := s.Delta()
	if d.Seq != 1 || d.BaseSeq != 1 {
		t.Errorf("Empty delta should keep seq: got seq=%d base=%d", d.Seq, d.BaseSeq)
	}
	if len(d.Created)+len(d.Updated)+len(d.Removed) != 0 {
		t.Errorf("Expected empty delta, got %+v", d)
	}
}

func TestCreateThenDestroyWithinWindow(t *testing.T) {
	w := NewWorld()
	s := NewSyncSystem(w)

	a := w.CreateEntity()
	w.DestroyEntity(a)

	d := s.Delta()
	if len(d.Created) != 0 || len(d.Removed) != 0 {
		t.Errorf("Entity never announced must not appear in delta: %+v", d)
	}
}

func TestSnapshot(t *testing.T) {
	w := NewWorld()
	s := NewSyncSystem(w)

	a := w.CreateEntity()
	w.SetTransform(a, Transform{X: 1})
	b := w.CreateEntity()
	w.SetTransform(b, Transform{X: 2})
	w.SetAppearance(b, Appearance{Sprite: "door", Alpha: 1})

	s.Delta()

	snap := s.Snapshot()
	if snap.Seq != s.Seq() {
		t.Errorf("Snapshot seq %d != sync seq %d", snap.Seq, s.Seq())
	}
	if len(snap.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(snap.Entities))
	}
	if snap.Entities[0].ID != a || snap.Entities[1].ID != b {
		t.Error("Snapshot entities should be in ascending id order")
	}
	if snap.Entities[1].Appearance == nil || snap.Entities[1].Appearance.Sprite != "door" {
		t.Errorf("Snapshot missing appearance: %+v", snap.Entities[1])
	}
}
