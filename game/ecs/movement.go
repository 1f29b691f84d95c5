package ecs

import "time"

// MovementSystem integrates entity positions from their velocities.
type MovementSystem struct{}

// NewMovementSystem creates the movement integration system.
func NewMovementSystem() *MovementSystem {
	return &MovementSystem{}
}

// Priority runs movement before lower-priority systems each tick.
func (s *MovementSystem) Priority() int {
	return 100
}

// Update advances every moving entity by velocity * dt.
func (s *MovementSystem) Update(dt time.Duration, w *World) {
	secs := dt.Seconds()
	for id, m := range w.movements {
		if m.VX == 0 && m.VY == 0 {
			continue
		}
		t := w.transforms[id]
		if t == nil {
			continue
		}
		t.X += m.VX * secs
		t.Y += m.VY * secs
		w.MarkDirty(id)
	}
}
