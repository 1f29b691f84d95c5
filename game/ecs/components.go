package ecs

// EntityID identifies an entity within a single World.
type EntityID uint64

// Transform holds position and orientation of an entity on the table.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	ZIndex   int     `json:"z_index"`
}

// Movement holds the current velocity and movement speed of an entity.
type Movement struct {
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Speed float64 `json:"speed"`
}

// Appearance holds how an entity is rendered by clients.
type Appearance struct {
	Sprite string  `json:"sprite"`
	Tint   uint32  `json:"tint"`
	Alpha  float64 `json:"alpha"`
	Frame  int     `json:"frame"`
}

// EntityState is the wire representation of one entity used by deltas and
// snapshots. Component pointers are nil when the entity lacks the component.
type EntityState struct {
	ID         EntityID    `json:"id"`
	Transform  *Transform  `json:"transform,omitempty"`
	Movement   *Movement   `json:"movement,omitempty"`
	Appearance *Appearance `json:"appearance,omitempty"`
}
