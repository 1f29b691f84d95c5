// Package ecs provides the entity-component store backing game sessions.
//
// The ecs package implements:
//   - Entity lifecycle (create, destroy, liveness checks)
//   - Transform, Movement, and Appearance component stores
//   - Per-tick system execution in priority order
//   - Dirty tracking and sequence-numbered network synchronization
//
// Core Types:
//
// World is the entity store. Systems implement the System interface and are
// run once per World.Update call. SyncSystem turns accumulated changes into
// network deltas and full snapshots.
//
// Synchronization:
//
// Every mutation marks the entity dirty. SyncSystem.Delta drains the dirty
// set into a Delta carrying created, updated, and removed entities together
// with a monotonically increasing sequence number; clients that have applied
// delta N can apply delta N+1 on top. Snapshot returns the complete entity
// list for bootstrapping a newly joined client.
//
// Concurrency:
//
// A World is owned by a single game session and guarded by the session's
// lock; the World itself performs no internal locking.
package ecs
