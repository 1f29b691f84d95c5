// Package session provides game session and registry management for the
// VTT server.
//
// The session package implements:
//   - Per-session player rosters and connection flags
//   - The exploration/combat/downtime phase machine and turn order
//   - Token creation and immediate or animated movement
//   - A fixed-rate tick loop driving the ECS world
//   - A thread-safe session registry with idle cleanup
//
// Core Types:
//
// GameSession owns one game's state: players, tokens (ECS entities), phase,
// and turn order. GameManager is the registry keyed by game id and handles
// lifecycle, including a periodic sweep that removes sessions with no
// connected players.
//
// Tick Loop:
//
// Each session runs a ticker goroutine firing at its configured tick rate.
// The tick body integrates movement and updates the world; a panic inside a
// single tick is recovered and logged so one bad tick never kills the loop.
// Ticks run inline in the ticker goroutine and therefore never overlap.
//
// Animated Movement:
//
// MoveToken with animate=true computes a straight-line velocity and schedules
// a finalize that snaps the token to the exact target when the travel time
// elapses, removing integration drift. Scheduling a new animated move for the
// same token cancels and replaces the pending finalize.
//
// Concurrency:
//
// All session state is guarded by a single mutex shared by the tick loop,
// finalize timers, and callers. The manager is independently thread-safe.
package session
