// Package websocket provides the per-process WebSocket connection registry
// for the VTT server.
//
// The websocket package implements:
//   - Handshake validation (sessionId, userId, campaignId query parameters)
//   - A hub of connected users grouped by game session
//   - Role-gated message dispatch (GM-only actions vs world events)
//   - Heartbeat tracking and stale-connection eviction
//   - Public broadcast helpers for non-socket collaborators
//   - Typed game-event subscription for downstream services
//
// Message Protocol:
//
// Messages are JSON envelopes: {type, payload, sessionId, userId, timestamp}.
// GM-gated types are rejected with an in-band error for non-GM senders; the
// connection stays open. World-event types are broadcast to the session and
// additionally published on the hub's typed event stream. "ping" receives a
// direct "pong"; unrecognized types default to a session broadcast.
//
// Clustering:
//
// The hub only ever writes to sockets it owns. An optional Backplane lets
// broadcasts reach sessions owned by peer processes; the backplane calls the
// hub back through the DeliverTo* methods for messages targeting local
// clients. Without a backplane the hub degrades to single-process operation.
//
// Connection Lifecycle:
//
// 1. Client connects with required query parameters (missing → close 1008)
// 2. Connection registered locally and with the backplane
// 3. user_join broadcast to the session, welcome ack sent to the client
// 4. Client exchanges envelopes, heartbeats tracked on every inbound frame
// 5. Disconnect or heartbeat timeout unregisters locally and cluster-wide
package websocket
