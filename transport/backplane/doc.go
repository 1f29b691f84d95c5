// Package backplane provides the Redis coordination layer that lets
// independent VTT server processes behave as one logical cluster.
//
// The backplane package implements:
//   - Cluster-wide session presence with TTL-bound registry keys
//   - Per-server, per-game, and per-user set indices for routing queries
//   - Cross-server broadcast over a shared pub/sub channel with echo discard
//   - Single-hop client delivery via per-server direct channels
//   - Server heartbeats and dead-server garbage collection
//
// Redis carries only coordination and presence metadata. Payload delivery
// always terminates at the process that owns the live socket: broadcasts are
// routing envelopes, never a durable relay, and a failed Redis operation
// degrades the effect to local-only rather than surfacing to callers.
//
// Key Namespace (prefix configurable, default "vtt:ws:"):
//
//	session:{clientId}            presence record, TTL 300s
//	server:{serverId}:sessions    set of clientIds owned by a server
//	game:{gameId}:sessions        set of clientIds in a game
//	user:{userId}:sessions        set of clientIds of a user
//	heartbeat:{serverId}          liveness record, TTL 30s
//	broadcast                     shared fanout channel
//	server:{serverId}             per-server direct channel
//
// Failure Detection:
//
// Each adapter heartbeats every 10 seconds. The cleanup sweep runs every 30
// seconds and treats a server as dead once its heartbeat is missing or older
// than 60 seconds (two missed beats); the dead server's sessions are removed
// from every index through its per-server set. Detection is bounded at
// roughly 60-90 seconds after a crash; individual session keys additionally
// self-expire after 300 seconds as a backstop.
package backplane
