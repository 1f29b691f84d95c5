// Package api provides the HTTP REST surface of the VTT server.
//
// The api package implements:
//   - RESTful endpoints for game lifecycle and membership
//   - Token placement and movement endpoints
//   - World state access (snapshot and delta)
//   - Dice rolling
//   - WebSocket upgrade handling
//   - Server statistics and health
//
// Endpoints:
//
// Game Lifecycle:
//   - POST /api/games - Create a game (409 on duplicate id)
//   - GET /api/games - List live games
//   - GET /api/games/{id} - Get one game
//   - DELETE /api/games/{id} - Destroy a game
//
// Membership:
//   - POST /api/games/{id}/join - Add a player
//   - POST /api/games/{id}/leave - Remove a player
//
// Tokens and World State:
//   - POST /api/games/{id}/tokens - Place a token
//   - POST /api/games/{id}/tokens/{tokenId}/move - Move a token
//   - GET /api/games/{id}/snapshot - Full world state
//   - GET /api/games/{id}/delta - Pending incremental update
//
// Dice and Observability:
//   - POST /api/games/{id}/roll - Roll dice ("2d6+3")
//   - GET /api/stats - Aggregate counters
//   - GET /health - Liveness probe
//
// Real-time:
//   - GET /ws - WebSocket handshake (sessionId, userId, campaignId, isGM)
//
// All endpoints accept and return JSON. Errors are returned as
// {"error": "..."} with a status code matching the failure: 400 for rejected
// input, 404 for missing resources, 409 for conflicts.
//
// Mutating token endpoints fan the change out to the game's WebSocket clients
// so REST callers and live connections observe the same state.
package api
