// Package service provides the business logic layer for the VTT server.
//
// The service package implements:
//   - Game lifecycle orchestration (create, join, leave, delete)
//   - Token creation and movement on behalf of the REST surface
//   - World state access (snapshots and incremental deltas)
//   - Dice rolling with standard NdM(+/-K) notation
//   - Aggregate statistics
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game
// operations. MapSource resolves map definitions for game creation.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket) and the
// session engine, translating requests into session operations and mapping
// engine conditions onto a small error taxonomy the API can turn into status
// codes: session.ErrGameNotFound and ErrTokenNotFound for missing resources,
// session.ErrGameAlreadyExists for conflicts, ErrGameFull and
// ErrInvalidNotation for rejected input.
//
// Usage:
//
//	maps, _ := config.NewManager("maps")
//	manager := session.NewGameManager()
//	svc := service.NewGameService(manager, maps)
//
//	game, err := svc.CreateGame(ctx, service.CreateGameRequest{GameID: "g1"})
//	if err != nil {
//		log.Fatal(err)
//	}
package service
