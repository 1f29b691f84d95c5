package service

import (
	"context"

	"github.com/vttforge/vtt-server/game/config"
	"github.com/vttforge/vtt-server/game/ecs"
)

// GameService defines all game-related operations
type GameService interface {
	// Game Lifecycle
	CreateGame(ctx context.Context, req CreateGameRequest) (*GameInfo, error)
	GetGame(ctx context.Context, gameID string) (*GameInfo, error)
	ListGames(ctx context.Context) ([]*GameInfo, error)
	DeleteGame(ctx context.Context, gameID string) error

	// Membership
	JoinGame(ctx context.Context, gameID, userID, displayName string) (*GameInfo, error)
	LeaveGame(ctx context.Context, gameID, userID string) error

	// Tokens
	CreateToken(ctx context.Context, gameID string, req CreateTokenRequest) (*TokenInfo, error)
	MoveToken(ctx context.Context, gameID, tokenID string, req MoveTokenRequest) error

	// World State
	GetSnapshot(ctx context.Context, gameID string) (ecs.Snapshot, error)
	GetDelta(ctx context.Context, gameID string) (ecs.Delta, error)

	// Dice
	RollDice(ctx context.Context, gameID, userID, notation string) (*RollResult, error)

	// Statistics
	Stats(ctx context.Context) (*StatsInfo, error)
}

// MapSource resolves map definitions for game creation
type MapSource interface {
	LoadMap(id string) (*config.MapConfig, error)
	GetDefault() *config.MapConfig
}
