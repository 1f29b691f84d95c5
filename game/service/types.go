package service

import (
	"time"

	"github.com/vttforge/vtt-server/game/session"
)

// CreateGameRequest carries the parameters for a new game
type CreateGameRequest struct {
	GameID     string `json:"game_id"`
	MapID      string `json:"map_id,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
	TickRate   int    `json:"tick_rate,omitempty"`
}

// GameInfo summarizes one live game for API responses
type GameInfo struct {
	ID          string           `json:"id"`
	MapID       string           `json:"map_id"`
	MapName     string           `json:"map_name,omitempty"`
	Phase       session.Phase    `json:"phase"`
	MaxPlayers  int              `json:"max_players"`
	TickRate    int              `json:"tick_rate"`
	EntityCount int              `json:"entity_count"`
	Players     []session.Player `json:"players"`
}

// CreateTokenRequest places a new token on the map
type CreateTokenRequest struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	OwnerID string  `json:"owner_id,omitempty"`
}

// TokenInfo identifies a freshly created token
type TokenInfo struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	OwnerID string  `json:"owner_id,omitempty"`
}

// MoveTokenRequest moves a token, optionally with interpolation
type MoveTokenRequest struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Animate bool    `json:"animate"`
}

// RollResult is the outcome of one dice roll
type RollResult struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Notation  string    `json:"notation"`
	Rolls     []int     `json:"rolls"`
	Modifier  int       `json:"modifier,omitempty"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsInfo aggregates server-wide counters
type StatsInfo struct {
	TotalGames       int `json:"total_games"`
	ActiveGames      int `json:"active_games"`
	TotalPlayers     int `json:"total_players"`
	ConnectedPlayers int `json:"connected_players"`
	TotalEntities    int `json:"total_entities"`
}
