package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vttforge/vtt-server/game/ecs"
	"github.com/vttforge/vtt-server/game/session"
)

var (
	ErrGameFull       = errors.New("game is full")
	ErrPlayerNotFound = errors.New("player not found")
	ErrTokenNotFound  = errors.New("token not found")
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	manager *session.GameManager
	maps    MapSource
}

// NewGameService creates a new game service instance
func NewGameService(manager *session.GameManager, maps MapSource) GameService {
	return &gameServiceImpl{
		manager: manager,
		maps:    maps,
	}
}

// CreateGame resolves the requested map and registers a new game session
func (s *gameServiceImpl) CreateGame(ctx context.Context, req CreateGameRequest) (*GameInfo, error) {
	mapCfg := s.maps.GetDefault()
	if req.MapID != "" {
		loaded, err := s.maps.LoadMap(req.MapID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve map %s: %w", req.MapID, err)
		}
		mapCfg = loaded
	}

	game, err := s.manager.CreateGame(session.Config{
		GameID:     req.GameID,
		MapID:      mapCfg.ID,
		MaxPlayers: req.MaxPlayers,
		TickRate:   req.TickRate,
	})
	if err != nil {
		return nil, err
	}

	return s.gameInfo(game), nil
}

// GetGame retrieves current game information
func (s *gameServiceImpl) GetGame(ctx context.Context, gameID string) (*GameInfo, error) {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return nil, err
	}
	return s.gameInfo(game), nil
}

// ListGames returns all live games
func (s *gameServiceImpl) ListGames(ctx context.Context) ([]*GameInfo, error) {
	games := s.manager.ListGames()
	infos := make([]*GameInfo, 0, len(games))
	for _, g := range games {
		infos = append(infos, s.gameInfo(g))
	}
	return infos, nil
}

// DeleteGame destroys a game and removes it from the registry
func (s *gameServiceImpl) DeleteGame(ctx context.Context, gameID string) error {
	return s.manager.RemoveGame(gameID)
}

// JoinGame adds a player to a game. Joining a game you are already in is a
// no-op that returns the current game state.
func (s *gameServiceImpl) JoinGame(ctx context.Context, gameID, userID, displayName string) (*GameInfo, error) {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return nil, err
	}

	if !game.AddPlayer(userID, displayName) && game.Player(userID) == nil {
		return nil, fmt.Errorf("%w: %s holds %d of %d seats", ErrGameFull, gameID, game.PlayerCount(), game.MaxPlayers)
	}

	return s.gameInfo(game), nil
}

// LeaveGame removes a player from a game
func (s *gameServiceImpl) LeaveGame(ctx context.Context, gameID, userID string) error {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return err
	}
	if !game.RemovePlayer(userID) {
		return fmt.Errorf("%w: %s in game %s", ErrPlayerNotFound, userID, gameID)
	}
	return nil
}

// CreateToken places a token on the game's map
func (s *gameServiceImpl) CreateToken(ctx context.Context, gameID string, req CreateTokenRequest) (*TokenInfo, error) {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return nil, err
	}

	id := game.CreateToken(req.X, req.Y, req.OwnerID)
	return &TokenInfo{
		ID:      strconv.FormatUint(uint64(id), 10),
		X:       req.X,
		Y:       req.Y,
		OwnerID: req.OwnerID,
	}, nil
}

// MoveToken moves a token to a new position, animated or instant
func (s *gameServiceImpl) MoveToken(ctx context.Context, gameID, tokenID string, req MoveTokenRequest) error {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(tokenID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrTokenNotFound, tokenID)
	}
	if !game.MoveToken(ecs.EntityID(id), req.X, req.Y, req.Animate) {
		return fmt.Errorf("%w: %s in game %s", ErrTokenNotFound, tokenID, gameID)
	}
	return nil
}

// GetSnapshot returns the full current world state
func (s *gameServiceImpl) GetSnapshot(ctx context.Context, gameID string) (ecs.Snapshot, error) {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return ecs.Snapshot{}, err
	}
	return game.Snapshot(), nil
}

// GetDelta drains and returns the pending incremental world update
func (s *gameServiceImpl) GetDelta(ctx context.Context, gameID string) (ecs.Delta, error) {
	game, err := s.manager.GetGame(gameID)
	if err != nil {
		return ecs.Delta{}, err
	}
	return game.NetworkDelta(), nil
}

// RollDice rolls dice for a player in a game. The game must exist; rolls do
// not touch world state.
func (s *gameServiceImpl) RollDice(ctx context.Context, gameID, userID, notation string) (*RollResult, error) {
	if gameID != "" {
		if _, err := s.manager.GetGame(gameID); err != nil {
			return nil, err
		}
	}
	return rollDice(gameID, userID, notation)
}

// Stats aggregates counters across all games
func (s *gameServiceImpl) Stats(ctx context.Context) (*StatsInfo, error) {
	stats := s.manager.GetStats()
	info := &StatsInfo{
		TotalGames:       stats.TotalGames,
		ActiveGames:      stats.ActiveGames,
		TotalPlayers:     stats.TotalPlayers,
		ConnectedPlayers: stats.ConnectedPlayers,
	}
	for _, g := range s.manager.ListGames() {
		info.TotalEntities += g.EntityCount()
	}
	return info, nil
}

// gameInfo snapshots a session into an API-facing summary
func (s *gameServiceImpl) gameInfo(game *session.GameSession) *GameInfo {
	info := &GameInfo{
		ID:          game.ID,
		MapID:       game.MapID,
		Phase:       game.Phase(),
		MaxPlayers:  game.MaxPlayers,
		TickRate:    game.TickRate,
		EntityCount: game.EntityCount(),
		Players:     game.Players(),
	}
	if d := s.maps.GetDefault(); d != nil && d.ID == game.MapID {
		info.MapName = d.Name
	} else if cfg, err := s.maps.LoadMap(game.MapID); err == nil {
		info.MapName = cfg.Name
	}
	return info
}
