package session

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameAlreadyExists = errors.New("game already exists")
	ErrInvalidGameID     = errors.New("invalid game id")
)

// idleSweepInterval is how often the manager scans for abandoned games.
const idleSweepInterval = 5 * time.Minute

// Stats aggregates registry-wide counts.
type Stats struct {
	TotalGames       int `json:"total_games"`
	ActiveGames      int `json:"active_games"`
	TotalPlayers     int `json:"total_players"`
	ConnectedPlayers int `json:"connected_players"`
}

// GameManager is the registry of live game sessions keyed by game id.
type GameManager struct {
	mu    sync.RWMutex
	games map[string]*GameSession

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	done        sync.WaitGroup
}

// NewGameManager creates a manager and starts its idle-cleanup sweep.
func NewGameManager() *GameManager {
	m := &GameManager{
		games:       make(map[string]*GameSession),
		sweepTicker: time.NewTicker(idleSweepInterval),
		stopSweep:   make(chan struct{}),
	}

	m.done.Add(1)
	go m.runSweep()

	return m
}

func (m *GameManager) runSweep() {
	defer m.done.Done()
	for {
		select {
		case <-m.sweepTicker.C:
			m.CleanupIdleGames()
		case <-m.stopSweep:
			return
		}
	}
}

// CreateGame constructs and registers a new session. It fails with
// ErrGameAlreadyExists if the id is taken.
func (m *GameManager) CreateGame(cfg Config) (*GameSession, error) {
	if cfg.GameID == "" {
		return nil, ErrInvalidGameID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.games[cfg.GameID]; exists {
		return nil, ErrGameAlreadyExists
	}

	game := NewGameSession(cfg)
	m.games[cfg.GameID] = game
	log.Printf("Created game %s (map=%q tick=%d)", cfg.GameID, cfg.MapID, game.TickRate)
	return game, nil
}

// GetGame retrieves a session by id.
func (m *GameManager) GetGame(id string) (*GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	game, exists := m.games[id]
	if !exists {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// FindOrCreateGame returns the existing session for the id or creates one.
func (m *GameManager) FindOrCreateGame(cfg Config) (*GameSession, error) {
	game, err := m.GetGame(cfg.GameID)
	if err == nil {
		return game, nil
	}
	if errors.Is(err, ErrGameNotFound) {
		game, err = m.CreateGame(cfg)
		// A concurrent creator may have won the race.
		if errors.Is(err, ErrGameAlreadyExists) {
			return m.GetGame(cfg.GameID)
		}
		return game, err
	}
	return nil, err
}

// RemoveGame destroys a session and drops it from the registry.
func (m *GameManager) RemoveGame(id string) error {
	m.mu.Lock()
	game, exists := m.games[id]
	if exists {
		delete(m.games, id)
	}
	m.mu.Unlock()

	if !exists {
		return ErrGameNotFound
	}
	game.Destroy()
	return nil
}

// ListGames returns all registered sessions.
func (m *GameManager) ListGames() []*GameSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*GameSession, 0, len(m.games))
	for _, game := range m.games {
		out = append(out, game)
	}
	return out
}

// GameCount returns the number of registered sessions.
func (m *GameManager) GameCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

// CleanupIdleGames removes every session with no connected players and
// returns how many were removed.
func (m *GameManager) CleanupIdleGames() int {
	m.mu.Lock()
	var idle []*GameSession
	for id, game := range m.games {
		if game.IsEmpty() {
			delete(m.games, id)
			idle = append(idle, game)
		}
	}
	m.mu.Unlock()

	for _, game := range idle {
		game.Destroy()
	}
	if len(idle) > 0 {
		log.Printf("Idle sweep removed %d abandoned games", len(idle))
	}
	return len(idle)
}

// GetStats aggregates game and player counts across the registry.
func (m *GameManager) GetStats() Stats {
	m.mu.RLock()
	games := make([]*GameSession, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	m.mu.RUnlock()

	stats := Stats{TotalGames: len(games)}
	for _, g := range games {
		connected := g.ConnectedPlayerCount()
		stats.TotalPlayers += g.PlayerCount()
		stats.ConnectedPlayers += connected
		if connected > 0 {
			stats.ActiveGames++
		}
	}
	return stats
}

// Shutdown cancels the sweep, destroys all sessions concurrently, and
// clears the registry.
func (m *GameManager) Shutdown() {
	m.sweepTicker.Stop()
	close(m.stopSweep)
	m.done.Wait()

	m.mu.Lock()
	games := make([]*GameSession, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	m.games = make(map[string]*GameSession)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, g := range games {
		wg.Add(1)
		go func(g *GameSession) {
			defer wg.Done()
			g.Destroy()
		}(g)
	}
	wg.Wait()
	log.Printf("Game manager shut down (%d sessions destroyed)", len(games))
}
