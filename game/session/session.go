package session

import (
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/vttforge/vtt-server/game/ecs"
)

// Phase is the high-level mode a game session is in.
type Phase string

const (
	PhaseExploration Phase = "exploration"
	PhaseCombat      Phase = "combat"
	PhaseDowntime    Phase = "downtime"
)

const (
	defaultTickRate   = 20
	defaultMaxPlayers = 8

	// animationSpeed is the reference travel speed in units per second used
	// to derive animated move durations.
	animationSpeed = 200.0

	// maxAnimationDuration caps travel time regardless of distance.
	maxAnimationDuration = 2 * time.Second
)

// Config configures a new game session.
type Config struct {
	GameID     string `json:"game_id"`
	MapID      string `json:"map_id,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
	TickRate   int    `json:"tick_rate,omitempty"`
}

// Player is one participant in a session.
type Player struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Connected   bool   `json:"connected"`
	CharacterID string `json:"character_id,omitempty"`
}

// GameSession owns the authoritative state of one game: players, tokens,
// phase, and turn order. All methods are safe for concurrent use.
type GameSession struct {
	ID         string
	MapID      string
	MaxPlayers int
	TickRate   int

	mu        sync.Mutex
	players   map[string]*Player
	phase     Phase
	turnOrder []ecs.EntityID
	turnIndex int

	world    *ecs.World
	sync     *ecs.SyncSystem
	lastTick time.Time

	// pendingMoves holds the deferred finalize timer per animated token.
	// A new animated move cancels and replaces any prior timer for the
	// same entity.
	pendingMoves map[ecs.EntityID]*time.Timer

	ticker    *time.Ticker
	stopTick  chan struct{}
	destroyed bool
}

// NewGameSession constructs a session and starts its tick loop.
func NewGameSession(cfg Config) *GameSession {
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = defaultTickRate
	}
	maxPlayers := cfg.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}

	world := ecs.NewWorld()
	world.RegisterSystem(ecs.NewMovementSystem())

	s := &GameSession{
		ID:           cfg.GameID,
		MapID:        cfg.MapID,
		MaxPlayers:   maxPlayers,
		TickRate:     tickRate,
		players:      make(map[string]*Player),
		phase:        PhaseExploration,
		turnIndex:    -1,
		world:        world,
		sync:         ecs.NewSyncSystem(world),
		pendingMoves: make(map[ecs.EntityID]*time.Timer),
		lastTick:     time.Now(),
		stopTick:     make(chan struct{}),
	}

	interval := time.Duration(max(1, 1000/tickRate)) * time.Millisecond
	s.ticker = time.NewTicker(interval)
	go s.runTickLoop()

	return s
}

// runTickLoop fires the simulation at the configured rate until Destroy.
func (s *GameSession) runTickLoop() {
	for {
		select {
		case now := <-s.ticker.C:
			s.tick(now)
		case <-s.stopTick:
			return
		}
	}
}

// tick advances the world by the elapsed time since the previous tick. A
// panic from a system is recovered so a single bad tick cannot kill the loop.
func (s *GameSession) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Game %s: recovered from tick panic: %v", s.ID, r)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}

	dt := now.Sub(s.lastTick)
	s.lastTick = now
	s.world.Update(dt)
}

// Phase returns the current session phase.
func (s *GameSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase switches the session phase directly. Combat should normally be
// entered via InitiateCombat so the turn order is established.
func (s *GameSession) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// AddPlayer adds a player to the roster. It returns false without mutation
// if the user is already present or the session is full.
func (s *GameSession) AddPlayer(userID, displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[userID]; exists {
		return false
	}
	if len(s.players) >= s.MaxPlayers {
		return false
	}
	s.players[userID] = &Player{
		UserID:      userID,
		DisplayName: displayName,
		Connected:   true,
	}
	return true
}

// RemovePlayer removes a player. It returns false for unknown users.
func (s *GameSession) RemovePlayer(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[userID]; !exists {
		return false
	}
	delete(s.players, userID)
	return true
}

// Player returns a copy of the player record, or nil if unknown.
func (s *GameSession) Player(userID string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[userID]
	if !exists {
		return nil
	}
	cp := *p
	return &cp
}

// Players returns a copy of the roster.
func (s *GameSession) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

// SetPlayerConnected updates a player's connected flag. It returns false for
// unknown users.
func (s *GameSession) SetPlayerConnected(userID string, connected bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[userID]
	if !exists {
		return false
	}
	p.Connected = connected
	return true
}

// ConnectedPlayerCount returns the number of players currently connected.
func (s *GameSession) ConnectedPlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedCountLocked()
}

func (s *GameSession) connectedCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// PlayerCount returns the roster size, connected or not.
func (s *GameSession) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// IsEmpty reports whether no player is currently connected.
func (s *GameSession) IsEmpty() bool {
	return s.ConnectedPlayerCount() == 0
}

// CreateToken allocates a new token entity at the given position with
// default transform, appearance, and movement.
func (s *GameSession) CreateToken(x, y float64, ownerID string) ecs.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.world.CreateEntity()
	s.world.SetTransform(id, ecs.Transform{X: x, Y: y, ScaleX: 1, ScaleY: 1, ZIndex: 1})
	s.world.SetMovement(id, ecs.Movement{Speed: 100})
	s.world.SetAppearance(id, ecs.Appearance{Alpha: 1})

	if ownerID != "" {
		if p, ok := s.players[ownerID]; ok && p.CharacterID == "" {
			p.CharacterID = entityIDString(id)
		}
	}
	return id
}

// RemoveToken destroys a token entity. It returns false if the entity is
// not alive.
func (s *GameSession) RemoveToken(id ecs.EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pendingMoves[id]; ok {
		t.Stop()
		delete(s.pendingMoves, id)
	}
	return s.world.DestroyEntity(id)
}

// MoveToken moves a token to (x, y). When animate is false the transform is
// assigned immediately. When animate is true the token is given a straight
// line velocity covering the distance in min(distance/200, 2) seconds, and a
// deferred finalize snaps it to the exact target when that time elapses. It
// returns false if the entity is not alive or has no transform.
func (s *GameSession) MoveToken(id ecs.EntityID, x, y float64, animate bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || !s.world.Alive(id) {
		return false
	}
	t := s.world.Transform(id)
	if t == nil {
		return false
	}

	// A newer move supersedes any in-flight animation for this token.
	if prev, ok := s.pendingMoves[id]; ok {
		prev.Stop()
		delete(s.pendingMoves, id)
	}

	if !animate {
		t.X = x
		t.Y = y
		s.world.MarkDirty(id)
		return true
	}

	dx := x - t.X
	dy := y - t.Y
	distance := math.Hypot(dx, dy)
	if distance == 0 {
		// Already at the target; a superseded animation's velocity must
		// not keep running with no finalize left to stop it.
		if m := s.world.Movement(id); m != nil && (m.VX != 0 || m.VY != 0) {
			m.VX = 0
			m.VY = 0
			s.world.MarkDirty(id)
		}
		return true
	}

	duration := time.Duration(math.Min(distance/animationSpeed, maxAnimationDuration.Seconds()) * float64(time.Second))
	secs := duration.Seconds()

	if m := s.world.Movement(id); m != nil {
		m.VX = dx / secs
		m.VY = dy / secs
	} else {
		s.world.SetMovement(id, ecs.Movement{VX: dx / secs, VY: dy / secs, Speed: 100})
	}
	s.world.MarkDirty(id)

	s.pendingMoves[id] = time.AfterFunc(duration, func() {
		s.finalizeMove(id, x, y)
	})
	return true
}

// finalizeMove zeroes the token's velocity and snaps it to the exact target.
func (s *GameSession) finalizeMove(id ecs.EntityID, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pendingMoves, id)
	if s.destroyed || !s.world.Alive(id) {
		return
	}
	if m := s.world.Movement(id); m != nil {
		m.VX = 0
		m.VY = 0
	}
	if t := s.world.Transform(id); t != nil {
		t.X = x
		t.Y = y
	}
	s.world.MarkDirty(id)
}

// InitiateCombat enters the combat phase with the given turn order. The
// first entity becomes the current turn, or none if the order is empty.
func (s *GameSession) InitiateCombat(entityIDs []ecs.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseCombat
	s.turnOrder = append([]ecs.EntityID(nil), entityIDs...)
	if len(s.turnOrder) > 0 {
		s.turnIndex = 0
	} else {
		s.turnIndex = -1
	}
}

// NextTurn advances to the next entity in the turn order, wrapping at the
// end. It returns the new current entity and false if the order is empty.
func (s *GameSession) NextTurn() (ecs.EntityID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turnOrder) == 0 {
		return 0, false
	}
	s.turnIndex = (s.turnIndex + 1) % len(s.turnOrder)
	return s.turnOrder[s.turnIndex], true
}

// CurrentTurn returns the entity whose turn it is, and false outside combat
// or with an empty order.
func (s *GameSession) CurrentTurn() (ecs.EntityID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnIndex < 0 || s.turnIndex >= len(s.turnOrder) {
		return 0, false
	}
	return s.turnOrder[s.turnIndex], true
}

// TurnOrder returns a copy of the current turn order.
func (s *GameSession) TurnOrder() []ecs.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ecs.EntityID(nil), s.turnOrder...)
}

// EndCombat returns to exploration and clears the turn order.
func (s *GameSession) EndCombat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseExploration
	s.turnOrder = nil
	s.turnIndex = -1
}

// NetworkDelta returns the entity changes since the previous delta.
func (s *GameSession) NetworkDelta() ecs.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.Delta()
}

// Snapshot returns the full entity state for bootstrapping a client.
func (s *GameSession) Snapshot() ecs.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.Snapshot()
}

// EntityCount returns the number of live token entities.
func (s *GameSession) EntityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world.EntityCount()
}

// Destroy stops the tick loop, cancels pending moves, clears players, and
// destroys all entities. It is safe to call more than once.
func (s *GameSession) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true

	s.ticker.Stop()
	close(s.stopTick)

	for id, t := range s.pendingMoves {
		t.Stop()
		delete(s.pendingMoves, id)
	}
	s.players = make(map[string]*Player)
	for _, id := range s.world.Entities() {
		s.world.DestroyEntity(id)
	}
	s.mu.Unlock()
}

func entityIDString(id ecs.EntityID) string {
	return strconv.FormatUint(uint64(id), 10)
}
