package backplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// sessionTTL bounds every presence record; activity refreshes it.
	sessionTTL = 300 * time.Second

	// heartbeatInterval and heartbeatTTL govern server liveness records.
	heartbeatInterval = 10 * time.Second
	heartbeatTTL      = 30 * time.Second

	// cleanupInterval is how often the dead-server sweep runs; a server
	// whose last beat is older than deadAfter is reaped.
	cleanupInterval = 30 * time.Second
	deadAfter       = 60 * time.Second
)

var ErrSessionNotFound = errors.New("session not found")

// Config configures the Redis connection and key namespace.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// SessionInfo is the cluster-wide presence record for one client
// connection. Authoritative socket state lives only on the owning process;
// this is a materialized view for routing.
type SessionInfo struct {
	ServerID     string `json:"serverId"`
	ClientID     string `json:"clientId"`
	UserID       string `json:"userId,omitempty"`
	GameID       string `json:"gameId,omitempty"`
	ConnectedAt  int64  `json:"connectedAt"`
	LastActivity int64  `json:"lastActivity"`
}

// LocalRouter is the process-local delivery surface the adapter dispatches
// into; the WebSocket hub implements it.
type LocalRouter interface {
	DeliverToGame(gameID string, message []byte)
	DeliverToUser(userID string, message []byte)
	DeliverToClient(clientID string, message []byte) bool
	LocalSessionCount() int
}

// fanoutEnvelope travels on the shared broadcast channel.
type fanoutEnvelope struct {
	Type       string          `json:"type"` // "game" or "user"
	Target     string          `json:"target"`
	Message    json.RawMessage `json:"message"`
	FromServer string          `json:"fromServer"`
}

// directEnvelope travels on a server's dedicated channel.
type directEnvelope struct {
	ClientID   string          `json:"clientId"`
	Message    json.RawMessage `json:"message"`
	FromServer string          `json:"fromServer"`
}

// heartbeatRecord is the liveness payload each server republishes.
type heartbeatRecord struct {
	ServerID  string `json:"serverId"`
	PID       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"`
	Sessions  int    `json:"sessions"`
}

// Stats summarizes local and cluster-wide presence.
type Stats struct {
	ServerID        string `json:"server_id"`
	LocalSessions   int    `json:"local_sessions"`
	ClusterSessions int    `json:"cluster_sessions"`
	ActiveGames     int    `json:"active_games"`
	ActiveUsers     int    `json:"active_users"`
	LiveServers     int    `json:"live_servers"`
}

// Adapter is the distributed backplane for one server process.
type Adapter struct {
	serverID string
	rdb      *redis.Client
	router   LocalRouter
	keys     keyspace

	pubsub *redis.PubSub

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    sync.WaitGroup
}

// NewAdapter creates an adapter with a unique server id. Connect must be
// called before the adapter participates in the cluster.
func NewAdapter(cfg Config, router LocalRouter) *Adapter {
	return &Adapter{
		serverID: fmt.Sprintf("srv-%d-%d", os.Getpid(), time.Now().UnixNano()),
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		router: router,
		keys:   newKeyspace(cfg.KeyPrefix),
		stop:   make(chan struct{}),
	}
}

// ServerID returns this process's unique cluster identity.
func (a *Adapter) ServerID() string {
	return a.serverID
}

// Connect verifies the Redis connection, subscribes to the shared broadcast
// channel and this server's direct channel, and starts the heartbeat
// publisher and dead-server sweep.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	a.pubsub = a.rdb.Subscribe(ctx, a.keys.broadcastChannel(), a.keys.serverChannel(a.serverID))
	if _, err := a.pubsub.Receive(ctx); err != nil {
		a.pubsub.Close()
		a.pubsub = nil
		return fmt.Errorf("redis subscribe failed: %w", err)
	}

	a.started = true
	a.done.Add(2)
	go a.listen()
	go a.runTimers()

	a.writeHeartbeat(ctx)
	log.Printf("Backplane connected as %s", a.serverID)
	return nil
}

// listen dispatches inbound pub/sub messages until the subscription closes.
func (a *Adapter) listen() {
	defer a.done.Done()

	broadcast := a.keys.broadcastChannel()
	direct := a.keys.serverChannel(a.serverID)

	for msg := range a.pubsub.Channel() {
		switch msg.Channel {
		case broadcast:
			a.handleBroadcast([]byte(msg.Payload))
		case direct:
			a.handleDirect([]byte(msg.Payload))
		}
	}
}

func (a *Adapter) runTimers() {
	defer a.done.Done()

	heartbeat := time.NewTicker(heartbeatInterval)
	cleanup := time.NewTicker(cleanupInterval)
	defer heartbeat.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-heartbeat.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.writeHeartbeat(ctx)
			cancel()
		case <-cleanup.C:
			ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
			a.CleanupDeadServers(ctx)
			cancel()
		case <-a.stop:
			return
		}
	}
}

// handleBroadcast re-dispatches a cluster fanout to locally owned sessions,
// discarding this server's own echo.
func (a *Adapter) handleBroadcast(payload []byte) {
	var env fanoutEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("Backplane: malformed broadcast envelope: %v", err)
		return
	}
	if env.FromServer == a.serverID {
		return
	}

	switch env.Type {
	case "game":
		a.router.DeliverToGame(env.Target, env.Message)
	case "user":
		a.router.DeliverToUser(env.Target, env.Message)
	default:
		log.Printf("Backplane: unknown fanout type %q", env.Type)
	}
}

// handleDirect delivers a single-client frame routed to this server.
func (a *Adapter) handleDirect(payload []byte) {
	var env directEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("Backplane: malformed direct envelope: %v", err)
		return
	}
	if !a.router.DeliverToClient(env.ClientID, env.Message) {
		log.Printf("Backplane: direct frame for %s but client is not local", env.ClientID)
	}
}

// RegisterSession writes the presence record and adds the client to the
// per-server, per-game, and per-user indices.
func (a *Adapter) RegisterSession(ctx context.Context, clientID, userID, gameID string) error {
	now := time.Now().UnixMilli()
	info := SessionInfo{
		ServerID:     a.serverID,
		ClientID:     clientID,
		UserID:       userID,
		GameID:       gameID,
		ConnectedAt:  now,
		LastActivity: now,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	_, err = a.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, a.keys.session(clientID), data, sessionTTL)
		pipe.SAdd(ctx, a.keys.serverSessions(a.serverID), clientID)
		if gameID != "" {
			pipe.SAdd(ctx, a.keys.gameSessions(gameID), clientID)
		}
		if userID != "" {
			pipe.SAdd(ctx, a.keys.userSessions(userID), clientID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register session %s: %w", clientID, err)
	}
	return nil
}

// UnregisterSession reads the presence record first so every index the
// session was added to can be cleaned, then deletes it.
func (a *Adapter) UnregisterSession(ctx context.Context, clientID string) error {
	info, err := a.GetSession(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return a.removeSession(ctx, info)
}

// removeSession deletes a presence record and its index entries.
func (a *Adapter) removeSession(ctx context.Context, info *SessionInfo) error {
	_, err := a.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, a.keys.session(info.ClientID))
		pipe.SRem(ctx, a.keys.serverSessions(info.ServerID), info.ClientID)
		if info.GameID != "" {
			pipe.SRem(ctx, a.keys.gameSessions(info.GameID), info.ClientID)
		}
		if info.UserID != "" {
			pipe.SRem(ctx, a.keys.userSessions(info.UserID), info.ClientID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unregister session %s: %w", info.ClientID, err)
	}
	return nil
}

// GetSession returns the presence record for a client, or
// ErrSessionNotFound once the record expired or was removed.
func (a *Adapter) GetSession(ctx context.Context, clientID string) (*SessionInfo, error) {
	data, err := a.rdb.Get(ctx, a.keys.session(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt session record %s: %w", clientID, err)
	}
	return &info, nil
}

// TouchSession refreshes the presence TTL and last-activity timestamp so a
// live connection never expires.
func (a *Adapter) TouchSession(ctx context.Context, clientID string) error {
	info, err := a.GetSession(ctx, clientID)
	if err != nil {
		return err
	}
	info.LastActivity = time.Now().UnixMilli()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, a.keys.session(clientID), data, sessionTTL).Err()
}

// BroadcastToGame publishes a frame for every cluster session in the game.
// Subscribers discard their own echo, so the caller is responsible for its
// local delivery.
func (a *Adapter) BroadcastToGame(ctx context.Context, gameID string, message []byte) error {
	return a.publishFanout(ctx, fanoutEnvelope{
		Type:       "game",
		Target:     gameID,
		Message:    message,
		FromServer: a.serverID,
	})
}

// BroadcastToUser publishes a frame for every cluster session of the user.
func (a *Adapter) BroadcastToUser(ctx context.Context, userID string, message []byte) error {
	return a.publishFanout(ctx, fanoutEnvelope{
		Type:       "user",
		Target:     userID,
		Message:    message,
		FromServer: a.serverID,
	})
}

func (a *Adapter) publishFanout(ctx context.Context, env fanoutEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := a.rdb.Publish(ctx, a.keys.broadcastChannel(), data).Err(); err != nil {
		return fmt.Errorf("publish %s fanout for %s: %w", env.Type, env.Target, err)
	}
	return nil
}

// SendToClient resolves the owning server through the session registry and
// delivers in-process when local, otherwise publishes on the owner's direct
// channel. Single hop, no flooding.
func (a *Adapter) SendToClient(ctx context.Context, clientID string, message []byte) error {
	info, err := a.GetSession(ctx, clientID)
	if err != nil {
		return err
	}

	if info.ServerID == a.serverID {
		if !a.router.DeliverToClient(clientID, message) {
			return ErrSessionNotFound
		}
		return nil
	}

	data, err := json.Marshal(directEnvelope{
		ClientID:   clientID,
		Message:    message,
		FromServer: a.serverID,
	})
	if err != nil {
		return err
	}
	if err := a.rdb.Publish(ctx, a.keys.serverChannel(info.ServerID), data).Err(); err != nil {
		return fmt.Errorf("route to %s via %s: %w", clientID, info.ServerID, err)
	}
	return nil
}

// writeHeartbeat republishes this server's liveness record.
func (a *Adapter) writeHeartbeat(ctx context.Context) {
	record := heartbeatRecord{
		ServerID:  a.serverID,
		PID:       os.Getpid(),
		Timestamp: time.Now().UnixMilli(),
		Sessions:  a.router.LocalSessionCount(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := a.rdb.Set(ctx, a.keys.heartbeat(a.serverID), data, heartbeatTTL).Err(); err != nil {
		log.Printf("Backplane: heartbeat write failed: %v", err)
	}
}

// CleanupDeadServers scans the per-server session indices and reaps every
// server whose heartbeat is missing or older than the dead threshold. It
// returns the number of servers reaped.
func (a *Adapter) CleanupDeadServers(ctx context.Context) int {
	reaped := 0
	iter := a.rdb.Scan(ctx, 0, a.keys.serverSessionsPattern(), 100).Iterator()
	for iter.Next(ctx) {
		serverID := a.keys.serverIDFromSessionsKey(iter.Val())
		if serverID == "" || serverID == a.serverID {
			continue
		}
		if a.serverDead(ctx, serverID) {
			if err := a.reapServer(ctx, serverID); err != nil {
				log.Printf("Backplane: failed to reap dead server %s: %v", serverID, err)
				continue
			}
			reaped++
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("Backplane: dead-server scan failed: %v", err)
	}
	return reaped
}

// serverDead reports whether a server's heartbeat is missing or stale.
// A missing heartbeat means at least one full TTL of silence; a present one
// is compared against the two-missed-beats threshold.
func (a *Adapter) serverDead(ctx context.Context, serverID string) bool {
	data, err := a.rdb.Get(ctx, a.keys.heartbeat(serverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return true
	}
	if err != nil {
		// On Redis trouble, assume alive rather than reap a healthy peer.
		return false
	}
	var record heartbeatRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return true
	}
	return time.Since(time.UnixMilli(record.Timestamp)) > deadAfter
}

// reapServer removes every session the dead server held, then its own keys.
func (a *Adapter) reapServer(ctx context.Context, serverID string) error {
	clientIDs, err := a.rdb.SMembers(ctx, a.keys.serverSessions(serverID)).Result()
	if err != nil {
		return err
	}

	removed := 0
	for _, clientID := range clientIDs {
		info, err := a.GetSession(ctx, clientID)
		if errors.Is(err, ErrSessionNotFound) {
			// Record already expired; only the index entry remains.
			a.rdb.SRem(ctx, a.keys.serverSessions(serverID), clientID)
			continue
		}
		if err != nil {
			return err
		}
		if err := a.removeSession(ctx, info); err != nil {
			return err
		}
		removed++
	}

	if _, err := a.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, a.keys.serverSessions(serverID))
		pipe.Del(ctx, a.keys.heartbeat(serverID))
		return nil
	}); err != nil {
		return err
	}

	log.Printf("Backplane: reaped dead server %s (%d sessions)", serverID, removed)
	return nil
}

// GetStats reports local and cluster-wide presence counts.
func (a *Adapter) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ServerID:      a.serverID,
		LocalSessions: a.router.LocalSessionCount(),
	}

	iter := a.rdb.Scan(ctx, 0, a.keys.serverSessionsPattern(), 100).Iterator()
	for iter.Next(ctx) {
		n, err := a.rdb.SCard(ctx, iter.Val()).Result()
		if err != nil {
			return stats, err
		}
		stats.ClusterSessions += int(n)
	}
	if err := iter.Err(); err != nil {
		return stats, err
	}

	games, err := a.countKeys(ctx, a.keys.gameSessionsPattern())
	if err != nil {
		return stats, err
	}
	stats.ActiveGames = games

	users, err := a.countKeys(ctx, a.keys.userSessionsPattern())
	if err != nil {
		return stats, err
	}
	stats.ActiveUsers = users

	servers, err := a.countKeys(ctx, a.keys.heartbeatPattern())
	if err != nil {
		return stats, err
	}
	stats.LiveServers = servers

	return stats, nil
}

func (a *Adapter) countKeys(ctx context.Context, pattern string) (int, error) {
	count := 0
	iter := a.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

// Close stops the timers and subscription and withdraws this server's
// heartbeat so peers reap any sessions it failed to unregister.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return a.rdb.Close()
	}
	a.started = false
	close(a.stop)
	a.mu.Unlock()

	a.pubsub.Close()
	a.done.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.rdb.Del(ctx, a.keys.heartbeat(a.serverID))

	log.Printf("Backplane %s closed", a.serverID)
	return a.rdb.Close()
}
