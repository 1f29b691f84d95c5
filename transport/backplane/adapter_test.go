package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

type fakeRouter struct {
	mu       sync.Mutex
	games    map[string][][]byte
	users    map[string][][]byte
	clients  map[string][][]byte
	known    map[string]bool
	sessions int
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		games:   make(map[string][][]byte),
		users:   make(map[string][][]byte),
		clients: make(map[string][][]byte),
		known:   make(map[string]bool),
	}
}

func (r *fakeRouter) DeliverToGame(gameID string, message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[gameID] = append(r.games[gameID], message)
}

func (r *fakeRouter) DeliverToUser(userID string, message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = append(r.users[userID], message)
}

func (r *fakeRouter) DeliverToClient(clientID string, message []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known[clientID] {
		return false
	}
	r.clients[clientID] = append(r.clients[clientID], message)
	return true
}

func (r *fakeRouter) LocalSessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions
}

func (r *fakeRouter) gameDeliveries(gameID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games[gameID])
}

func TestKeyspace(t *testing.T) {
	k := newKeyspace("")

	cases := []struct {
		got, want string
	}{
		{k.session("c1"), "vtt:ws:session:c1"},
		{k.serverSessions("srv-1"), "vtt:ws:server:srv-1:sessions"},
		{k.gameSessions("g1"), "vtt:ws:game:g1:sessions"},
		{k.userSessions("u1"), "vtt:ws:user:u1:sessions"},
		{k.heartbeat("srv-1"), "vtt:ws:heartbeat:srv-1"},
		{k.broadcastChannel(), "vtt:ws:broadcast"},
		{k.serverChannel("srv-1"), "vtt:ws:server:srv-1"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("Key %q, want %q", tc.got, tc.want)
		}
	}

	t.Run("server id extraction", func(t *testing.T) {
		if id := k.serverIDFromSessionsKey("vtt:ws:server:srv-9-12:sessions"); id != "srv-9-12" {
			t.Errorf("Extracted %q, want srv-9-12", id)
		}
		if id := k.serverIDFromSessionsKey("vtt:ws:game:g1:sessions"); id != "" {
			t.Errorf("Expected no id for a game key, got %q", id)
		}
		if id := k.serverIDFromSessionsKey("vtt:ws:server:x"); id != "" {
			t.Errorf("Expected no id for a direct channel key, got %q", id)
		}
	})
}

func TestHandleBroadcastDiscardsOwnEcho(t *testing.T) {
	router := newFakeRouter()
	a := NewAdapter(Config{Addr: "localhost:6379"}, router)

	frame := json.RawMessage(`{"type":"spell_cast"}`)

	own, _ := json.Marshal(fanoutEnvelope{Type: "game", Target: "g1", Message: frame, FromServer: a.ServerID()})
	a.handleBroadcast(own)
	if router.gameDeliveries("g1") != 0 {
		t.Error("Own echo must not be redelivered locally")
	}

	peer, _ := json.Marshal(fanoutEnvelope{Type: "game", Target: "g1", Message: frame, FromServer: "srv-other"})
	a.handleBroadcast(peer)
	if router.gameDeliveries("g1") != 1 {
		t.Error("Peer broadcast should be delivered to local game sessions")
	}
}

func TestHandleBroadcastUserFanout(t *testing.T) {
	router := newFakeRouter()
	a := NewAdapter(Config{Addr: "localhost:6379"}, router)

	env, _ := json.Marshal(fanoutEnvelope{Type: "user", Target: "u1", Message: json.RawMessage(`{}`), FromServer: "srv-other"})
	a.handleBroadcast(env)

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.users["u1"]) != 1 {
		t.Error("User fanout was not delivered")
	}
}

func TestHandleBroadcastMalformed(t *testing.T) {
	router := newFakeRouter()
	a := NewAdapter(Config{Addr: "localhost:6379"}, router)

	// Must not panic or deliver anything.
	a.handleBroadcast([]byte("not json"))
	a.handleBroadcast([]byte(`{"type":"unknown","target":"g1","fromServer":"x"}`))
	if router.gameDeliveries("g1") != 0 {
		t.Error("Malformed or unknown envelopes must not be delivered")
	}
}

func TestHandleDirect(t *testing.T) {
	router := newFakeRouter()
	router.known["c1"] = true
	a := NewAdapter(Config{Addr: "localhost:6379"}, router)

	env, _ := json.Marshal(directEnvelope{ClientID: "c1", Message: json.RawMessage(`{"type":"pong"}`), FromServer: "srv-other"})
	a.handleDirect(env)

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.clients["c1"]) != 1 {
		t.Error("Direct frame was not delivered to the local client")
	}
}

func TestServerIDUnique(t *testing.T) {
	a := NewAdapter(Config{Addr: "localhost:6379"}, newFakeRouter())
	if a.ServerID() == "" {
		t.Fatal("Adapter must generate a server id")
	}
	if want := fmt.Sprintf("srv-%d-", os.Getpid()); len(a.ServerID()) <= len(want) {
		t.Errorf("Server id %q should embed pid and timestamp", a.ServerID())
	}
}

// Live-Redis coverage below; set REDIS_ADDR (e.g. localhost:6379) to run.

func liveConfig(t *testing.T) Config {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping live Redis test")
	}
	return Config{
		Addr:      addr,
		KeyPrefix: fmt.Sprintf("vtt:test:%d:", time.Now().UnixNano()),
	}
}

func liveAdapter(t *testing.T, cfg Config, router LocalRouter) *Adapter {
	t.Helper()
	a := NewAdapter(cfg, router)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestLiveSessionRoundTrip(t *testing.T) {
	cfg := liveConfig(t)
	a := liveAdapter(t, cfg, newFakeRouter())
	ctx := context.Background()

	if err := a.RegisterSession(ctx, "c1", "u1", "g1"); err != nil {
		t.Fatalf("RegisterSession failed: %v", err)
	}

	info, err := a.GetSession(ctx, "c1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if info.ClientID != "c1" || info.UserID != "u1" || info.GameID != "g1" {
		t.Errorf("Round trip mismatch: %+v", info)
	}
	if info.ServerID != a.ServerID() {
		t.Errorf("Session owned by %q, want %q", info.ServerID, a.ServerID())
	}

	before := info.LastActivity
	time.Sleep(5 * time.Millisecond)
	if err := a.TouchSession(ctx, "c1"); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	info, _ = a.GetSession(ctx, "c1")
	if info.LastActivity <= before {
		t.Error("TouchSession did not advance last activity")
	}

	if err := a.UnregisterSession(ctx, "c1"); err != nil {
		t.Fatalf("UnregisterSession failed: %v", err)
	}
	if _, err := a.GetSession(ctx, "c1"); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound after unregister, got %v", err)
	}

	// Unregistering twice is a no-op.
	if err := a.UnregisterSession(ctx, "c1"); err != nil {
		t.Errorf("Second unregister should not fail: %v", err)
	}
}

func TestLiveCrossServerBroadcast(t *testing.T) {
	cfg := liveConfig(t)
	routerA := newFakeRouter()
	routerB := newFakeRouter()
	a := liveAdapter(t, cfg, routerA)
	b := liveAdapter(t, cfg, routerB)
	ctx := context.Background()

	if err := a.RegisterSession(ctx, "cA", "u1", "g1"); err != nil {
		t.Fatal(err)
	}
	if err := b.RegisterSession(ctx, "cB", "u2", "g1"); err != nil {
		t.Fatal(err)
	}

	if err := b.BroadcastToGame(ctx, "g1", []byte(`{"type":"scene_update"}`)); err != nil {
		t.Fatalf("BroadcastToGame failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && routerA.gameDeliveries("g1") == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if routerA.gameDeliveries("g1") != 1 {
		t.Error("Server A never received server B's broadcast")
	}

	// The publishing server must not redeliver to itself via pub/sub.
	time.Sleep(100 * time.Millisecond)
	if routerB.gameDeliveries("g1") != 0 {
		t.Error("Server B received its own echo")
	}
}

func TestLiveSendToClientRouting(t *testing.T) {
	cfg := liveConfig(t)
	routerA := newFakeRouter()
	routerA.known["cA"] = true
	routerB := newFakeRouter()
	a := liveAdapter(t, cfg, routerA)
	b := liveAdapter(t, cfg, routerB)
	ctx := context.Background()

	if err := a.RegisterSession(ctx, "cA", "u1", "g1"); err != nil {
		t.Fatal(err)
	}

	// Remote: B routes through A's direct channel.
	if err := b.SendToClient(ctx, "cA", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("SendToClient failed: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		routerA.mu.Lock()
		n := len(routerA.clients["cA"])
		routerA.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	routerA.mu.Lock()
	delivered := len(routerA.clients["cA"])
	routerA.mu.Unlock()
	if delivered != 1 {
		t.Error("Direct routing to the owning server failed")
	}

	// Local: A delivers in-process.
	if err := a.SendToClient(ctx, "cA", []byte(`{"n":2}`)); err != nil {
		t.Fatalf("Local SendToClient failed: %v", err)
	}
	routerA.mu.Lock()
	delivered = len(routerA.clients["cA"])
	routerA.mu.Unlock()
	if delivered != 2 {
		t.Error("Local delivery did not happen in-process")
	}

	if err := b.SendToClient(ctx, "ghost", nil); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound for unknown client, got %v", err)
	}
}

func TestLiveDeadServerCleanup(t *testing.T) {
	cfg := liveConfig(t)
	survivor := liveAdapter(t, cfg, newFakeRouter())
	ctx := context.Background()

	// A "crashed" server: sessions registered, heartbeat gone.
	crashed := NewAdapter(cfg, newFakeRouter())
	t.Cleanup(func() { crashed.Close() })
	if err := crashed.RegisterSession(ctx, "cX", "uX", "gX"); err != nil {
		t.Fatal(err)
	}
	if err := crashed.RegisterSession(ctx, "cY", "uY", "gX"); err != nil {
		t.Fatal(err)
	}

	if reaped := survivor.CleanupDeadServers(ctx); reaped != 1 {
		t.Fatalf("Expected 1 reaped server, got %d", reaped)
	}

	if _, err := survivor.GetSession(ctx, "cX"); err != ErrSessionNotFound {
		t.Error("Crashed server's session cX survived cleanup")
	}
	if _, err := survivor.GetSession(ctx, "cY"); err != ErrSessionNotFound {
		t.Error("Crashed server's session cY survived cleanup")
	}

	members, err := survivor.rdb.SMembers(ctx, survivor.keys.gameSessions("gX")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 0 {
		t.Errorf("Game index still holds %v after cleanup", members)
	}
}

func TestLiveStats(t *testing.T) {
	cfg := liveConfig(t)
	router := newFakeRouter()
	router.sessions = 1
	a := liveAdapter(t, cfg, router)
	ctx := context.Background()

	if err := a.RegisterSession(ctx, "c1", "u1", "g1"); err != nil {
		t.Fatal(err)
	}
	if err := a.RegisterSession(ctx, "c2", "u2", "g2"); err != nil {
		t.Fatal(err)
	}

	stats, err := a.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.LocalSessions != 1 {
		t.Errorf("LocalSessions = %d, want 1", stats.LocalSessions)
	}
	if stats.ClusterSessions != 2 {
		t.Errorf("ClusterSessions = %d, want 2", stats.ClusterSessions)
	}
	if stats.ActiveGames != 2 {
		t.Errorf("ActiveGames = %d, want 2", stats.ActiveGames)
	}
	if stats.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2", stats.ActiveUsers)
	}
	if stats.LiveServers != 1 {
		t.Errorf("LiveServers = %d, want 1", stats.LiveServers)
	}
}
