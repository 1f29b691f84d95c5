package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// heartbeatInterval is how often the stale-connection sweep runs.
	heartbeatInterval = 10 * time.Second

	// staleAfter is the inbound-silence threshold that evicts a client.
	staleAfter = 30 * time.Second

	// backplaneTimeout bounds fire-and-forget backplane calls.
	backplaneTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are the deployment proxy's job.
		return true
	},
}

// Backplane is the cluster coordination surface the hub publishes to. All
// methods are best-effort; failures degrade delivery to local-only.
type Backplane interface {
	RegisterSession(ctx context.Context, clientID, userID, gameID string) error
	UnregisterSession(ctx context.Context, clientID string) error
	TouchSession(ctx context.Context, clientID string) error
	BroadcastToGame(ctx context.Context, gameID string, message []byte) error
	BroadcastToUser(ctx context.Context, userID string, message []byte) error
}

// Hub is the process-local registry of connected user sockets, grouped by
// game session. All methods are safe for concurrent use.
type Hub struct {
	policy    Policy
	backplane Backplane

	mu       sync.RWMutex
	clients  map[string]*Client
	sessions map[string]map[*Client]bool

	subMu   sync.Mutex
	subs    map[int]chan GameEvent
	nextSub int

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	done        sync.WaitGroup
	shutdown    bool
}

// NewHub creates a hub with the given role policy and starts its heartbeat
// sweep. The backplane may be nil for single-process deployments.
func NewHub(policy Policy, backplane Backplane) *Hub {
	h := &Hub{
		policy:      policy,
		backplane:   backplane,
		clients:     make(map[string]*Client),
		sessions:    make(map[string]map[*Client]bool),
		subs:        make(map[int]chan GameEvent),
		sweepTicker: time.NewTicker(heartbeatInterval),
		stopSweep:   make(chan struct{}),
	}

	h.done.Add(1)
	go h.runSweep()

	return h
}

// SetBackplane attaches the distributed backplane after construction. The
// hub and the backplane reference each other, so one side binds late; call
// this before the hub accepts connections.
func (h *Hub) SetBackplane(b Backplane) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backplane = b
}

func (h *Hub) getBackplane() Backplane {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backplane
}

func (h *Hub) runSweep() {
	defer h.done.Done()
	for {
		select {
		case now := <-h.sweepTicker.C:
			h.sweepStale(now)
		case <-h.stopSweep:
			return
		}
	}
}

// ServeWS validates the handshake query parameters and registers the
// connection. A missing required parameter closes the socket with policy
// violation code 1008.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID := query.Get("sessionId")
	userID := query.Get("userId")
	campaignID := query.Get("campaignId")
	isGM := query.Get("isGM") == "true"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	if sessionID == "" || userID == "" || campaignID == "" {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing required query parameters")
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		ID:         uuid.NewString(),
		UserID:     userID,
		SessionID:  sessionID,
		CampaignID: campaignID,
		IsGM:       isGM,
	}
	client.touch()

	if !h.registerClient(client) {
		return
	}

	go client.writePump()
	go client.readPump()
}

// registerClient adds the client to the registries, announces it to the
// session, acks it, and registers its presence with the backplane.
func (h *Hub) registerClient(c *Client) bool {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		c.conn.Close()
		return false
	}
	h.clients[c.ID] = c
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[*Client]bool)
	}
	h.sessions[c.SessionID][c] = true
	total := len(h.sessions[c.SessionID])
	backplane := h.backplane
	h.mu.Unlock()

	log.Printf("Client %s joined session %s (user=%s gm=%v, %d connected)",
		c.ID, c.SessionID, c.UserID, c.IsGM, total)

	join := NewEnvelope(MsgUserJoin, c.SessionID, c.UserID, map[string]any{
		"userId": c.UserID,
		"isGM":   c.IsGM,
	})
	h.broadcastLocal(c.SessionID, c, join)

	c.sendEnvelope(NewEnvelope(MsgWelcome, c.SessionID, c.UserID, map[string]any{
		"clientId": c.ID,
	}))

	if backplane != nil {
		ctx, cancel := context.WithTimeout(context.Background(), backplaneTimeout)
		defer cancel()
		if err := backplane.RegisterSession(ctx, c.ID, c.UserID, c.SessionID); err != nil {
			log.Printf("Backplane register failed for client %s: %v", c.ID, err)
		}
	}
	return true
}

// unregisterClient removes the client and, when notify is set, announces
// the departure to the rest of the session.
func (h *Hub) unregisterClient(c *Client, notify bool) {
	h.mu.Lock()
	if h.clients[c.ID] != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	if clients, ok := h.sessions[c.SessionID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.sessions, c.SessionID)
		}
	}
	backplane := h.backplane
	h.mu.Unlock()

	// The channel is never closed directly: concurrent broadcasts may
	// still hold a snapshot reference to this client.
	c.closeSend()

	log.Printf("Client %s left session %s", c.ID, c.SessionID)

	if notify {
		leave := NewEnvelope(MsgUserLeave, c.SessionID, c.UserID, map[string]any{
			"userId": c.UserID,
		})
		h.broadcastLocal(c.SessionID, nil, leave)
	}

	if backplane != nil {
		ctx, cancel := context.WithTimeout(context.Background(), backplaneTimeout)
		defer cancel()
		if err := backplane.UnregisterSession(ctx, c.ID); err != nil {
			log.Printf("Backplane unregister failed for client %s: %v", c.ID, err)
		}
	}
}

// dropClient force-disconnects a client that can no longer be served.
func (h *Hub) dropClient(c *Client, reason string) {
	log.Printf("Dropping client %s: %s", c.ID, reason)
	h.unregisterClient(c, true)
	c.conn.Close()
}

// dispatch routes one inbound envelope from a connected client.
func (h *Hub) dispatch(c *Client, env Envelope) {
	if b := h.getBackplane(); b != nil {
		go h.touchBackplane(b, c.ID)
	}

	switch {
	case env.Type == MsgPing:
		c.sendEnvelope(NewEnvelope(MsgPong, c.SessionID, c.UserID, nil))

	case h.policy.RequiresGM(env.Type):
		if !c.IsGM {
			c.sendEnvelope(NewEnvelope(MsgError, c.SessionID, c.UserID, errorPayload{
				Error: "permission denied: " + string(env.Type) + " requires GM role",
			}))
			return
		}
		h.relay(c, env)

	case worldEvents[env.Type]:
		h.relay(c, env)
		h.publishEvent(GameEvent{
			Type:      env.Type,
			SessionID: env.SessionID,
			UserID:    env.UserID,
			Payload:   env.Payload,
			Timestamp: time.UnixMilli(env.Timestamp),
		})

	default:
		h.relay(c, env)
	}
}

// relay broadcasts an envelope to the sender's session, excluding the
// sender, and fans it out to peer processes through the backplane.
func (h *Hub) relay(from *Client, env Envelope) {
	h.broadcastLocal(env.SessionID, from, env)
	h.broadcastRemote(env.SessionID, env)
}

// broadcastLocal delivers an envelope to every local client of the session
// except the excluded one.
func (h *Hub) broadcastLocal(sessionID string, exclude *Client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal broadcast envelope: %v", err)
		return
	}
	h.deliverLocal(sessionID, exclude, data)
}

func (h *Hub) deliverLocal(sessionID string, exclude *Client, data []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions[sessionID]))
	for c := range h.sessions[sessionID] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.dropClient(c, "send buffer full")
		}
	}
}

// broadcastRemote publishes an envelope for sessions owned by peer
// processes. Failures are logged; delivery degrades to local-only.
func (h *Hub) broadcastRemote(sessionID string, env Envelope) {
	b := h.getBackplane()
	if b == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backplaneTimeout)
	defer cancel()
	if err := b.BroadcastToGame(ctx, sessionID, data); err != nil {
		log.Printf("Backplane broadcast for session %s failed: %v", sessionID, err)
	}
}

func (h *Hub) touchBackplane(b Backplane, clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), backplaneTimeout)
	defer cancel()
	if err := b.TouchSession(ctx, clientID); err != nil {
		log.Printf("Backplane activity refresh failed for client %s: %v", clientID, err)
	}
}

// sweepStale evicts every client silent for longer than the heartbeat
// threshold and returns how many were dropped.
func (h *Hub) sweepStale(now time.Time) int {
	h.mu.RLock()
	var stale []*Client
	for _, c := range h.clients {
		if now.Sub(c.LastPing()) > staleAfter {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.dropClient(c, "heartbeat timeout")
	}
	return len(stale)
}

// SubscribeGameEvents registers a typed observer for world events. The
// returned cancel function unsubscribes and closes the channel. Events are
// dropped for subscribers that fall behind; dispatch never blocks.
func (h *Hub) SubscribeGameEvents() (<-chan GameEvent, func()) {
	h.subMu.Lock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan GameEvent, 64)
	h.subs[id] = ch
	h.subMu.Unlock()

	cancel := func() {
		h.subMu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.subMu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) publishEvent(ev GameEvent) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Broadcast helpers for non-socket collaborators (REST handlers, game
// logic) to push authoritative changes to connected clients. Each one also
// fans out through the backplane.

// BroadcastTokenMove announces an authoritative token move to a session.
func (h *Hub) BroadcastTokenMove(sessionID string, payload any) {
	h.serverBroadcast(MsgTokenMove, sessionID, payload)
}

// BroadcastTokenAdd announces a new token to a session.
func (h *Hub) BroadcastTokenAdd(sessionID string, payload any) {
	h.serverBroadcast(MsgTokenAdd, sessionID, payload)
}

// BroadcastTokenRemove announces a removed token to a session.
func (h *Hub) BroadcastTokenRemove(sessionID string, payload any) {
	h.serverBroadcast(MsgTokenRemove, sessionID, payload)
}

// BroadcastSceneUpdate announces a scene change to a session.
func (h *Hub) BroadcastSceneUpdate(sessionID string, payload any) {
	h.serverBroadcast(MsgSceneUpdate, sessionID, payload)
}

// BroadcastCombatUpdate announces a combat state change to a session.
func (h *Hub) BroadcastCombatUpdate(sessionID string, payload any) {
	h.serverBroadcast(MsgCombatUpdate, sessionID, payload)
}

func (h *Hub) serverBroadcast(t MessageType, sessionID string, payload any) {
	env := NewEnvelope(t, sessionID, "", payload)
	h.broadcastLocal(sessionID, nil, env)
	h.broadcastRemote(sessionID, env)
}

// DeliverToGame hands a raw frame from the backplane to every local client
// of the session.
func (h *Hub) DeliverToGame(gameID string, data []byte) {
	h.deliverLocal(gameID, nil, data)
}

// DeliverToUser hands a raw frame from the backplane to every local client
// of the user.
func (h *Hub) DeliverToUser(userID string, data []byte) {
	h.mu.RLock()
	var targets []*Client
	for _, c := range h.clients {
		if c.UserID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.dropClient(c, "send buffer full")
		}
	}
}

// DeliverToClient hands a raw frame to one local client. It reports whether
// the client is owned by this process.
func (h *Hub) DeliverToClient(clientID string, data []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !c.enqueue(data) {
		h.dropClient(c, "send buffer full")
	}
	return true
}

// LocalSessionCount returns the number of sockets owned by this process.
func (h *Hub) LocalSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionClientCount returns the number of local clients in one session.
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Shutdown stops the heartbeat sweep, closes every socket, and clears the
// registries. The hub accepts no new connections afterwards.
func (h *Hub) Shutdown() {
	h.sweepTicker.Stop()
	close(h.stopSweep)
	h.done.Wait()

	h.mu.Lock()
	h.shutdown = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.sessions = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
		c.conn.Close()
	}

	h.subMu.Lock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.subMu.Unlock()

	log.Printf("WebSocket hub shut down (%d clients closed)", len(clients))
}
