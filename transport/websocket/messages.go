package websocket

import (
	"encoding/json"
	"time"
)

// MessageType tags every envelope on the wire.
type MessageType string

const (
	// GM-gated world mutations.
	MsgTokenMove    MessageType = "token_move"
	MsgTokenAdd     MessageType = "token_add"
	MsgTokenRemove  MessageType = "token_remove"
	MsgSceneUpdate  MessageType = "scene_update"
	MsgCombatUpdate MessageType = "combat_update"

	// World events, broadcast and re-emitted on the typed event stream.
	MsgSpellCast          MessageType = "spell_cast"
	MsgSpellEffect        MessageType = "spell_effect"
	MsgPhysicsCollision   MessageType = "physics_collision"
	MsgProjectileLaunch   MessageType = "projectile_launch"
	MsgBarrierCreated     MessageType = "barrier_created"
	MsgConstraintApplied  MessageType = "constraint_applied"
	MsgForceApplied       MessageType = "force_applied"
	MsgTeleportEffect     MessageType = "teleport_effect"
	MsgConcentrationCheck MessageType = "concentration_check"
	MsgEffectExpired      MessageType = "effect_expired"

	// Control and lifecycle.
	MsgUserJoin  MessageType = "user_join"
	MsgUserLeave MessageType = "user_leave"
	MsgWelcome   MessageType = "welcome"
	MsgPing      MessageType = "ping"
	MsgPong      MessageType = "pong"
	MsgError     MessageType = "error"
)

// Envelope is the wire format for every message in both directions.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope builds an envelope with the current timestamp and a
// JSON-encoded payload. Encoding failures yield a null payload.
func NewEnvelope(t MessageType, sessionID, userID string, payload any) Envelope {
	env := Envelope{
		Type:      t,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			env.Payload = data
		}
	}
	return env
}

// errorPayload is the in-band error body sent to a client.
type errorPayload struct {
	Error string `json:"error"`
}

// worldEvents is the closed set of types re-emitted as typed game events.
var worldEvents = map[MessageType]bool{
	MsgSpellCast:          true,
	MsgSpellEffect:        true,
	MsgPhysicsCollision:   true,
	MsgProjectileLaunch:   true,
	MsgBarrierCreated:     true,
	MsgConstraintApplied:  true,
	MsgForceApplied:       true,
	MsgTeleportEffect:     true,
	MsgConcentrationCheck: true,
	MsgEffectExpired:      true,
}

// Policy decides which message types require the GM role. The default
// matches the product's current rule set, token_move included; deployments
// that let players move their own tokens inject a different policy.
type Policy struct {
	gmOnly map[MessageType]bool
}

// DefaultPolicy gates all world-mutating actions behind the GM role.
func DefaultPolicy() Policy {
	return NewPolicy(MsgTokenAdd, MsgTokenRemove, MsgSceneUpdate, MsgCombatUpdate, MsgTokenMove)
}

// NewPolicy builds a policy gating exactly the given types.
func NewPolicy(gmOnly ...MessageType) Policy {
	set := make(map[MessageType]bool, len(gmOnly))
	for _, t := range gmOnly {
		set[t] = true
	}
	return Policy{gmOnly: set}
}

// RequiresGM reports whether the type is restricted to GM senders.
func (p Policy) RequiresGM(t MessageType) bool {
	return p.gmOnly[t]
}

// GameEvent is the typed form of a world event delivered to subscribers.
type GameEvent struct {
	Type      MessageType
	SessionID string
	UserID    string
	Payload   json.RawMessage
	Timestamp time.Time
}
