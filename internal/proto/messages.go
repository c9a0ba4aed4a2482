// Package proto defines the JSON text frames exchanged over the raid websocket.
package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Message types.
const (
	TypeAttack    = "attack"
	TypeGameState = "gameState"
	TypeError     = "error"
)

// AttackMessage is sent by clients. Damage is a declared value and is never trusted as-is.
type AttackMessage struct {
	Type   string  `json:"type"`
	Damage float64 `json:"damage"`
	Sender string  `json:"sender"`
}

// GameStateMessage is broadcast after every mutation and sent once on connect.
type GameStateMessage struct {
	Type      string `json:"type"`
	BossHP    int    `json:"bossHP"`
	MaxBossHP int    `json:"maxBossHP"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage is sent only to the session whose frame was rejected.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ValidationError describes a malformed or type-mismatched inbound frame.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid message: " + e.Reason
	}
	return fmt.Sprintf("invalid message: %s %s", e.Field, e.Reason)
}

// NewGameState builds a gameState frame stamped with t in epoch milliseconds.
func NewGameState(hp, maxHP int, t time.Time) GameStateMessage {
	return GameStateMessage{
		Type:      TypeGameState,
		BossHP:    hp,
		MaxBossHP: maxHP,
		Timestamp: t.UnixMilli(),
	}
}

// EncodeGameState marshals a gameState frame.
func EncodeGameState(hp, maxHP int, t time.Time) ([]byte, error) {
	return json.Marshal(NewGameState(hp, maxHP, t))
}

// EncodeError marshals an error frame.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{Type: TypeError, Message: message})
}

// DecodeAttack parses an inbound frame. Anything other than a well-formed attack
// returns a *ValidationError.
func DecodeAttack(raw []byte) (AttackMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return AttackMessage{}, &ValidationError{Reason: "not a JSON object"}
	}

	var msg AttackMessage
	if err := decodeString(fields, "type", &msg.Type, true); err != nil {
		return AttackMessage{}, err
	}
	if msg.Type != TypeAttack {
		return AttackMessage{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not supported", msg.Type)}
	}

	damage, ok := fields["damage"]
	if !ok || isNull(damage) {
		return AttackMessage{}, &ValidationError{Field: "damage", Reason: "is required"}
	}
	if err := json.Unmarshal(damage, &msg.Damage); err != nil {
		return AttackMessage{}, &ValidationError{Field: "damage", Reason: "must be a number"}
	}

	if err := decodeString(fields, "sender", &msg.Sender, false); err != nil {
		return AttackMessage{}, err
	}
	return msg, nil
}

func decodeString(fields map[string]json.RawMessage, name string, dst *string, required bool) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		if required {
			return &ValidationError{Field: name, Reason: "is required"}
		}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Field: name, Reason: "must be a string"}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
