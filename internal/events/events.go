// Package events publishes raid lifecycle events to downstream consumers.
package events

import (
	"context"
	"time"
)

// Event kinds.
const (
	KindBossDefeated  = "boss_defeated"
	KindBossRespawned = "boss_respawned"
)

// Event is one lifecycle transition of the boss.
type Event struct {
	Kind      string    `json:"kind"`
	HP        int       `json:"hp"`
	MaxHP     int       `json:"maxHp"`
	Timestamp time.Time `json:"timestamp"`
	// Attacker is the sender declared by the client that landed the final blow.
	// It is not verified against the connection.
	Attacker string `json:"attacker,omitempty"`
}

// Publisher delivers events without blocking the caller on network I/O.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
