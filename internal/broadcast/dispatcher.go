// Package broadcast fans the current combat state out to every connected session.
package broadcast

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/belulok/quest-chain/internal/combat"
	"github.com/belulok/quest-chain/internal/metrics"
	"github.com/belulok/quest-chain/internal/proto"
	"github.com/belulok/quest-chain/internal/session"
)

// StateSource provides the snapshot to broadcast.
type StateSource interface {
	Get() combat.CombatState
}

// Dispatcher serializes broadcasts so the last frame every session receives is the
// latest state, even when attacks and regen ticks race.
type Dispatcher struct {
	mu       sync.Mutex
	source   StateSource
	registry *session.Registry
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(source StateSource, registry *session.Registry) *Dispatcher {
	return &Dispatcher{source: source, registry: registry}
}

// Broadcast encodes the current snapshot once and delivers it to every session.
// Sessions that fail to accept the frame are evicted. It returns the delivered count.
func (d *Dispatcher) Broadcast() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame, err := Frame(d.source.Get())
	if err != nil {
		slog.Error("failed to encode game state", "error", err)
		return 0
	}
	delivered := d.registry.SendAll(frame)
	metrics.BroadcastsTotal.Inc()
	return delivered
}

// Connect registers s and queues its initial snapshot under the broadcast lock, so
// no broadcast can reach s ahead of the snapshot.
func (d *Dispatcher) Connect(s session.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.registry.Register(s)
	return d.sendSnapshotLocked(s)
}

// SendSnapshot delivers the current snapshot to one session, evicting it on failure.
func (d *Dispatcher) SendSnapshot(s session.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendSnapshotLocked(s)
}

func (d *Dispatcher) sendSnapshotLocked(s session.Session) error {
	frame, err := Frame(d.source.Get())
	if err != nil {
		return err
	}
	if err := s.Send(frame); err != nil {
		d.registry.Evict(s, err)
		return err
	}
	return nil
}

// SendError replies to one session with an error frame.
func (d *Dispatcher) SendError(s session.Session, message string) error {
	frame, err := proto.EncodeError(message)
	if err != nil {
		return err
	}
	if err := s.Send(frame); err != nil {
		d.registry.Evict(s, err)
		return err
	}
	return nil
}

// Frame encodes state as a gameState frame.
func Frame(state combat.CombatState) ([]byte, error) {
	frame, err := proto.EncodeGameState(state.HP, state.MaxHP, state.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("encode game state: %w", err)
	}
	return frame, nil
}
