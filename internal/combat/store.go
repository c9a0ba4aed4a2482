package combat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/belulok/quest-chain/internal/metrics"
	"github.com/belulok/quest-chain/internal/persistence"
)

// Options configures a Store.
type Options struct {
	MaxHP        int
	MinDamage    int
	MaxDamage    int
	Key          string
	WriteTimeout time.Duration
}

// DefaultOptions mirrors the default raid configuration.
func DefaultOptions() Options {
	return Options{
		MaxHP:        1000,
		MinDamage:    1,
		MaxDamage:    100,
		Key:          "boss:hp",
		WriteTimeout: 2 * time.Second,
	}
}

// Store serializes all mutations of one CombatState and mirrors every change to a
// persistence backend on a write-behind goroutine.
//
// Persistence is fail-open: a backend error is logged and the in-memory value stays
// authoritative. That is acceptable while hp is a cosmetic counter; if hp ever gates an
// on-chain reward this policy has to become fail-closed.
type Store struct {
	mu    sync.RWMutex
	state CombatState
	opts  Options
	now   func() time.Time

	persister *persister
}

// NewStore loads the last persisted hp (or starts at MaxHP) and starts the persister.
func NewStore(ctx context.Context, opts Options, backend persistence.Backend) (*Store, error) {
	if opts.MaxHP <= 0 {
		return nil, fmt.Errorf("combat: max hp must be > 0, got %d", opts.MaxHP)
	}
	if opts.MinDamage < 1 || opts.MaxDamage < opts.MinDamage {
		return nil, fmt.Errorf("combat: invalid damage bounds [%d, %d]", opts.MinDamage, opts.MaxDamage)
	}
	if backend == nil {
		backend = persistence.NewMemoryBackend()
	}
	if opts.Key == "" {
		opts.Key = "boss:hp"
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}

	s := &Store{
		opts: opts,
		now:  time.Now,
	}

	hp := s.loadInitialHP(ctx, backend)
	s.state = CombatState{
		HP:          hp,
		MaxHP:       opts.MaxHP,
		Phase:       phaseFor(hp),
		LastUpdated: s.now(),
	}
	metrics.BossHP.Set(float64(hp))

	s.persister = newPersister(backend, opts.Key, opts.WriteTimeout)
	go s.persister.run()

	return s, nil
}

func (s *Store) loadInitialHP(ctx context.Context, backend persistence.Backend) int {
	loadCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()

	hp, err := backend.Load(loadCtx, s.opts.Key)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		slog.Info("no persisted combat state, starting at full hp", "key", s.opts.Key, "max_hp", s.opts.MaxHP)
		return s.opts.MaxHP
	case err != nil:
		metrics.PersistenceErrorsTotal.WithLabelValues("load").Inc()
		slog.Warn("failed to load combat state, starting at full hp",
			"backend", backend.Name(), "key", s.opts.Key, "error", err)
		return s.opts.MaxHP
	}

	if hp < 0 || hp > s.opts.MaxHP {
		clamped := min(max(hp, 0), s.opts.MaxHP)
		slog.Warn("persisted hp out of range, clamping", "hp", hp, "clamped", clamped, "max_hp", s.opts.MaxHP)
		hp = clamped
	}
	slog.Info("combat state restored", "backend", backend.Name(), "hp", hp)
	return hp
}

// Get returns the current snapshot without touching I/O.
func (s *Store) Get() CombatState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MaxHP returns the constant maximum for this raid.
func (s *Store) MaxHP() int {
	return s.opts.MaxHP
}

// ApplyDamage clamps the declared damage and subtracts it from hp, never below zero.
func (s *Store) ApplyDamage(declared float64) CombatState {
	amount := ClampDamage(declared, s.opts.MinDamage, s.opts.MaxDamage)

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.state.HP
	after := max(0, before-amount)
	s.commitLocked(after)

	metrics.DamageAppliedTotal.Add(float64(before - after))
	return s.state
}

// ApplyRegen heals the boss by amount while it is alive and wounded.
// At 0 or at MaxHP it is a no-op and nothing is persisted.
func (s *Store) ApplyRegen(amount int) (CombatState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hp := s.state.HP
	if amount <= 0 || hp <= 0 || hp >= s.opts.MaxHP {
		return s.state, false
	}
	s.commitLocked(min(s.opts.MaxHP, hp+amount))
	return s.state, true
}

// Respawn restores the boss to full hit points.
func (s *Store) Respawn() CombatState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitLocked(s.opts.MaxHP)
	return s.state
}

// commitLocked installs a new hp value. Caller holds s.mu.
func (s *Store) commitLocked(hp int) {
	now := s.now()
	if now.Before(s.state.LastUpdated) {
		now = s.state.LastUpdated
	}
	s.state = CombatState{
		HP:          hp,
		MaxHP:       s.opts.MaxHP,
		Phase:       phaseFor(hp),
		LastUpdated: now,
	}
	metrics.BossHP.Set(float64(hp))
	s.persister.enqueue(hp)
}

// Close flushes the last pending write and stops the persister.
func (s *Store) Close() {
	s.persister.close()
}
