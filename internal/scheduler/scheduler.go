// Package scheduler drives the time-based parts of a raid: periodic regeneration
// and the delayed respawn after a defeat.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/belulok/quest-chain/internal/combat"
	"github.com/belulok/quest-chain/internal/events"
	"github.com/belulok/quest-chain/internal/metrics"
)

// Lifecycle is the scheduler's view of the boss.
type Lifecycle string

const (
	Alive      Lifecycle = "ALIVE"
	Defeated   Lifecycle = "DEFEATED"
	Respawning Lifecycle = "RESPAWNING"
)

// Store is the subset of combat.Store the scheduler mutates.
type Store interface {
	Get() combat.CombatState
	ApplyRegen(amount int) (combat.CombatState, bool)
	Respawn() combat.CombatState
}

// Broadcaster pushes the current state to every session.
type Broadcaster interface {
	Broadcast() int
}

// Options configures a Scheduler.
type Options struct {
	RegenAmount   int
	RegenInterval time.Duration
	RespawnDelay  time.Duration
}

// Scheduler owns the regen ticker and at most one pending respawn timer.
type Scheduler struct {
	store     Store
	bcast     Broadcaster
	publisher events.Publisher
	opts      Options

	regen *Job

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// New creates a stopped Scheduler. A nil publisher discards events.
func New(store Store, bcast Broadcaster, publisher events.Publisher, opts Options) *Scheduler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.RegenAmount <= 0 {
		opts.RegenAmount = 1
	}
	s := &Scheduler{
		store:     store,
		bcast:     bcast,
		publisher: publisher,
		opts:      opts,
	}
	s.regen = NewJob("regen", opts.RegenInterval, s.tick)
	return s
}

// Start begins regeneration. A boss restored at 0 hp is scheduled to respawn.
func (s *Scheduler) Start(ctx context.Context) {
	s.regen.Start(ctx)
	slog.Info("raid scheduler started",
		"regen_amount", s.opts.RegenAmount,
		"regen_interval", s.opts.RegenInterval,
		"respawn_delay", s.opts.RespawnDelay)

	if s.store.Get().Defeated() {
		s.OnDefeated("")
	}
}

// Stop cancels the ticker and any pending respawn. No mutation happens after it returns.
func (s *Scheduler) Stop() {
	s.regen.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
}

// OnDefeated schedules a single respawn after RespawnDelay. Further calls while a
// respawn is pending are ignored. attacker is the sender declared on the final blow.
func (s *Scheduler) OnDefeated(attacker string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.pending {
		return
	}
	state := s.store.Get()
	if !state.Defeated() {
		return
	}

	s.pending = true
	s.timer = time.AfterFunc(s.opts.RespawnDelay, s.respawn)
	slog.Info("boss defeated, respawn scheduled", "delay", s.opts.RespawnDelay, "attacker", attacker)

	s.publish(events.Event{
		Kind:      events.KindBossDefeated,
		HP:        state.HP,
		MaxHP:     state.MaxHP,
		Timestamp: state.LastUpdated,
		Attacker:  attacker,
	})
}

// State reports ALIVE, DEFEATED, or RESPAWNING.
func (s *Scheduler) State() Lifecycle {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	if pending {
		return Respawning
	}
	if s.store.Get().Defeated() {
		return Defeated
	}
	return Alive
}

func (s *Scheduler) respawn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.pending {
		return
	}
	s.pending = false
	s.timer = nil

	state := s.store.Respawn()
	metrics.RespawnsTotal.Inc()
	s.bcast.Broadcast()
	slog.Info("boss respawned", "hp", state.HP)

	s.publish(events.Event{
		Kind:      events.KindBossRespawned,
		HP:        state.HP,
		MaxHP:     state.MaxHP,
		Timestamp: state.LastUpdated,
	})
}

func (s *Scheduler) tick(context.Context) {
	state, changed := s.store.ApplyRegen(s.opts.RegenAmount)
	if !changed {
		return
	}
	metrics.RegenTicksTotal.Inc()
	s.bcast.Broadcast()
	slog.Debug("boss regenerated", "hp", state.HP)
}

func (s *Scheduler) publish(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish raid event", "kind", ev.Kind, "error", err)
	}
}
