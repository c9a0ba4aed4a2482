// Package raid ties the combat store, connection registry, broadcaster, limiter and
// scheduler into the engine that serves one shared boss.
package raid

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/belulok/quest-chain/internal/broadcast"
	"github.com/belulok/quest-chain/internal/combat"
	"github.com/belulok/quest-chain/internal/events"
	"github.com/belulok/quest-chain/internal/metrics"
	"github.com/belulok/quest-chain/internal/proto"
	"github.com/belulok/quest-chain/internal/ratelimit"
	"github.com/belulok/quest-chain/internal/scheduler"
	"github.com/belulok/quest-chain/internal/session"
	"github.com/belulok/quest-chain/internal/telemetry"
)

// Error frame texts sent back to the offending session.
const (
	MessageInvalidFormat = "Invalid message format"
	MessageRateLimited   = "rate limit exceeded"
)

// Engine is the single writer front door for attacks and connection lifecycle.
type Engine struct {
	store      *combat.Store
	registry   *session.Registry
	dispatcher *broadcast.Dispatcher
	limiter    *ratelimit.Limiter
	scheduler  *scheduler.Scheduler
	tracer     trace.Tracer
}

// Options configures an Engine. A nil Limiter disables rate limiting and a nil
// Publisher discards lifecycle events.
type Options struct {
	Limiter   *ratelimit.Limiter
	Publisher events.Publisher
	Schedule  scheduler.Options
}

// NewEngine assembles an Engine around store.
func NewEngine(store *combat.Store, opts Options) *Engine {
	registry := session.NewRegistry()
	dispatcher := broadcast.NewDispatcher(store, registry)
	return &Engine{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    opts.Limiter,
		scheduler:  scheduler.New(store, dispatcher, opts.Publisher, opts.Schedule),
		tracer:     telemetry.Tracer(),
	}
}

// Start begins regeneration and respawn handling.
func (e *Engine) Start(ctx context.Context) {
	e.scheduler.Start(ctx)
}

// StopScheduler halts all timers. No state change is produced after it returns.
func (e *Engine) StopScheduler() {
	e.scheduler.Stop()
}

// CloseSessions disconnects every client.
func (e *Engine) CloseSessions() {
	e.registry.CloseAll()
}

// State returns the current combat snapshot.
func (e *Engine) State() combat.CombatState {
	return e.store.Get()
}

// Lifecycle reports ALIVE, DEFEATED, or RESPAWNING.
func (e *Engine) Lifecycle() scheduler.Lifecycle {
	return e.scheduler.State()
}

// Sessions returns the number of connected clients.
func (e *Engine) Sessions() int {
	return e.registry.Len()
}

// Connect registers s and sends it the current snapshot directly.
func (e *Engine) Connect(s session.Session) error {
	err := e.dispatcher.Connect(s)
	slog.Info("client connected", "session_id", s.ID(), "remote", s.RemoteKey(), "sessions", e.registry.Len())
	return err
}

// Disconnect removes s from the broadcast set.
func (e *Engine) Disconnect(s session.Session) {
	if e.registry.Unregister(s.ID()) {
		slog.Info("client disconnected", "session_id", s.ID(), "sessions", e.registry.Len())
	}
}

// HandleMessage processes one inbound frame from s. Failures are reported to s only;
// they never close the connection or touch other sessions.
func (e *Engine) HandleMessage(ctx context.Context, s session.Session, raw []byte) {
	ctx, span := e.tracer.Start(ctx, "raid.attack",
		trace.WithAttributes(attribute.String("session.id", s.ID())))
	defer span.End()

	msg, err := proto.DecodeAttack(raw)
	if err != nil {
		metrics.AttacksTotal.WithLabelValues(metrics.AttackInvalid).Inc()
		span.SetStatus(codes.Error, err.Error())

		var verr *proto.ValidationError
		if errors.As(err, &verr) {
			slog.Debug("rejecting malformed frame", "session_id", s.ID(), "field", verr.Field, "reason", verr.Reason)
		}
		e.reply(s, MessageInvalidFormat)
		return
	}

	if err := e.limiter.Check(ctx, s.RemoteKey()); err != nil {
		metrics.AttacksTotal.WithLabelValues(metrics.AttackRateLimited).Inc()
		span.SetStatus(codes.Error, err.Error())
		e.reply(s, MessageRateLimited)
		return
	}

	state := e.store.ApplyDamage(msg.Damage)
	metrics.AttacksTotal.WithLabelValues(metrics.AttackApplied).Inc()
	span.SetAttributes(
		attribute.Float64("attack.declared_damage", msg.Damage),
		attribute.Int("boss.hp", state.HP),
	)
	slog.Debug("attack applied",
		"session_id", s.ID(), "sender", msg.Sender, "declared", msg.Damage, "hp", state.HP)

	e.dispatcher.Broadcast()

	if state.Defeated() {
		e.scheduler.OnDefeated(msg.Sender)
	}
}

func (e *Engine) reply(s session.Session, message string) {
	if err := e.dispatcher.SendError(s, message); err != nil {
		slog.Debug("failed to deliver error frame", "session_id", s.ID(), "error", err)
	}
}
