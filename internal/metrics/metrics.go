// Package metrics implements Prometheus metrics for the raid engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BossHP mirrors the in-memory boss hit points after every mutation
	BossHP = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "questchain_boss_hp",
			Help: "Current boss hit points",
		},
	)

	// AttacksTotal counts inbound attack frames by outcome
	AttacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questchain_attacks_total",
			Help: "Total number of attack messages by result (applied, rate_limited, invalid)",
		},
		[]string{"result"},
	)

	// DamageAppliedTotal sums clamped damage actually subtracted from the boss
	DamageAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questchain_damage_applied_total",
			Help: "Total hit points removed from the boss",
		},
	)

	// Sessions tracks currently registered websocket sessions
	Sessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "questchain_sessions",
			Help: "Number of registered client sessions",
		},
	)

	// BroadcastsTotal counts gameState fan-outs
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questchain_broadcasts_total",
			Help: "Total number of game state broadcasts",
		},
	)

	// SendFailuresTotal counts sessions dropped because a send failed
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questchain_send_failures_total",
			Help: "Total number of session sends that failed and evicted the session",
		},
	)

	// PersistenceErrorsTotal counts fail-open persistence errors by operation
	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questchain_persistence_errors_total",
			Help: "Total number of persistence backend errors (load, save)",
		},
		[]string{"op"},
	)

	// RateLimitDecisionsTotal counts limiter decisions
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questchain_ratelimit_decisions_total",
			Help: "Rate limiter decisions (allowed, rejected, fail_open)",
		},
		[]string{"decision"},
	)

	// RespawnsTotal counts boss respawns
	RespawnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questchain_respawns_total",
			Help: "Total number of boss respawns",
		},
	)

	// RegenTicksTotal counts regeneration ticks that changed hp
	RegenTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questchain_regen_ticks_total",
			Help: "Total number of regeneration ticks that healed the boss",
		},
	)
)

// Attack results
const (
	AttackApplied     = "applied"
	AttackRateLimited = "rate_limited"
	AttackInvalid     = "invalid"
)

// Rate limiter decisions
const (
	DecisionAllowed  = "allowed"
	DecisionRejected = "rejected"
	DecisionFailOpen = "fail_open"
)
