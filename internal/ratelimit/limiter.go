// Package ratelimit implements the fixed-window request limiter shared by the
// websocket attack path and the sponsor endpoint.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/belulok/quest-chain/internal/metrics"
)

// ErrLimitExceeded is returned by Check when a key has used up its window.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Counter increments the hit count of key inside a window of the given length
// and returns the count after incrementing. The first hit starts the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Options configures a Limiter.
type Options struct {
	Threshold int
	Window    time.Duration
	KeyPrefix string
	// Timeout bounds a single counter round trip. Zero means no extra bound.
	Timeout time.Duration
}

// Limiter decides whether a request identified by a client key may proceed.
type Limiter struct {
	counter Counter
	opts    Options
}

// New returns a Limiter over counter.
func New(counter Counter, opts Options) *Limiter {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "ratelimit:"
	}
	return &Limiter{counter: counter, opts: opts}
}

// Allow records a hit for clientKey and reports whether it is within the threshold.
// Counter failures fail open: the request is allowed and a warning is logged.
func (l *Limiter) Allow(ctx context.Context, clientKey string) bool {
	if l == nil {
		return true
	}
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	key := l.opts.KeyPrefix + clientKey
	count, err := l.counter.Incr(ctx, key, l.opts.Window)
	if err != nil {
		metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.DecisionFailOpen).Inc()
		slog.Warn("rate limit store unavailable, allowing request", "key", key, "error", err)
		return true
	}
	if count > int64(l.opts.Threshold) {
		metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.DecisionRejected).Inc()
		slog.Debug("rate limit exceeded", "key", key, "count", count, "threshold", l.opts.Threshold)
		return false
	}
	metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.DecisionAllowed).Inc()
	return true
}

// Check is Allow expressed as an error for callers that propagate failures.
func (l *Limiter) Check(ctx context.Context, clientKey string) error {
	if !l.Allow(ctx, clientKey) {
		return ErrLimitExceeded
	}
	return nil
}

// ClientKey reduces a remote address to the host part used as limiter identity.
// Ports are dropped so reconnects from the same host share one budget.
func ClientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}
