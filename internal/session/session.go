// Package session tracks the clients currently connected to the raid.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/belulok/quest-chain/internal/metrics"
)

var (
	// ErrClosed is returned when sending to a session that has already closed.
	ErrClosed = errors.New("session closed")
	// ErrQueueFull is returned when a session cannot keep up with outbound frames.
	ErrQueueFull = errors.New("session send queue full")
)

// Session is one live client connection.
type Session interface {
	// ID is unique for the lifetime of the process.
	ID() string
	// RemoteKey identifies the client for rate limiting.
	RemoteKey() string
	// Send queues a frame without blocking.
	Send(frame []byte) error
	Close() error
}

// Registry is the set of sessions eligible for broadcast.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register adds s. Registering the same id twice keeps the newest session.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.Sessions.Set(float64(n))
	slog.Debug("session registered", "session_id", s.ID(), "remote", s.RemoteKey(), "sessions", n)
}

// Unregister removes the session with id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if ok {
		metrics.Sessions.Set(float64(n))
		slog.Debug("session unregistered", "session_id", id, "sessions", n)
	}
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions at the time of the call.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SendAll delivers frame to every registered session. A session whose Send fails is
// unregistered and closed; the others are unaffected. It returns the delivered count.
func (r *Registry) SendAll(frame []byte) int {
	delivered := 0
	for _, s := range r.Snapshot() {
		if err := s.Send(frame); err != nil {
			r.Evict(s, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Evict drops s after a delivery failure.
func (r *Registry) Evict(s Session, cause error) {
	if !r.Unregister(s.ID()) {
		return
	}
	metrics.SendFailuresTotal.Inc()
	slog.Warn("dropping session after send failure", "session_id", s.ID(), "remote", s.RemoteKey(), "error", cause)
	_ = s.Close()
}

// CloseAll closes and unregisters every session. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	metrics.Sessions.Set(0)
}
