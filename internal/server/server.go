// Package server exposes the raid engine over HTTP: the websocket endpoint, health
// and state probes, and the rate-limited sponsorship relay.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/belulok/quest-chain/internal/config"
	"github.com/belulok/quest-chain/internal/proto"
	"github.com/belulok/quest-chain/internal/raid"
	"github.com/belulok/quest-chain/internal/ratelimit"
	"github.com/belulok/quest-chain/internal/scheduler"
	"github.com/belulok/quest-chain/internal/sponsor"
	"github.com/belulok/quest-chain/internal/transport/ws"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StateResponse is returned by GET /api/raid/state.
type StateResponse struct {
	proto.GameStateMessage
	Lifecycle scheduler.Lifecycle `json:"lifecycle"`
	Sessions  int                 `json:"sessions"`
}

// Options carries the collaborators of a Server.
type Options struct {
	Engine  *raid.Engine
	Limiter *ratelimit.Limiter
	Sponsor sponsor.Sponsor
	Version string
}

// Server is the public HTTP listener.
type Server struct {
	cfg    config.ServerConfig
	opts   Options
	server *http.Server
	ln     net.Listener
}

// New creates a Server. Nothing is bound until Start.
func New(cfg config.ServerConfig, opts Options) *Server {
	if opts.Sponsor == nil {
		opts.Sponsor = sponsor.NewHTTPSponsor("", 0)
	}
	return &Server{cfg: cfg, opts: opts}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(s.opts.Engine, ws.Config{
		CORSOrigin:      s.cfg.CORSOrigin,
		MaxPayloadBytes: s.cfg.MaxPayloadBytes,
		WriteTimeout:    s.cfg.WriteTimeout,
		PongTimeout:     s.cfg.PongTimeout,
		SendQueue:       s.cfg.SendQueue,
	}))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/raid/state", s.handleState)
	mux.Handle("/api/sponsor", s.opts.Limiter.Middleware(sponsor.NewHandler(s.opts.Sponsor)))
	return cors(s.cfg.CORSOrigin, mux)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.ln = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("starting raid server", "addr", ln.Addr().String(), "max_connections", s.cfg.MaxConnections)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("raid server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Listen
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests. Hijacked websocket connections are not
// tracked by net/http and must be closed through the engine.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("raid server shutdown failed: %w", err)
	}
	slog.Info("raid server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.opts.Version})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	state := s.opts.Engine.State()
	writeJSON(w, http.StatusOK, StateResponse{
		GameStateMessage: proto.NewGameState(state.HP, state.MaxHP, state.LastUpdated),
		Lifecycle:        s.opts.Engine.Lifecycle(),
		Sessions:         s.opts.Engine.Sessions(),
	})
}

func cors(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		if origin != "*" {
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
