package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/belulok/quest-chain/internal/ratelimit"
	"github.com/belulok/quest-chain/internal/session"
)

// Engine is the raid side of a websocket session.
type Engine interface {
	Connect(s session.Session) error
	Disconnect(s session.Session)
	HandleMessage(ctx context.Context, s session.Session, raw []byte)
}

// Config holds transport limits.
type Config struct {
	CORSOrigin      string
	MaxPayloadBytes int64
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	SendQueue       int
}

func (c Config) withDefaults() Config {
	if c.CORSOrigin == "" {
		c.CORSOrigin = "*"
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 1 << 20
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	return c
}

// Handler upgrades HTTP requests and runs one session per connection.
type Handler struct {
	engine   Engine
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler for engine.
func NewHandler(engine Engine, cfg Config) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{engine: engine, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.CORSOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.cfg.CORSOrigin
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.NewString(), ratelimit.ClientKey(r.RemoteAddr), ws, h.cfg.SendQueue, h.cfg.WriteTimeout)

	ws.SetReadLimit(h.cfg.MaxPayloadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	go c.writePump(h.cfg.PongTimeout*9/10, func(err error) {
		slog.Debug("websocket write failed", "session_id", c.id, "error", err)
		h.engine.Disconnect(c)
		_ = c.Close()
	})

	if err := h.engine.Connect(c); err != nil {
		slog.Warn("failed to send initial snapshot", "session_id", c.id, "error", err)
	}

	// Attacks must not observe cancellation of the hijacked request.
	ctx := context.WithoutCancel(r.Context())
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read closed", "session_id", c.id, "error", err)
			}
			break
		}
		h.engine.HandleMessage(ctx, c, frame)
	}

	h.engine.Disconnect(c)
	_ = c.Close()
}
