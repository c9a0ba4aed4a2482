// Package client is a reconnecting raid client used by the CLI.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/belulok/quest-chain/internal/proto"
)

// ErrNotConnected is returned by Attack while no connection is open.
var ErrNotConnected = errors.New("client: not connected")

// Options configures a Client.
type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:3001/ws.
	URL               string
	ReconnectInterval time.Duration
	WriteTimeout      time.Duration
	Dialer            *websocket.Dialer

	OnState func(proto.GameStateMessage)
	OnError func(message string)
	// OnConnect runs after every successful dial, including reconnects.
	OnConnect func()
}

// Client keeps one websocket open, redialing after ReconnectInterval whenever it drops.
type Client struct {
	opts Options

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a Client. Nothing is dialed until Run.
func New(opts Options) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts}
}

// Run dials and reads until ctx is cancelled. It always returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("raid connection lost, reconnecting", "url", c.opts.URL, "in", c.opts.ReconnectInterval, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ReconnectInterval):
		}
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Attack sends one attack frame on the current connection.
func (c *Client) Attack(damage float64, sender string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteJSON(proto.AttackMessage{Type: proto.TypeAttack, Damage: damage, Sender: sender}); err != nil {
		return fmt.Errorf("client: send attack: %w", err)
	}
	return nil
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	slog.Info("connected to raid", "url", c.opts.URL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		slog.Debug("ignoring unparsable frame", "error", err)
		return
	}

	switch head.Type {
	case proto.TypeGameState:
		var msg proto.GameStateMessage
		if err := json.Unmarshal(frame, &msg); err == nil && c.opts.OnState != nil {
			c.opts.OnState(msg)
		}
	case proto.TypeError:
		var msg proto.ErrorMessage
		if err := json.Unmarshal(frame, &msg); err == nil && c.opts.OnError != nil {
			c.opts.OnError(msg.Message)
		}
	default:
		slog.Debug("ignoring frame", "type", head.Type)
	}
}
