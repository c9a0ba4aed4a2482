// Package ws serves raid sessions over gorilla websockets.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/belulok/quest-chain/internal/session"
)

// conn is a session.Session backed by one websocket connection. Writes go through a
// bounded queue drained by a single write pump.
type conn struct {
	id     string
	remote string
	ws     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
}

func newConn(id, remote string, ws *websocket.Conn, queue int, writeTimeout time.Duration) *conn {
	return &conn{
		id:           id,
		remote:       remote,
		ws:           ws,
		send:         make(chan []byte, queue),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

func (c *conn) ID() string        { return c.id }
func (c *conn) RemoteKey() string { return c.remote }

// Send never blocks. A full queue means the client is too slow to keep up.
func (c *conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return session.ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return session.ErrClosed
	default:
		return session.ErrQueueFull
	}
}

// Close marks the session closed and returns immediately. The write pump sends the
// close frame and tears down the socket, so callers holding broadcast locks never
// wait on a slow peer. Safe to call more than once.
func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump owns every write to the socket and closes it on exit.
func (c *conn) writePump(pingPeriod time.Duration, onFailure func(error)) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				onFailure(err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				onFailure(err)
				return
			}
		}
	}
}
