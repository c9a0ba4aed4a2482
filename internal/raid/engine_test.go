package raid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belulok/quest-chain/internal/combat"
	"github.com/belulok/quest-chain/internal/config"
	logpkg "github.com/belulok/quest-chain/internal/log"
	"github.com/belulok/quest-chain/internal/persistence"
	"github.com/belulok/quest-chain/internal/proto"
	"github.com/belulok/quest-chain/internal/ratelimit"
	"github.com/belulok/quest-chain/internal/scheduler"
)

type fakeSession struct {
	id     string
	remote string

	mu     sync.Mutex
	frames []map[string]any
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) RemoteKey() string { return f.remote }
func (f *fakeSession) Close() error      { return nil }

func (f *fakeSession) Send(frame []byte) error {
	var msg map[string]any
	if err := json.Unmarshal(frame, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) last() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeSession) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// syncBuffer is a log sink safe for the persister goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	out := &syncBuffer{}
	require.NoError(t, logpkg.InitWithWriter(config.LogConfig{Level: "warn", Format: "json"}, out))
	return out
}

type downBackend struct{}

func (downBackend) Name() string { return "down" }
func (downBackend) Load(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}
func (downBackend) Save(context.Context, string, int) error { return errors.New("connection refused") }
func (downBackend) Close() error                            { return nil }

func newEngine(t *testing.T, backend persistence.Backend, limiter *ratelimit.Limiter) *Engine {
	t.Helper()
	store, err := combat.NewStore(context.Background(), combat.DefaultOptions(), backend)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	e := NewEngine(store, Options{
		Limiter: limiter,
		Schedule: scheduler.Options{
			RegenAmount:   1,
			RegenInterval: time.Hour,
			RespawnDelay:  150 * time.Millisecond,
		},
	})
	e.Start(context.Background())
	t.Cleanup(e.StopScheduler)
	return e
}

func attack(damage any) []byte {
	frame, _ := json.Marshal(map[string]any{"type": "attack", "damage": damage, "sender": "0xabc"})
	return frame
}

func TestConnectSendsSnapshot(t *testing.T) {
	e := newEngine(t, nil, nil)
	s := &fakeSession{id: "a", remote: "10.0.0.1"}

	require.NoError(t, e.Connect(s))

	msg := s.last()
	require.NotNil(t, msg)
	assert.Equal(t, proto.TypeGameState, msg["type"])
	assert.Equal(t, 1000.0, msg["bossHP"])
	assert.Equal(t, 1000.0, msg["maxBossHP"])
	assert.Equal(t, 1, e.Sessions())
}

func TestAttackBroadcastsToAllSessions(t *testing.T) {
	e := newEngine(t, nil, nil)
	a := &fakeSession{id: "a", remote: "10.0.0.1"}
	b := &fakeSession{id: "b", remote: "10.0.0.2"}
	require.NoError(t, e.Connect(a))
	require.NoError(t, e.Connect(b))

	e.HandleMessage(context.Background(), a, attack(50))

	assert.Equal(t, 950, e.State().HP)
	assert.Equal(t, 950.0, a.last()["bossHP"])
	assert.Equal(t, 950.0, b.last()["bossHP"])
	assert.Equal(t, a.last()["timestamp"], b.last()["timestamp"])
}

func TestAttackClampsDeclaredDamage(t *testing.T) {
	e := newEngine(t, nil, nil)
	s := &fakeSession{id: "a", remote: "10.0.0.1"}
	require.NoError(t, e.Connect(s))

	e.HandleMessage(context.Background(), s, attack(1e9))
	assert.Equal(t, 900, e.State().HP)

	e.HandleMessage(context.Background(), s, attack(-5))
	assert.Equal(t, 899, e.State().HP)
}

func TestMalformedFrameRepliesOnlyToSender(t *testing.T) {
	e := newEngine(t, nil, nil)
	a := &fakeSession{id: "a", remote: "10.0.0.1"}
	b := &fakeSession{id: "b", remote: "10.0.0.2"}
	require.NoError(t, e.Connect(a))
	require.NoError(t, e.Connect(b))

	e.HandleMessage(context.Background(), a, []byte(`{"type":"attack","damage":"lots"}`))
	e.HandleMessage(context.Background(), a, []byte(`not json`))

	assert.Equal(t, 1000, e.State().HP)
	assert.Equal(t, proto.TypeError, a.last()["type"])
	assert.Equal(t, MessageInvalidFormat, a.last()["message"])
	assert.Equal(t, 1, b.count(), "other sessions only saw the connect snapshot")
	assert.Equal(t, 2, e.Sessions(), "connection stays open")
}

func TestRateLimitedAttackDoesNotMutate(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(0), ratelimit.Options{Threshold: 30, Window: time.Minute})
	e := newEngine(t, nil, limiter)
	s := &fakeSession{id: "a", remote: "10.0.0.9"}
	require.NoError(t, e.Connect(s))

	for i := 0; i < 30; i++ {
		e.HandleMessage(context.Background(), s, attack(1))
	}
	assert.Equal(t, 970, e.State().HP)

	e.HandleMessage(context.Background(), s, attack(1))
	assert.Equal(t, 970, e.State().HP)
	assert.Equal(t, proto.TypeError, s.last()["type"])
	assert.Equal(t, MessageRateLimited, s.last()["message"])
}

func TestAttackAppliedWhenPersistenceDown(t *testing.T) {
	logs := captureLogs(t)
	e := newEngine(t, downBackend{}, nil)
	s := &fakeSession{id: "a", remote: "10.0.0.1"}
	require.NoError(t, e.Connect(s))

	e.HandleMessage(context.Background(), s, attack(50))

	assert.Equal(t, 950, e.State().HP)
	assert.Equal(t, 950.0, s.last()["bossHP"])

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "persistence write failed")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.Contains(t, logs.String(), `"hp":950`)
}

func TestDefeatAndRespawn(t *testing.T) {
	e := newEngine(t, nil, nil)
	s := &fakeSession{id: "a", remote: "10.0.0.1"}
	require.NoError(t, e.Connect(s))

	for e.State().HP > 0 {
		e.HandleMessage(context.Background(), s, attack(100))
	}
	assert.Equal(t, 0.0, s.last()["bossHP"])
	assert.Equal(t, scheduler.Respawning, e.Lifecycle())

	require.Eventually(t, func() bool {
		last := s.last()
		return last != nil && last["bossHP"] == 1000.0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, scheduler.Alive, e.Lifecycle())
}

func TestDisconnect(t *testing.T) {
	e := newEngine(t, nil, nil)
	s := &fakeSession{id: "a", remote: "10.0.0.1"}
	require.NoError(t, e.Connect(s))

	e.Disconnect(s)
	e.HandleMessage(context.Background(), &fakeSession{id: "b", remote: "10.0.0.2"}, attack(10))

	assert.Equal(t, 0, e.Sessions())
	assert.Equal(t, 1, s.count())
}
