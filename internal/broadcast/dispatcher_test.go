package broadcast

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belulok/quest-chain/internal/combat"
	"github.com/belulok/quest-chain/internal/proto"
	"github.com/belulok/quest-chain/internal/session"
)

type staticSource struct {
	state combat.CombatState
}

func (s staticSource) Get() combat.CombatState { return s.state }

// racingSource runs onFirstRead the first time the state is read, while that read
// is still in progress.
type racingSource struct {
	mu          sync.Mutex
	state       combat.CombatState
	fired       atomic.Bool
	onFirstRead func()
}

func (r *racingSource) Get() combat.CombatState {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	if r.onFirstRead != nil && r.fired.CompareAndSwap(false, true) {
		r.onFirstRead()
	}
	return state
}

func (r *racingSource) setHP(hp int) {
	r.mu.Lock()
	r.state.HP = hp
	r.mu.Unlock()
}

type recordingSession struct {
	id   string
	fail error

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (r *recordingSession) ID() string        { return r.id }
func (r *recordingSession) RemoteKey() string { return "127.0.0.1" }

func (r *recordingSession) Send(frame []byte) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	return nil
}

func (r *recordingSession) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

func (r *recordingSession) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func decode(t *testing.T, frame []byte) proto.GameStateMessage {
	t.Helper()
	var msg proto.GameStateMessage
	require.NoError(t, json.Unmarshal(frame, &msg))
	return msg
}

func TestBroadcastDeliversIdenticalFrames(t *testing.T) {
	registry := session.NewRegistry()
	sessions := []*recordingSession{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, s := range sessions {
		registry.Register(s)
	}

	at := time.UnixMilli(1_700_000_000_000)
	d := NewDispatcher(staticSource{combat.CombatState{HP: 950, MaxHP: 1000, LastUpdated: at}}, registry)

	assert.Equal(t, 3, d.Broadcast())
	for _, s := range sessions {
		require.Len(t, s.frames, 1)
		msg := decode(t, s.frames[0])
		assert.Equal(t, proto.TypeGameState, msg.Type)
		assert.Equal(t, 950, msg.BossHP)
		assert.Equal(t, 1000, msg.MaxBossHP)
		assert.Equal(t, at.UnixMilli(), msg.Timestamp)
	}
	assert.Equal(t, sessions[0].frames[0], sessions[2].frames[0])
}

func TestBroadcastDropsFailedSession(t *testing.T) {
	registry := session.NewRegistry()
	ok := &recordingSession{id: "ok"}
	broken := &recordingSession{id: "broken", fail: session.ErrClosed}
	registry.Register(ok)
	registry.Register(broken)

	d := NewDispatcher(staticSource{combat.CombatState{HP: 1, MaxHP: 1000}}, registry)

	assert.Equal(t, 1, d.Broadcast())
	assert.Equal(t, 1, registry.Len())
	assert.True(t, broken.closed)
	assert.Len(t, ok.frames, 1)
}

func TestSendSnapshotAndError(t *testing.T) {
	registry := session.NewRegistry()
	s := &recordingSession{id: "s"}
	registry.Register(s)
	d := NewDispatcher(staticSource{combat.CombatState{HP: 10, MaxHP: 1000}}, registry)

	require.NoError(t, d.SendSnapshot(s))
	require.NoError(t, d.SendError(s, "bad frame"))

	require.Len(t, s.frames, 2)
	assert.Equal(t, 10, decode(t, s.frames[0]).BossHP)

	var errMsg proto.ErrorMessage
	require.NoError(t, json.Unmarshal(s.frames[1], &errMsg))
	assert.Equal(t, "bad frame", errMsg.Message)
}

func TestConnectSnapshotPrecedesConcurrentBroadcast(t *testing.T) {
	registry := session.NewRegistry()
	source := &racingSource{state: combat.CombatState{HP: 900, MaxHP: 1000}}
	d := NewDispatcher(source, registry)

	broadcasted := make(chan struct{})
	source.onFirstRead = func() {
		// An attack lands and broadcasts while the snapshot is being built.
		go func() {
			source.setHP(800)
			d.Broadcast()
			close(broadcasted)
		}()
		time.Sleep(50 * time.Millisecond)
	}

	s := &recordingSession{id: "late"}
	require.NoError(t, d.Connect(s))

	select {
	case <-broadcasted:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent broadcast never completed")
	}

	frames := s.snapshot()
	require.Len(t, frames, 2)
	assert.Equal(t, 900, decode(t, frames[0]).BossHP, "snapshot arrives first")
	assert.Equal(t, 800, decode(t, frames[1]).BossHP, "last frame matches the store")
	assert.Equal(t, 1, registry.Len())
}

func TestConnectEvictsWhenSnapshotFails(t *testing.T) {
	registry := session.NewRegistry()
	d := NewDispatcher(staticSource{combat.CombatState{HP: 10, MaxHP: 1000}}, registry)

	s := &recordingSession{id: "broken", fail: session.ErrQueueFull}
	assert.ErrorIs(t, d.Connect(s), session.ErrQueueFull)
	assert.Equal(t, 0, registry.Len())
	assert.True(t, s.closed)
}
