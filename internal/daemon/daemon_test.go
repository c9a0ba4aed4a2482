package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belulok/quest-chain/internal/proto"
)

func writeConfig(t *testing.T, dir, level string) string {
	t.Helper()
	content := `
questchain:
  server:
    listen: "127.0.0.1:0"
  raid:
    regen_interval: "1h"
  persistence:
    backend: file
    options:
      dir: ` + filepath.Join(dir, "state") + `
  control:
    pid_file: ` + filepath.Join(dir, "questchain.pid") + `
  log:
    level: ` + level + `
    format: text
  metrics:
    enabled: false
`
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDaemonStartStopIntegration(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "info")
	pidFile := filepath.Join(dir, "questchain.pid")

	d, err := New(configPath, "test")
	require.NoError(t, err)
	require.NoError(t, d.Start())

	pid, err := ReadPIDFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", d.Addr()))
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])

	c, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", d.Addr()), nil)
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var state proto.GameStateMessage
	require.NoError(t, c.ReadJSON(&state))
	assert.Equal(t, 1000, state.BossHP)

	require.NoError(t, c.WriteJSON(proto.AttackMessage{Type: proto.TypeAttack, Damage: 50, Sender: "0xabc"}))
	require.NoError(t, c.ReadJSON(&state))
	assert.Equal(t, 950, state.BossHP)

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()
	time.Sleep(50 * time.Millisecond)
	d.TriggerShutdown()

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err), "PID file must be removed after shutdown")

	data, err := os.ReadFile(filepath.Join(dir, "state", "boss_hp"))
	require.NoError(t, err)
	assert.Equal(t, "950", strings.TrimSpace(string(data)), "last state is flushed on shutdown")

	// restart restores the persisted hp
	d2, err := New(configPath, "test")
	require.NoError(t, err)
	require.NoError(t, d2.Start())
	defer d2.Stop()
	assert.Equal(t, 950, d2.store.Get().HP)
}

func TestDaemonReloadLogLevel(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "info")

	d, err := New(configPath, "test")
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	writeConfig(t, dir, "debug")
	require.NoError(t, d.Reload())
	assert.Equal(t, "debug", d.config.Log.Level)
}

func TestDaemonRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("questchain:\n  raid:\n    max_hp: -1\n"), 0o644))

	_, err := New(path, "test")
	assert.Error(t, err)
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.pid")

	_, err := ReadPIDFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = ReadPIDFile(path)
	assert.Error(t, err)

	require.NoError(t, writePIDFile(path))
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, removePIDFile(path))
	require.NoError(t, removePIDFile(path))
}
