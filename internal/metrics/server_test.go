package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesRaidMetrics(t *testing.T) {
	BossHP.Set(900)
	AttacksTotal.WithLabelValues(AttackApplied).Inc()

	srv := NewServer("127.0.0.1:0", "")
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "questchain_boss_hp 900")
	assert.Contains(t, string(body), `questchain_attacks_total{result="applied"}`)
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "/metrics").Stop(context.Background()))
}
