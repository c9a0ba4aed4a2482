package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/belulok/quest-chain/internal/daemon"
	"github.com/belulok/quest-chain/internal/server"
)

// StatusClient queries a running server over HTTP. Defined as an interface for mocking.
type StatusClient interface {
	Health(ctx context.Context) (server.HealthResponse, error)
	State(ctx context.Context) (server.StateResponse, error)
}

// DaemonController signals a local daemon through its PID file.
type DaemonController interface {
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
}

type httpStatusClient struct {
	base   string
	client *http.Client
}

func newHTTPStatusClient(base string) *httpStatusClient {
	return &httpStatusClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpStatusClient) Health(ctx context.Context) (server.HealthResponse, error) {
	var out server.HealthResponse
	err := c.get(ctx, "/healthz", &out)
	return out, err
}

func (c *httpStatusClient) State(ctx context.Context) (server.StateResponse, error) {
	var out server.StateResponse
	err := c.get(ctx, "/api/raid/state", &out)
	return out, err
}

func (c *httpStatusClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type pidController struct {
	pidFile string
	timeout time.Duration
}

func (p pidController) Stop(context.Context) error {
	return daemon.SignalStop(p.pidFile, p.timeout)
}

func (p pidController) Reload(context.Context) error {
	return daemon.SignalReload(p.pidFile)
}
