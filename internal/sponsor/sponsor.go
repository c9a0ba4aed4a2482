// Package sponsor relays gas sponsorship requests to an external signer.
//
// The engine does not hold keys or talk to a chain; it validates, rate limits
// and forwards.
package sponsor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotConfigured is returned when no upstream signer is configured.
var ErrNotConfigured = errors.New("sponsorship is not configured")

// Sponsor turns client transaction bytes into sponsored transaction bytes.
type Sponsor interface {
	Sponsor(ctx context.Context, txBytes, sender string) (string, error)
}

// Request is the body accepted by the sponsorship endpoint and forwarded upstream.
type Request struct {
	TxBytes string `json:"txBytes"`
	Sender  string `json:"sender"`
}

// Response is the body returned to clients.
type Response struct {
	Success          bool   `json:"success"`
	SponsoredTxBytes string `json:"sponsoredTxBytes,omitempty"`
	Error            string `json:"error,omitempty"`
}

// HTTPSponsor forwards requests to an upstream signer speaking the same JSON shape.
type HTTPSponsor struct {
	url    string
	client *http.Client
}

// NewHTTPSponsor creates a relay to url. An empty url yields a relay that always
// fails with ErrNotConfigured.
func NewHTTPSponsor(url string, timeout time.Duration) *HTTPSponsor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSponsor{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Sponsor implements Sponsor.
func (s *HTTPSponsor) Sponsor(ctx context.Context, txBytes, sender string) (string, error) {
	if s.url == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(Request{TxBytes: txBytes, Sender: sender})
	if err != nil {
		return "", fmt.Errorf("encode sponsor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sponsor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sponsor upstream: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read sponsor response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode sponsor response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.SponsoredTxBytes == "" {
		if out.Error != "" {
			return "", fmt.Errorf("sponsor upstream rejected transaction: %s", out.Error)
		}
		return "", fmt.Errorf("sponsor upstream returned status %d", resp.StatusCode)
	}
	return out.SponsoredTxBytes, nil
}
