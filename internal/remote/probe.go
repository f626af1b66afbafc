package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prudhvinik1/floorsync/internal/auth"
)

// HTTPProber drives the connectivity monitor with a bearer-authenticated
// HEAD request against the remote store's base endpoint. It checks existence
// only; it never fetches data.
type HTTPProber struct {
	url      string
	minter   *auth.TokenMinter
	deviceID string
	userID   string
	client   *http.Client
}

func NewHTTPProber(url string, minter *auth.TokenMinter, deviceID, userID string) *HTTPProber {
	return &HTTPProber{
		url:      url,
		minter:   minter,
		deviceID: deviceID,
		userID:   userID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	token, err := p.minter.Mint(p.deviceID, p.userID)
	if err != nil {
		return fmt.Errorf("failed to mint probe token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// PingProber probes the remote store's own connection instead of an HTTP
// endpoint. Used when no health URL is configured.
type PingProber struct {
	ping func(ctx context.Context) error
}

func NewPingProber(ping func(ctx context.Context) error) *PingProber {
	return &PingProber{ping: ping}
}

func (p *PingProber) Probe(ctx context.Context) error {
	return p.ping(ctx)
}
