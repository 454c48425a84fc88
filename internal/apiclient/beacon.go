package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Beacon posts the session-end notification on its own short-lived HTTP
// client. It skips the rate limiter and never retries, so teardown is not held
// up behind queued requests.
type Beacon struct {
	client     *Client
	httpClient *http.Client
}

// NewBeacon returns a Beacon bound to c's base URL.
func NewBeacon(c *Client, timeout time.Duration) *Beacon {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Beacon{
		client:     c,
		httpClient: &http.Client{Timeout: timeout, Transport: c.cfg.Transport},
	}
}

// Send fires one notification for sessionID.
func (b *Beacon) Send(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.client.SessionEndURL(sessionID), http.NoBody)
	if err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	req.Header.Set("User-Agent", b.client.cfg.UserAgent)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("beacon: unexpected status %d", resp.StatusCode)
	}
	return nil
}
