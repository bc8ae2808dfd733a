package health

import (
	"context"
	"fmt"
	"net/http"
)

// MediaChecker verifies the media server serving narration clips is
// reachable. Any HTTP response counts; clip paths are checked lazily at
// playback time.
type MediaChecker struct {
	baseURL string
	client  *http.Client
}

// NewMediaChecker creates a media server reachability checker.
func NewMediaChecker(baseURL string) *MediaChecker {
	return &MediaChecker{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// Name returns the checker name.
func (m *MediaChecker) Name() string {
	return "media"
}

// Check issues a HEAD request against the media base URL.
func (m *MediaChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build media check request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("media server unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("media server returned %d", resp.StatusCode)
	}
	return nil
}
