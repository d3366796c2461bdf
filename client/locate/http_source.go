package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPAcquireTimeout = 15 * time.Second

// HTTPSource acquires one-shot fixes from a locator endpoint. It cannot
// stream: Watch reports ErrWatchUnsupported and the Tracker degrades to
// manual refreshes.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSource creates a source against the given locator endpoint.
// A nil client falls back to a default without a client-level timeout: each
// Acquire is bounded by its own deadline from AcquireOptions, and a fixed
// client timeout would cut short acquisitions that ask for longer.
func NewHTTPSource(endpoint string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{endpoint: endpoint, client: client}
}

// Acquire fetches a single fix. A 403 from the locator means the user has
// not granted location access and maps to ErrPermissionDenied.
func (s *HTTPSource) Acquire(ctx context.Context, opts AcquireOptions) (*Position, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPAcquireTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := s.endpoint
	if opts.MaximumAge > 0 {
		url = fmt.Sprintf("%s?maximumAgeMs=%d", s.endpoint, opts.MaximumAge.Milliseconds())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrAcquisitionTimeout
		}
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, ErrPermissionDenied
	default:
		return nil, fmt.Errorf("locator returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var fix Position
	if err := json.Unmarshal(body, &fix); err != nil {
		return nil, fmt.Errorf("invalid fix payload: %w", err)
	}
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = time.Now()
	}
	return &fix, nil
}

// Watch is not available on the one-shot backend.
func (s *HTTPSource) Watch(_ context.Context) (<-chan *Position, error) {
	return nil, ErrWatchUnsupported
}

// Close is a no-op, the source holds no long-lived resources.
func (s *HTTPSource) Close() error { return nil }
