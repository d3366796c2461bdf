package locate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestHTTPSourceAcquire(t *testing.T) {
	c := qt.New(t)
	capturedAt := time.Now().Add(-time.Second).UTC().Truncate(time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Position{
			Latitude:   41.3851,
			Longitude:  2.1734,
			CapturedAt: capturedAt,
		})
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, nil)
	fix, err := s.Acquire(context.Background(), AcquireOptions{})
	c.Assert(err, qt.IsNil)
	c.Assert(fix.Latitude, qt.Equals, 41.3851)
	c.Assert(fix.CapturedAt.Equal(capturedAt), qt.IsTrue)
}

func TestHTTPSourcePermissionDenied(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, nil)
	_, err := s.Acquire(context.Background(), AcquireOptions{})
	c.Assert(err, qt.Equals, ErrPermissionDenied)
}

func TestHTTPSourceTimeoutComesFromAcquireOptions(t *testing.T) {
	c := qt.New(t)

	// The default client carries no fixed timeout that could fire before a
	// longer per-acquire deadline.
	s := NewHTTPSource("http://unused", nil)
	c.Assert(s.client.Timeout, qt.Equals, time.Duration(0))

	// A slow locator trips the per-acquire deadline and maps to the timeout
	// sentinel, not a raw transport error.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s = NewHTTPSource(srv.URL, nil)
	_, err := s.Acquire(context.Background(), AcquireOptions{Timeout: 50 * time.Millisecond})
	c.Assert(err, qt.Equals, ErrAcquisitionTimeout)
}

func TestHTTPSourceWatchUnsupported(t *testing.T) {
	c := qt.New(t)
	s := NewHTTPSource("http://unused", nil)
	_, err := s.Watch(context.Background())
	c.Assert(err, qt.Equals, ErrWatchUnsupported)
}
