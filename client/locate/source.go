package locate

import (
	"context"
	"time"
)

// Position is a single geographic fix. CapturedAt is the moment the fix was
// taken, not the moment it was delivered; the two can diverge when the
// transport reorders or delays fixes.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracyM,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// AcquireOptions tunes a one-shot acquisition.
type AcquireOptions struct {
	// MaximumAge is how old a cached fix may be and still count as an answer.
	// Zero forces a fresh fix.
	MaximumAge time.Duration
	// Timeout bounds how long the backend may take. Zero means the backend
	// default.
	Timeout time.Duration
}

// Source is a position backend. Exactly one backend is selected at startup;
// the Tracker never mixes fixes from two sources.
//
// Watch returns ErrWatchUnsupported on backends that can only serve one-shot
// fixes; the Tracker then degrades to manual refreshes.
type Source interface {
	Acquire(ctx context.Context, opts AcquireOptions) (*Position, error)
	Watch(ctx context.Context) (<-chan *Position, error)
	Close() error
}
