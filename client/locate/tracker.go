package locate

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TrackerState is a point-in-time view of the tracker. Position is the
// last-known fix and survives acquisition errors: an error never blanks a
// previously known position, it only lands in Err.
type TrackerState struct {
	Position *Position
	Loading  bool
	Err      error
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// Source is the single position backend. Required.
	Source Source
	// CacheDir is where the last-known fix is persisted. Empty disables
	// persistence.
	CacheDir string
	// DeviceID keys the cache file. Empty generates a fresh UUID, which
	// effectively disables cache reuse across restarts.
	DeviceID string
	// AcquireOptions is used for the initial fix and for Refresh.
	AcquireOptions AcquireOptions
}

// Tracker maintains the device's current position. On startup it serves the
// cached last-known fix immediately and kicks off a fresh acquisition in the
// background; when the backend supports watching, continuous fixes keep the
// state current. Fixes are applied in capturedAt order: a fix older than the
// one already held is discarded regardless of arrival order.
type Tracker struct {
	source Source
	cache  *positionCache
	opts   AcquireOptions

	mu    sync.RWMutex
	state TrackerState

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates and starts a tracker. It returns immediately; the first
// fresh fix arrives asynchronously.
func NewTracker(conf TrackerConfig) *Tracker {
	deviceID := conf.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	t := &Tracker{
		source: conf.Source,
		opts:   conf.AcquireOptions,
		done:   make(chan struct{}),
	}
	if conf.CacheDir != "" {
		t.cache = newPositionCache(conf.CacheDir, deviceID)
		if cached := t.cache.Load(); cached != nil {
			t.state.Position = cached
		}
	}
	t.state.Loading = true

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.run(ctx)
	return t
}

// Snapshot returns the current tracker state.
func (t *Tracker) Snapshot() TrackerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Refresh forces a one-shot acquisition and applies the result. Useful on
// backends without watch support, where fixes otherwise never refresh.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.setLoading(true)
	fix, err := t.source.Acquire(ctx, t.opts)
	if err != nil {
		t.setError(err)
		return err
	}
	t.apply(fix)
	return nil
}

// Close tears down the watch and the background acquisition. It blocks until
// the background goroutine has exited, so no state mutation can race a
// closed tracker.
func (t *Tracker) Close() error {
	t.cancel()
	<-t.done
	return t.source.Close()
}

// run performs the initial acquisition and, when supported, consumes the
// continuous watch stream.
func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	fix, err := t.source.Acquire(ctx, t.opts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.setError(err)
	} else {
		t.apply(fix)
	}

	stream, err := t.source.Watch(ctx)
	if err == ErrWatchUnsupported {
		// Degraded mode: the state only moves on explicit Refresh calls.
		log.Debug().Msg("position backend has no watch support, running in one-shot mode")
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			t.setError(err)
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-stream:
			if !ok {
				return
			}
			t.apply(fix)
		}
	}
}

// apply installs a fix if it is newer than the one held; stale fixes are
// dropped. An applied fix clears any previous error and is persisted.
func (t *Tracker) apply(fix *Position) {
	if fix == nil {
		return
	}
	t.mu.Lock()
	if t.state.Position != nil && !fix.CapturedAt.After(t.state.Position.CapturedAt) {
		t.mu.Unlock()
		return
	}
	t.state.Position = fix
	t.state.Loading = false
	t.state.Err = nil
	cache := t.cache
	t.mu.Unlock()

	if cache != nil {
		if err := cache.Store(fix); err != nil {
			log.Warn().Err(err).Msg("could not persist last-known position")
		}
	}
}

func (t *Tracker) setError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Loading = false
	t.state.Err = err
}

func (t *Tracker) setLoading(loading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Loading = loading
}
