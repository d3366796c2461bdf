package db

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultSweepInterval is how often the sweeper looks for expired posts.
	DefaultSweepInterval = 10 * time.Minute

	// DefaultSweepGrace is how long past expiry a row is kept before physical
	// deletion. The buffer avoids races with in-flight queries reading a
	// slightly stale "now". Visibility is computed from expiresAt at query
	// time, so the grace only delays cleanup, never extends visibility.
	DefaultSweepGrace = 5 * time.Minute
)

// ExpiredPostSweeper manages the background task that physically removes
// expired posts. It is deliberately decoupled from query-time visibility:
// a missed sweep cycle never makes expired content visible again.
type ExpiredPostSweeper struct {
	database     *Database
	timeProvider TimeProvider
	stopChan     chan struct{}
	interval     time.Duration
	grace        time.Duration
	mu           sync.RWMutex // protects timeProvider, interval and grace
}

// NewExpiredPostSweeper creates a new sweeper with default interval and grace.
func NewExpiredPostSweeper(database *Database) *ExpiredPostSweeper {
	return &ExpiredPostSweeper{
		database:     database,
		timeProvider: RealTimeProvider{},
		stopChan:     make(chan struct{}),
		interval:     DefaultSweepInterval,
		grace:        DefaultSweepGrace,
	}
}

// SetInterval sets a custom sweep interval (useful for testing)
func (ps *ExpiredPostSweeper) SetInterval(interval time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval = interval
}

// SetGrace sets a custom grace period (useful for testing)
func (ps *ExpiredPostSweeper) SetGrace(grace time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.grace = grace
}

// SetTimeProvider sets a custom time provider (useful for testing)
func (ps *ExpiredPostSweeper) SetTimeProvider(tp TimeProvider) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.timeProvider = tp
}

// Start begins the sweeper background task
func (ps *ExpiredPostSweeper) Start() {
	log.Info().Msg("starting expired post sweeper")
	go ps.run()
}

// Stop gracefully stops the sweeper
func (ps *ExpiredPostSweeper) Stop() {
	log.Info().Msg("stopping expired post sweeper")
	close(ps.stopChan)
}

// run is the main loop that removes expired posts
func (ps *ExpiredPostSweeper) run() {
	ps.mu.RLock()
	interval := ps.interval
	ps.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ps.sweep(); err != nil {
				// Non-fatal: the next cycle retries, and visibility does not
				// depend on the sweep having run.
				log.Error().Err(err).Msg("error sweeping expired posts")
			}
		case <-ps.stopChan:
			log.Info().Msg("expired post sweeper stopped")
			return
		}
	}
}

// SweepNow removes expired posts immediately (for testing)
func (ps *ExpiredPostSweeper) SweepNow() error {
	return ps.sweep()
}

// sweep removes posts whose expiry lies more than grace in the past
func (ps *ExpiredPostSweeper) sweep() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ps.mu.RLock()
	cutoff := ps.timeProvider.Now().Add(-ps.grace)
	ps.mu.RUnlock()

	deleted, err := ps.database.PostService.DeleteExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Info().Int64("count", deleted).Msg("swept expired posts")
	}
	return nil
}
