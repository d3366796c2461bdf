package feed

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/driftapp/drift-app-backend/api"
	"github.com/driftapp/drift-app-backend/db"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRefreshInterval is how often the current feed is re-queried so
	// expired posts fall out without user interaction.
	DefaultRefreshInterval = 30 * time.Second

	// centerBucketSize is the grid the query center is snapped to before it
	// counts as "moved". 1e-5 degree is roughly one meter, enough to absorb
	// GPS jitter without re-querying on every fix.
	centerBucketSize = 1e-5

	queryTimeout = 15 * time.Second
)

// center is a query center in degrees.
type center struct {
	lat, lng float64
}

// queryKey identifies one parameter combination. Results are cached per key;
// a result is only applied when its key still matches the current one.
type queryKey struct {
	mode      Mode
	bucketLat int64
	bucketLng int64
	radiusKm  float64
}

// Reconciler drives feed queries from the current mode, radius and position
// and exposes a consistent Snapshot:
//
//   - last request wins: a parameter change invalidates in-flight queries,
//     their late results are discarded;
//   - stale while revalidate: returning to a previously seen parameter
//     combination shows the cached set immediately while a fresh query runs;
//   - transient query errors keep the previous result set visible;
//   - nearby results are re-checked against the radius with the exact
//     distance before display, so an over-admitting server can never place a
//     too-far post on screen.
type Reconciler struct {
	querier Querier

	mu         sync.Mutex
	mode       Mode
	radiusKm   float64
	center     *center
	locErr     error
	generation uint64
	state      Snapshot
	cache      map[queryKey][]api.Post

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciler creates and starts a reconciler in nearby mode with the
// given radius. refreshInterval <= 0 falls back to DefaultRefreshInterval.
func NewReconciler(querier Querier, radiusKm float64, refreshInterval time.Duration) *Reconciler {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		querier:  querier,
		mode:     ModeNearby,
		radiusKm: radiusKm,
		cache:    make(map[queryKey][]api.Post),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.state = Snapshot{Mode: ModeNearby, WaitingForLocation: true}

	r.wg.Add(1)
	go r.refreshLoop(refreshInterval)
	return r
}

// Snapshot returns the current feed state. The returned slice must not be
// mutated.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetMode switches between the nearby and friends feeds. Results of queries
// started under the previous mode are discarded even if they arrive later.
func (r *Reconciler) SetMode(mode Mode) {
	r.mu.Lock()
	if r.mode == mode {
		r.mu.Unlock()
		return
	}
	r.mode = mode
	r.state.Mode = mode
	r.requeryLocked()
	r.mu.Unlock()
}

// SetRadius changes the nearby query radius.
func (r *Reconciler) SetRadius(radiusKm float64) {
	r.mu.Lock()
	if r.radiusKm == radiusKm {
		r.mu.Unlock()
		return
	}
	r.radiusKm = radiusKm
	r.requeryLocked()
	r.mu.Unlock()
}

// SetLocationError surfaces a position-acquisition failure. While nearby mode
// has no center yet the error shows instead of a bare waiting state; it clears
// as soon as a fix arrives through SetCenter.
func (r *Reconciler) SetLocationError(err error) {
	r.mu.Lock()
	r.locErr = err
	if r.mode == ModeNearby && r.center == nil {
		r.state.Err = err
	}
	r.mu.Unlock()
}

// SetCenter feeds a fresh position into the reconciler. Movement below the
// bucket size is absorbed; crossing into another bucket re-queries.
func (r *Reconciler) SetCenter(lat, lng float64) {
	r.mu.Lock()
	r.locErr = nil
	next := &center{lat: lat, lng: lng}
	if r.center != nil && bucket(r.center.lat) == bucket(lat) && bucket(r.center.lng) == bucket(lng) {
		// Same bucket: remember the precise position but keep the result set.
		r.center = next
		r.mu.Unlock()
		return
	}
	r.center = next
	r.requeryLocked()
	r.mu.Unlock()
}

// Refresh re-runs the current query without changing any parameter.
func (r *Reconciler) Refresh() {
	r.mu.Lock()
	r.requeryLocked()
	r.mu.Unlock()
}

// Close cancels in-flight queries and the refresh ticker and waits for the
// background work to drain.
func (r *Reconciler) Close() {
	r.cancel()
	r.wg.Wait()
}

// requeryLocked recomputes the snapshot for the current parameters and, when
// a query is possible, launches it under a fresh generation. Callers hold mu.
func (r *Reconciler) requeryLocked() {
	r.generation++
	generation := r.generation

	if r.mode == ModeNearby && r.center == nil {
		r.state = Snapshot{Mode: r.mode, WaitingForLocation: true, Err: r.locErr}
		return
	}

	key := r.keyLocked()
	if cached, ok := r.cache[key]; ok {
		// Seen these parameters before: stale-while-revalidate.
		r.state = Snapshot{Mode: r.mode, Posts: cached, IsRefreshing: true}
	} else {
		r.state = Snapshot{Mode: r.mode, Loading: true}
	}

	var queryCenter center
	if r.center != nil {
		queryCenter = *r.center
	}
	radiusKm := r.radiusKm
	mode := r.mode

	r.wg.Add(1)
	go r.query(generation, key, mode, queryCenter, radiusKm)
}

// query runs one feed query and applies the result if its generation is
// still current.
func (r *Reconciler) query(generation uint64, key queryKey, mode Mode, c center, radiusKm float64) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, queryTimeout)
	defer cancel()

	var posts []api.Post
	var err error
	switch mode {
	case ModeFriends:
		posts, err = r.querier.FriendsFeed(ctx)
	default:
		posts, err = r.querier.NearbyPosts(ctx, c.lat, c.lng, radiusKm)
		if err == nil {
			posts = filterByDistance(posts, c, radiusKm)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		// Parameters changed while the query was in flight.
		log.Debug().Uint64("generation", generation).Msg("discarding superseded feed result")
		return
	}
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		// Keep whatever was visible; only surface the error.
		r.state.Loading = false
		r.state.IsRefreshing = false
		r.state.Err = err
		return
	}
	r.cache[key] = posts
	r.state = Snapshot{Mode: mode, Posts: posts}
}

// refreshLoop periodically re-runs the current query so expired posts drop
// out of view even when nothing else changes.
func (r *Reconciler) refreshLoop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			if !(r.mode == ModeNearby && r.center == nil) {
				r.requeryLocked()
			}
			r.mu.Unlock()
		}
	}
}

// filterByDistance re-checks every nearby result against the radius with the
// exact distance. The filter is idempotent: applying it to an already correct
// result set changes nothing.
func filterByDistance(posts []api.Post, c center, radiusKm float64) []api.Post {
	queryCenter := db.NewDBLocation(c.lat, c.lng)
	filtered := posts[:0]
	for _, post := range posts {
		location := db.DBLocation{Type: post.Location.Type, Coordinates: post.Location.Coordinates}
		if db.HaversineDistanceKm(queryCenter, location) > radiusKm {
			log.Warn().Str("postId", post.ID).Msg("dropping post outside the query radius")
			continue
		}
		filtered = append(filtered, post)
	}
	return filtered
}

// keyLocked derives the cache key for the current parameters. Callers hold mu.
func (r *Reconciler) keyLocked() queryKey {
	key := queryKey{mode: r.mode}
	if r.mode == ModeNearby {
		key.bucketLat = bucket(r.center.lat)
		key.bucketLng = bucket(r.center.lng)
		key.radiusKm = r.radiusKm
	}
	return key
}

// bucket snaps a coordinate to the movement grid.
func bucket(deg float64) int64 {
	return int64(math.Round(deg / centerBucketSize))
}
