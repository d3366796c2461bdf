package api

import (
	"sync"
	"time"
)

const (
	// postBurst is the number of posts a user may create back to back.
	postBurst = 10
	// postRefillPerMinute is how many post tokens a user regains per minute.
	postRefillPerMinute = 2
)

// PostRateLimiter bounds how fast a single user can create posts.
type PostRateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket

	stopOnce sync.Once
	stopChan chan struct{}
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens per minute
	lastRefill time.Time
	mu         sync.Mutex
}

// NewPostRateLimiter creates a new rate limiter for post creation.
func NewPostRateLimiter() *PostRateLimiter {
	rl := &PostRateLimiter{
		buckets:  make(map[string]*TokenBucket),
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine to remove old buckets
	go rl.cleanup()

	return rl
}

// Stop terminates the background cleanup goroutine. The limiter itself keeps
// working; idle buckets are simply no longer evicted.
func (rl *PostRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens, refillRate int) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if the user may create another post right now.
func (rl *PostRateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	bucket, exists := rl.buckets[userID]
	if !exists {
		bucket = NewTokenBucket(postBurst, postRefillPerMinute)
		rl.buckets[userID] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow()
}

// Allow checks if a token can be consumed from the bucket
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	// Refill tokens based on elapsed time
	if elapsed > 0 {
		tokensToAdd := int(elapsed.Minutes()) * tb.refillRate
		if tokensToAdd > 0 {
			tb.tokens += tokensToAdd
			if tb.tokens > tb.maxTokens {
				tb.tokens = tb.maxTokens
			}
			tb.lastRefill = now
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// cleanup removes buckets that have been idle long enough to be full again.
func (rl *PostRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, bucket := range rl.buckets {
				bucket.mu.Lock()
				idle := now.Sub(bucket.lastRefill)
				bucket.mu.Unlock()
				if idle > time.Hour {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
