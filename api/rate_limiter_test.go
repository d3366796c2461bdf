package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketBurstAndRefill(t *testing.T) {
	bucket := NewTokenBucket(3, 2)

	// The burst is consumable back to back.
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow(), "empty bucket should deny")

	// A minute later two tokens are back.
	bucket.mu.Lock()
	bucket.lastRefill = time.Now().Add(-time.Minute)
	bucket.mu.Unlock()
	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())
}

func TestTokenBucketNeverOverfills(t *testing.T) {
	bucket := NewTokenBucket(3, 2)

	// Idle for an hour: the bucket refills to its cap, not beyond.
	bucket.mu.Lock()
	bucket.lastRefill = time.Now().Add(-time.Hour)
	bucket.mu.Unlock()

	for i := 0; i < 3; i++ {
		assert.True(t, bucket.Allow(), "allow %d", i)
	}
	assert.False(t, bucket.Allow())
}

func TestPostRateLimiterPerUser(t *testing.T) {
	limiter := NewPostRateLimiter()
	defer limiter.Stop()

	// One user draining their bucket does not affect another.
	for i := 0; i < postBurst; i++ {
		assert.True(t, limiter.Allow("alice"), "alice allow %d", i)
	}
	assert.False(t, limiter.Allow("alice"))
	assert.True(t, limiter.Allow("bob"))
}

func TestPostRateLimiterStop(t *testing.T) {
	limiter := NewPostRateLimiter()

	// Stop is idempotent and leaves the limiter itself functional.
	limiter.Stop()
	limiter.Stop()
	assert.True(t, limiter.Allow("alice"))
}
