// Package feed keeps a client-side view of the post feed consistent with the
// server across mode switches, location changes and concurrent queries.
package feed

import (
	"context"

	"github.com/driftapp/drift-app-backend/api"
)

// Mode selects which feed is shown.
type Mode string

const (
	// ModeNearby shows unexpired posts around the device's position.
	ModeNearby Mode = "nearby"
	// ModeFriends shows the unexpired posts of the account's friends,
	// regardless of where they were posted.
	ModeFriends Mode = "friends"
)

// Querier is the server-side query surface the reconciler drives. The HTTP
// implementation lives in client/apiclient.
type Querier interface {
	NearbyPosts(ctx context.Context, lat, lng, radiusKm float64) ([]api.Post, error)
	NearbyUsers(ctx context.Context, lat, lng, radiusKm float64, term string) ([]api.NearbyUser, error)
	FriendsFeed(ctx context.Context) ([]api.Post, error)
}

// Snapshot is a point-in-time view of the feed.
//
// Loading means no result set exists yet for the current parameters.
// IsRefreshing means a cached set is shown while a fresh query runs.
// WaitingForLocation means nearby mode is selected but no position is known
// yet; no query runs until one arrives.
type Snapshot struct {
	Mode               Mode
	Posts              []api.Post
	Loading            bool
	IsRefreshing       bool
	WaitingForLocation bool
	Err                error
}
