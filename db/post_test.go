package db

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// insertPostAt inserts a post row with explicit timestamps, bypassing the
// InsertPost stamping, so tests can place rows anywhere on the TTL timeline.
func insertPostAt(
	c *qt.C,
	ctx context.Context,
	s *PostService,
	ownerID primitive.ObjectID,
	content string,
	location DBLocation,
	createdAt time.Time,
) *Post {
	post := &Post{
		OwnerID:   ownerID,
		Content:   content,
		Location:  location,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(PostTTL),
	}
	result, err := s.Collection.InsertOne(ctx, post)
	c.Assert(err, qt.IsNil)
	post.ID = result.InsertedID.(primitive.ObjectID)
	return post
}

func TestPostService(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	// Start MongoDB container
	container, err := StartMongoContainer(ctx)
	c.Assert(err, qt.IsNil, qt.Commentf("Failed to start MongoDB container"))
	defer func() { _ = container.Terminate(ctx) }()

	mongoURI, err := container.Endpoint(ctx, "mongodb")
	c.Assert(err, qt.IsNil, qt.Commentf("Failed to get MongoDB connection string"))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	c.Assert(err, qt.IsNil, qt.Commentf("Failed to create MongoDB client"))
	defer func() { _ = client.Disconnect(ctx) }()

	center := NewDBLocation(41.3851, 2.1734) // Barcelona

	newService := func(c *qt.C) *PostService {
		return NewPostService(&Database{
			Client:   client,
			Database: client.Database(RandomDatabaseName()),
		})
	}

	c.Run("Insert and Retrieve", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()

		post, err := postService.InsertPost(ctx, ownerID, "hello", center)
		c.Assert(err, qt.IsNil)
		c.Assert(post.ID, qt.Not(qt.Equals), primitive.NilObjectID)
		c.Assert(post.ExpiresAt, qt.Equals, post.CreatedAt.Add(PostTTL))

		retrieved, err := postService.GetPostByID(ctx, post.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(retrieved.Content, qt.Equals, "hello")
		c.Assert(retrieved.OwnerID, qt.Equals, ownerID)
	})

	c.Run("Expired Post Is Not Found", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()

		// Created 25h ago, expired 1h ago, row still physically present.
		expired := insertPostAt(c, ctx, postService, ownerID, "old", center,
			time.Now().Add(-25*time.Hour))

		_, err := postService.GetPostByID(ctx, expired.ID)
		c.Assert(err, qt.Equals, ErrPostNotFound)
	})

	c.Run("Spatial And TTL Filter In One Pass", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		now := time.Now()

		// In range and fresh: visible.
		visible := insertPostAt(c, ctx, postService, ownerID, "visible", center, now.Add(-time.Hour))
		// In range but expired: row present, must never surface.
		insertPostAt(c, ctx, postService, ownerID, "expired", center, now.Add(-25*time.Hour))
		// Fresh but ~20 km away: outside a 10 km radius.
		farAway := NewDBLocation(41.5651, 2.1734)
		insertPostAt(c, ctx, postService, ownerID, "far", farAway, now.Add(-time.Hour))

		results, err := postService.SearchNearbyPosts(ctx, center, 10, now)
		c.Assert(err, qt.IsNil)
		c.Assert(results, qt.HasLen, 1)
		c.Assert(results[0].Post.ID, qt.Equals, visible.ID)
		c.Assert(results[0].DistanceKm < 0.001, qt.IsTrue)
	})

	c.Run("Expiry Boundary Around TTL", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		now := time.Now()

		// One minute short of the TTL: still visible.
		fresh := insertPostAt(c, ctx, postService, ownerID, "fresh", center,
			now.Add(-PostTTL+time.Minute))
		// One minute past the TTL: gone from queries.
		insertPostAt(c, ctx, postService, ownerID, "stale", center,
			now.Add(-PostTTL-time.Minute))

		results, err := postService.SearchNearbyPosts(ctx, center, 10, now)
		c.Assert(err, qt.IsNil)
		c.Assert(results, qt.HasLen, 1)
		c.Assert(results[0].Post.ID, qt.Equals, fresh.ID)
	})

	c.Run("False Positive From Box Is Dropped", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		now := time.Now()

		// Diagonal corner of the 10 km box: passes the prefilter, fails the
		// exact distance check.
		box := newBoundingBox(center, 10)
		corner := NewDBLocation(box.maxLat, box.maxLong)
		c.Assert(HaversineDistanceKm(center, corner) > 10, qt.IsTrue)
		insertPostAt(c, ctx, postService, ownerID, "corner", corner, now.Add(-time.Hour))

		results, err := postService.SearchNearbyPosts(ctx, center, 10, now)
		c.Assert(err, qt.IsNil)
		c.Assert(results, qt.HasLen, 0)
	})

	c.Run("Search Across The Antimeridian", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		now := time.Now()

		// ~11 km apart, on opposite sides of the 180th meridian.
		fiji := NewDBLocation(-16.5, 179.95)
		acrossTheLine := NewDBLocation(-16.5, -179.95)
		c.Assert(HaversineDistanceKm(fiji, acrossTheLine) < 20, qt.IsTrue)

		visible := insertPostAt(c, ctx, postService, ownerID, "across the line", acrossTheLine, now.Add(-time.Hour))
		// Same hemisphere but well outside the radius.
		insertPostAt(c, ctx, postService, ownerID, "too far", NewDBLocation(-16.5, -178.0), now.Add(-time.Hour))

		results, err := postService.SearchNearbyPosts(ctx, fiji, 20, now)
		c.Assert(err, qt.IsNil)
		c.Assert(results, qt.HasLen, 1)
		c.Assert(results[0].Post.ID, qt.Equals, visible.ID)
	})

	c.Run("Ordering Newest First", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		now := time.Now()

		insertPostAt(c, ctx, postService, ownerID, "oldest", center, now.Add(-3*time.Hour))
		insertPostAt(c, ctx, postService, ownerID, "newest", center, now.Add(-time.Hour))
		insertPostAt(c, ctx, postService, ownerID, "middle", center, now.Add(-2*time.Hour))

		results, err := postService.SearchNearbyPosts(ctx, center, 10, now)
		c.Assert(err, qt.IsNil)
		c.Assert(results, qt.HasLen, 3)
		c.Assert(results[0].Post.Content, qt.Equals, "newest")
		c.Assert(results[1].Post.Content, qt.Equals, "middle")
		c.Assert(results[2].Post.Content, qt.Equals, "oldest")
	})

	c.Run("Delete Owner Checks", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		otherID := primitive.NewObjectID()

		post, err := postService.InsertPost(ctx, ownerID, "mine", center)
		c.Assert(err, qt.IsNil)

		// A non-owner cannot delete it.
		err = postService.DeletePost(ctx, post.ID, otherID)
		c.Assert(err, qt.Equals, ErrNotPostOwner)

		// The owner can.
		err = postService.DeletePost(ctx, post.ID, ownerID)
		c.Assert(err, qt.IsNil)

		// Deleting again reports not found.
		err = postService.DeletePost(ctx, post.ID, ownerID)
		c.Assert(err, qt.Equals, ErrPostNotFound)
	})

	c.Run("Posts By Owners", func(c *qt.C) {
		postService := newService(c)
		friendA := primitive.NewObjectID()
		friendB := primitive.NewObjectID()
		stranger := primitive.NewObjectID()
		now := time.Now()

		insertPostAt(c, ctx, postService, friendA, "from A", center, now.Add(-time.Hour))
		insertPostAt(c, ctx, postService, friendB, "from B", NewDBLocation(48.8566, 2.3522), now.Add(-2*time.Hour))
		insertPostAt(c, ctx, postService, stranger, "from stranger", center, now.Add(-time.Hour))
		// Expired friend post stays hidden.
		insertPostAt(c, ctx, postService, friendA, "expired from A", center, now.Add(-25*time.Hour))

		posts, err := postService.GetPostsByOwners(ctx, []primitive.ObjectID{friendA, friendB}, now)
		c.Assert(err, qt.IsNil)
		c.Assert(posts, qt.HasLen, 2)
		// Location does not matter for the friends feed, only ownership and TTL.
		c.Assert(posts[0].Content, qt.Equals, "from A")
		c.Assert(posts[1].Content, qt.Equals, "from B")
	})

	c.Run("Delete Expired Honors Cutoff", func(c *qt.C) {
		postService := newService(c)
		ownerID := primitive.NewObjectID()
		now := time.Now()

		// Expired 10 minutes ago and expired 1 minute ago.
		insertPostAt(c, ctx, postService, ownerID, "long gone", center,
			now.Add(-PostTTL-10*time.Minute))
		recent := insertPostAt(c, ctx, postService, ownerID, "just expired", center,
			now.Add(-PostTTL-time.Minute))

		// Cutoff 5 minutes in the past removes only the older row.
		deleted, err := postService.DeleteExpired(ctx, now.Add(-5*time.Minute))
		c.Assert(err, qt.IsNil)
		c.Assert(deleted, qt.Equals, int64(1))

		count, err := postService.CountPosts(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(count, qt.Equals, int64(1))

		// The surviving row is still invisible to queries.
		_, err = postService.GetPostByID(ctx, recent.ID)
		c.Assert(err, qt.Equals, ErrPostNotFound)
	})
}
