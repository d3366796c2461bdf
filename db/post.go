package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// PostTTL is the fixed lifetime of a post. It is a system constant, never
	// caller supplied, so content cannot outlive the platform's staleness
	// guarantee.
	PostTTL = 24 * time.Hour

	// DefaultMaxResults caps the number of entities a proximity query returns.
	// Radius and TTL both bound cardinality, so no pagination cursor is needed.
	DefaultMaxResults = 100

	// MaxPostContentLength is the maximum length of a post body in bytes.
	MaxPostContentLength = 2000
)

// Post represents the schema for the "posts" collection. ExpiresAt is stamped
// at creation time; a post is visible to queries only while ExpiresAt is in
// the future, independent of whether the sweep has physically removed it.
type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerID   primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Content   string             `bson:"content" json:"content"`
	Location  DBLocation         `bson:"location" json:"location"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expiresAt"`
}

// NearbyPost pairs a post with its exact distance to the query center.
// Computed at query time, never persisted.
type NearbyPost struct {
	Post       *Post
	DistanceKm float64
}

// PostService provides methods to interact with the "posts" collection.
type PostService struct {
	Collection *mongo.Collection
}

// NewPostService creates a new PostService.
func NewPostService(db *Database) *PostService {
	return &PostService{
		Collection: db.Database.Collection("posts"),
	}
}

// InsertPost inserts a new post, stamping CreatedAt with the current time and
// ExpiresAt with CreatedAt + PostTTL. The returned post carries the assigned ID
// and is immediately visible to queries.
func (s *PostService) InsertPost(ctx context.Context, ownerID primitive.ObjectID, content string, location DBLocation) (*Post, error) {
	now := time.Now()
	post := &Post{
		OwnerID:   ownerID,
		Content:   content,
		Location:  location,
		CreatedAt: now,
		ExpiresAt: now.Add(PostTTL),
	}
	result, err := s.Collection.InsertOne(ctx, post)
	if err != nil {
		return nil, err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		post.ID = oid
	}
	return post, nil
}

// GetPostByID retrieves a post by its ID. A post whose ExpiresAt has passed is
// reported as not found even if the sweep has not removed the row yet.
func (s *PostService) GetPostByID(ctx context.Context, id primitive.ObjectID) (*Post, error) {
	var post Post
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	if !post.ExpiresAt.After(time.Now()) {
		return nil, ErrPostNotFound
	}
	return &post, nil
}

// DeletePost deletes a post before its natural expiry. Only the owner may
// delete it; any other caller gets ErrNotPostOwner.
func (s *PostService) DeletePost(ctx context.Context, id, ownerID primitive.ObjectID) error {
	var post Post
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return ErrPostNotFound
	}
	if err != nil {
		return err
	}
	if post.OwnerID != ownerID {
		return ErrNotPostOwner
	}
	_, err = s.Collection.DeleteOne(ctx, bson.M{"_id": id, "ownerId": ownerID})
	return err
}

// SearchNearbyPosts retrieves unexpired posts within radiusKm of center,
// ordered newest first and capped at DefaultMaxResults.
//
// The filter runs in two phases. The Mongo query combines a cheap degree-space
// bounding box with the TTL condition in a single pass, so a post that is
// spatially in range but temporally expired is never returned. The bounding box
// may admit false positives near the boundary; the exact Haversine distance
// computed on every surviving candidate is the source of truth.
func (s *PostService) SearchNearbyPosts(
	ctx context.Context,
	center DBLocation,
	radiusKm float64,
	now time.Time,
) ([]*NearbyPost, error) {
	box := newBoundingBox(center, radiusKm)
	filter := bson.M{
		"expiresAt": bson.M{"$gt": now},
	}
	box.applyTo(filter)
	opts := options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := s.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("error closing cursor")
		}
	}()

	var results []*NearbyPost
	for cursor.Next(ctx) {
		var post Post
		if err := cursor.Decode(&post); err != nil {
			return nil, err
		}
		distance := HaversineDistanceKm(center, post.Location)
		if distance > radiusKm {
			continue
		}
		results = append(results, &NearbyPost{Post: &post, DistanceKm: distance})
		if len(results) >= DefaultMaxResults {
			break
		}
	}
	return results, cursor.Err()
}

// GetPostsByOwners retrieves the unexpired posts of the given owners, ordered
// newest first and capped at DefaultMaxResults. The TTL visibility rule is the
// same one SearchNearbyPosts applies.
func (s *PostService) GetPostsByOwners(
	ctx context.Context,
	ownerIDs []primitive.ObjectID,
	now time.Time,
) ([]*Post, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"ownerId":   bson.M{"$in": ownerIDs},
		"expiresAt": bson.M{"$gt": now},
	}
	opts := options.Find().
		SetSort(bson.D{
			{Key: "createdAt", Value: -1},
			{Key: "_id", Value: -1},
		}).
		SetLimit(DefaultMaxResults)

	cursor, err := s.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("error closing cursor")
		}
	}()

	var posts []*Post
	for cursor.Next(ctx) {
		var post Post
		if err := cursor.Decode(&post); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, cursor.Err()
}

// CountPosts returns the total number of post rows, expired or not.
func (s *PostService) CountPosts(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}

// DeleteExpired physically removes posts whose ExpiresAt is at or before the
// given cutoff. Visibility never depends on this: queries filter on ExpiresAt
// themselves, so a missed sweep cycle cannot resurrect expired content.
func (s *PostService) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.Collection.DeleteMany(ctx, bson.M{
		"expiresAt": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
