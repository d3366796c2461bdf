package db

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// User represents the schema for the "users" collection. Location holds the
// user's current position only: every accepted fix overwrites it in place,
// there is no history.
type User struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	Email             string               `bson:"email" json:"email"`
	Name              string               `bson:"name" json:"name"`
	Password          []byte               `bson:"password" json:"-"`
	Active            bool                 `bson:"active" json:"active"`
	Location          DBLocation           `bson:"location,omitempty" json:"location"`
	LocationUpdatedAt time.Time            `bson:"locationUpdatedAt,omitempty" json:"locationUpdatedAt,omitempty"`
	Friends           []primitive.ObjectID `bson:"friends,omitempty" json:"friends,omitempty"`
	CreatedAt         time.Time            `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	LastSeen          time.Time            `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
}

// Validate checks if the user data meets the required constraints
func (u *User) Validate() error {
	if len(u.Name) < 2 || len(u.Name) > 30 {
		return fmt.Errorf("name length must be between 2 and 30 characters")
	}
	if len(u.Email) < 5 || len(u.Email) > 254 {
		return fmt.Errorf("email length must be between 5 and 254 characters")
	}
	return nil
}

// NearbyUser pairs a user with its exact distance to the query center.
type NearbyUser struct {
	User       *User
	DistanceKm float64
}

// UserService provides methods to interact with the "users" collection.
type UserService struct {
	Collection *mongo.Collection
}

// NewUserService creates a new UserService.
func NewUserService(db *Database) *UserService {
	return &UserService{
		Collection: db.Database.Collection("users"),
	}
}

// InsertUser inserts a new User document.
func (s *UserService) InsertUser(ctx context.Context, user *User) (*mongo.InsertOneResult, error) {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}
	return s.Collection.InsertOne(ctx, user)
}

// GetUserByEmail retrieves a User by their email address.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.Collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a User by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	var user User
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates a User document by their ID.
func (s *UserService) UpdateUser(ctx context.Context, id primitive.ObjectID, update bson.M) (*mongo.UpdateResult, error) {
	return s.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
}

// CountUsers returns the total number of users.
func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}

// UpdateLocation overwrites the user's current location with a newer fix.
// A fix older than the stored one is discarded and reported as
// ErrStaleLocation: position updates must be applied in non-decreasing
// capturedAt order even if the transport reorders them. The previous position
// is gone once the update lands; nothing is historized.
func (s *UserService) UpdateLocation(
	ctx context.Context,
	id primitive.ObjectID,
	location DBLocation,
	capturedAt time.Time,
) error {
	result, err := s.Collection.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"$or": bson.A{
				bson.M{"locationUpdatedAt": bson.M{"$lt": capturedAt}},
				bson.M{"locationUpdatedAt": bson.M{"$exists": false}},
			},
		},
		bson.M{"$set": bson.M{
			"location":          location,
			"locationUpdatedAt": capturedAt,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		// Either the user does not exist or the stored fix is fresher.
		if _, err := s.GetUserByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleLocation
	}
	return nil
}

// SearchNearbyUsers retrieves active users within radiusKm of center, ordered
// by ascending distance and capped at DefaultMaxResults. The querying identity
// itself is always excluded. partialName, when non-empty, narrows candidates
// by a case-insensitive name match; it never changes the distance semantics.
//
// Same two-phase filter as post search: a cheap bounding box in the Mongo
// query, then the exact Haversine check on every candidate.
func (s *UserService) SearchNearbyUsers(
	ctx context.Context,
	center DBLocation,
	radiusKm float64,
	exclude primitive.ObjectID,
	partialName string,
) ([]*NearbyUser, error) {
	box := newBoundingBox(center, radiusKm)
	filter := bson.M{
		"_id":    bson.M{"$ne": exclude},
		"active": true,
	}
	box.applyTo(filter)
	if partialName != "" {
		pattern := ".*" + regexp.QuoteMeta(SanitizeString(partialName)) + ".*"
		filter["name"] = primitive.Regex{Pattern: pattern, Options: "i"}
	}

	cursor, err := s.Collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("error closing cursor")
		}
	}()

	var results []*NearbyUser
	for cursor.Next(ctx) {
		var user User
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		distance := HaversineDistanceKm(center, user.Location)
		if distance > radiusKm {
			continue
		}
		results = append(results, &NearbyUser{User: &user, DistanceKm: distance})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	if len(results) > DefaultMaxResults {
		results = results[:DefaultMaxResults]
	}
	return results, nil
}

// GetFriends returns the identities whose posts populate the user's friends
// feed. The friend graph itself is maintained by an external collaborator;
// this only reads it.
func (s *UserService) GetFriends(ctx context.Context, id primitive.ObjectID) ([]primitive.ObjectID, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Friends, nil
}

// AddFriend records a mutual friendship between two users.
func (s *UserService) AddFriend(ctx context.Context, userID, friendID primitive.ObjectID) error {
	if _, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"friends": friendID}},
	); err != nil {
		return err
	}
	_, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": friendID},
		bson.M{"$addToSet": bson.M{"friends": userID}},
	)
	return err
}
