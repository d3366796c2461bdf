package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitializeDatabase ensures collections and indexes are ready for use.
func InitializeDatabase(db *Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return createIndexes(db, ctx)
}

// createIndexes creates all required indexes for collections
func createIndexes(db *Database, ctx context.Context) error {
	// User collection indexes
	userColl := db.Database.Collection("users")
	_, err := userColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index(),
		},
		{
			// Serves the bounding-box prefilter of nearby-user queries.
			Keys: bson.D{
				{Key: "location.coordinates.1", Value: 1},
				{Key: "location.coordinates.0", Value: 1},
			},
			Options: options.Index(),
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("error creating user indexes")
		return err
	}

	// Post collection indexes
	postColl := db.Database.Collection("posts")
	_, err = postColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
		{
			// Serves both query-time TTL filtering and the sweep.
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index(),
		},
		{
			Keys: bson.D{
				{Key: "location.coordinates.1", Value: 1},
				{Key: "location.coordinates.0", Value: 1},
				{Key: "expiresAt", Value: 1},
			},
			Options: options.Index(),
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("error creating post indexes")
		return err
	}

	log.Debug().Msg("all indexes created")
	return nil
}
