package db

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// defaultDatabaseName is the database used in production. Tests build a
// Database by hand with RandomDatabaseName for isolation.
const defaultDatabaseName = "drift"

// Database struct encapsulates MongoDB client and database.
type Database struct {
	Client      *mongo.Client
	Database    *mongo.Database
	PostService *PostService
	UserService *UserService
}

// New initializes a new MongoDB connection.
func New(uri string) (*Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	database := &Database{
		Client:   client,
		Database: client.Database(defaultDatabaseName),
	}
	database.PostService = NewPostService(database)
	database.UserService = NewUserService(database)
	return database, nil
}

// WithName returns a Database bound to the given database name on the same
// client. Used by tests to isolate each run.
func (db *Database) WithName(name string) *Database {
	named := &Database{
		Client:   db.Client,
		Database: db.Client.Database(name),
	}
	named.PostService = NewPostService(named)
	named.UserService = NewUserService(named)
	return named
}

// Close disconnects the MongoDB client.
func (db *Database) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// CreateTables initializes all collections and indexes.
func (db *Database) CreateTables() error {
	return InitializeDatabase(db)
}

// RandomDatabaseName returns a random database name, for test isolation.
func RandomDatabaseName() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "drift_test_" + hex.EncodeToString(b)
}

// SanitizeString removes all non-alphanumeric characters from a string,
// except for commas, dots, minus signs, underscores and spaces.
func SanitizeString(s string) string {
	reg := regexp.MustCompile(`[^a-zA-Z0-9,._\- ]+`)
	return reg.ReplaceAllString(s, "")
}
