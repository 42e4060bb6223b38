// Package mongo implements the store ports on a MongoDB document store.
// Records keep the document shape shared with the rest of the scanning
// system: {repo_id, repo_info: {git_url, name, *_results, users}}.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	reposCollection = "Repos"
	usersCollection = "users"

	// defaultDatabase is used when the connection string names no database.
	defaultDatabase = "development"
)

// DB wraps a connected client and the database named by the connection string.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, verifies the connection and ensures the indexes the
// adapters rely on exist.
func Connect(ctx context.Context, uri string) (*DB, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	name := cs.Database
	if name == "" {
		name = defaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := &DB{client: client, db: client.Database(name)}
	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return db, nil
}

// Name returns the database name in use.
func (db *DB) Name() string {
	return db.db.Name()
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	if err := db.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// Repos returns the repository collection.
func (db *DB) Repos() *mongo.Collection {
	return db.db.Collection(reposCollection)
}

// Users returns the user collection.
func (db *DB) Users() *mongo.Collection {
	return db.db.Collection(usersCollection)
}

// ensureIndexes makes repo_id unique and indexes membership lookups.
func (db *DB) ensureIndexes(ctx context.Context) error {
	_, err := db.Repos().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "repo_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "repo_info.users", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create repo indexes: %w", err)
	}

	_, err = db.Users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user index: %w", err)
	}

	return nil
}
