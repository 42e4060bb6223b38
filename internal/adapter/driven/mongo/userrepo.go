package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

type userDocument struct {
	UserID      string    `bson:"userid"`
	AccessToken string    `bson:"accessToken"`
	UpdatedAt   time.Time `bson:"updated_at,omitempty"`
}

// UserRepo reads and writes the users collection. Tokens are stored as the
// OAuth login flow writes them, in the accessToken field.
type UserRepo struct {
	coll *mongo.Collection
}

// NewUserRepo creates a new UserRepo backed by the users collection of db.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{coll: db.Users()}
}

// AccessToken returns ("", nil) for unknown users.
func (r *UserRepo) AccessToken(ctx context.Context, userID string) (string, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, bson.M{"userid": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get token for user %q: %w", userID, err)
	}

	return doc.AccessToken, nil
}

// SaveToken upserts the user's token.
func (r *UserRepo) SaveToken(ctx context.Context, userID, token string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"userid": userID},
		bson.M{"$set": bson.M{"accessToken": token, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save token for user %q: %w", userID, err)
	}
	return nil
}

// Delete removes the user document.
func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"userid": userID}); err != nil {
		return fmt.Errorf("delete user %q: %w", userID, err)
	}
	return nil
}
