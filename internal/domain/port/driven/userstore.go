package driven

import (
	"context"
	"errors"
)

// ErrEncryptionKeyNotSet is returned by UserStore operations that need to
// encrypt or decrypt a token when REPOSCAN_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set REPOSCAN_SECRET_KEY")

// UserStore defines the driven port for user access tokens.
// Tokens cross this boundary as plaintext; adapters own any at-rest encoding.
type UserStore interface {
	// AccessToken returns the user's token, or ("", nil) if the user or its
	// token is unknown.
	AccessToken(ctx context.Context, userID string) (string, error)

	// SaveToken stores or replaces the user's token.
	SaveToken(ctx context.Context, userID, token string) error

	// Delete removes the user record. Deleting an unknown user is not an error.
	Delete(ctx context.Context, userID string) error
}
