package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
)

// Sentinel errors returned by RepoStore implementations.
var (
	// ErrRepoNotFound indicates the requested repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoAlreadyExists indicates a repository with the same ID already exists.
	ErrRepoAlreadyExists = errors.New("repository already exists")
)

// RepoStore defines the driven port for repository record persistence.
// Implementations must keep each record's user list free of duplicates and
// must apply AddUser, RemoveUser and DeleteIfEmpty atomically per record.
type RepoStore interface {
	// Get returns the repository with the given ID, or nil, nil if absent.
	Get(ctx context.Context, repoID int64) (*model.Repository, error)

	// Insert creates a new record. Returns ErrRepoAlreadyExists on a
	// duplicate ID.
	Insert(ctx context.Context, repo model.Repository) error

	// AddUser appends userID to the record's users if it is not already
	// present and reports whether it was added. Returns ErrRepoNotFound if the
	// repository does not exist.
	AddUser(ctx context.Context, repoID int64, userID string) (bool, error)

	// RemoveUser removes userID from the record's users and returns the number
	// of users left. Returns ErrRepoNotFound if the repository does not exist.
	RemoveUser(ctx context.Context, repoID int64, userID string) (int, error)

	// DeleteIfEmpty deletes the record only if it has no users and reports
	// whether a record was deleted.
	DeleteIfEmpty(ctx context.Context, repoID int64) (bool, error)

	// Delete removes the record regardless of its users. Returns
	// ErrRepoNotFound if nothing was deleted.
	Delete(ctx context.Context, repoID int64) error

	// ListByUser returns every record whose users contain userID, ordered by
	// repository ID.
	ListByUser(ctx context.Context, userID string) ([]model.Repository, error)
}
