// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/reposcan/internal/domain/diff"
	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// RepoParams identifies a repository a user wants scanned.
type RepoParams struct {
	UserID  string
	RepoID  int64
	Name    string
	HTMLURL string
	GitURL  string
}

// Membership is the outcome of associating a user with a repository.
type Membership struct {
	Repo      model.Repository
	Created   bool // The record was inserted by this call.
	UserAdded bool // The user was not a member before this call.
}

// Removal is the outcome of disassociating a user from a repository.
type Removal struct {
	Remaining   int
	RepoDeleted bool
}

// SyncResult lists the repository IDs touched by SyncUserRepos.
type SyncResult struct {
	Added     []int64
	Removed   []int64
	Unchanged []int64
}

// RepoDirectory tracks which users registered which repositories and emits
// webhook tasks when a repository enters or leaves tracking.
type RepoDirectory struct {
	repos  driven.RepoStore
	users  driven.UserStore
	hooks  driven.HookQueue
	logger *slog.Logger
}

// NewRepoDirectory creates a RepoDirectory. hooks may be nil, in which case
// no webhook tasks are emitted.
func NewRepoDirectory(repos driven.RepoStore, users driven.UserStore, hooks driven.HookQueue, logger *slog.Logger) *RepoDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoDirectory{
		repos:  repos,
		users:  users,
		hooks:  hooks,
		logger: logger,
	}
}

// GetOrInsertRepo ensures the repository is tracked and the user is one of
// its members. The first registration of a repository inserts the record
// and enqueues webhook registration for p.HTMLURL.
func (d *RepoDirectory) GetOrInsertRepo(ctx context.Context, p RepoParams) (Membership, error) {
	existing, err := d.repos.Get(ctx, p.RepoID)
	if err != nil {
		d.logger.Error("repository lookup failed", "repo_id", p.RepoID, "error", err)
		return Membership{}, err
	}
	if existing != nil {
		return d.UserInRepo(ctx, p.UserID, p.RepoID)
	}

	created := true
	err = d.repos.Insert(ctx, model.NewRepository(p.RepoID, p.GitURL, p.Name, p.UserID))
	switch {
	case errors.Is(err, driven.ErrRepoAlreadyExists):
		// A concurrent registration inserted it first and owns the webhook.
		created = false
		d.logger.Info("repository inserted concurrently", "repo_id", p.RepoID)
	case err != nil:
		d.logger.Error("repository insert failed", "repo_id", p.RepoID, "error", err)
		return Membership{}, err
	default:
		d.logger.Info("repository inserted", "repo_id", p.RepoID, "name", p.Name, "user_id", p.UserID)
		d.enqueue(ctx, model.HookTask{
			Action:  model.HookActionRegister,
			UserID:  p.UserID,
			RepoID:  p.RepoID,
			HTMLURL: p.HTMLURL,
		})
	}

	m, err := d.UserInRepo(ctx, p.UserID, p.RepoID)
	if err != nil {
		return Membership{}, err
	}
	m.Created = created
	if created {
		// The insert seeded the user, so membership was new either way.
		m.UserAdded = true
	}

	return m, nil
}

// UserInRepo adds userID to the repository's users if it is not already a
// member. Returns driven.ErrRepoNotFound if the repository is not tracked.
func (d *RepoDirectory) UserInRepo(ctx context.Context, userID string, repoID int64) (Membership, error) {
	added, err := d.repos.AddUser(ctx, repoID, userID)
	if err != nil {
		d.logger.Error("add user to repo failed", "repo_id", repoID, "user_id", userID, "error", err)
		return Membership{}, err
	}

	repo, err := d.repos.Get(ctx, repoID)
	if err != nil {
		d.logger.Error("repository lookup failed", "repo_id", repoID, "error", err)
		return Membership{}, err
	}
	if repo == nil {
		// Deleted between the update and the read.
		return Membership{}, fmt.Errorf("read repository %d: %w", repoID, driven.ErrRepoNotFound)
	}

	if added {
		d.logger.Info("user added to repo", "repo_id", repoID, "user_id", userID)
	}

	return Membership{Repo: *repo, UserAdded: added}, nil
}

// RemoveUserFromRepo removes userID from the repository. When the last user
// leaves, the record is deleted and webhook deregistration is enqueued for
// htmlURL, or for the URL derived from the record's git_url when htmlURL is
// empty.
func (d *RepoDirectory) RemoveUserFromRepo(ctx context.Context, userID string, repoID int64, htmlURL string) (Removal, error) {
	if htmlURL == "" {
		if repo, err := d.repos.Get(ctx, repoID); err == nil && repo != nil {
			htmlURL = repo.HTMLURL()
		}
	}

	remaining, err := d.repos.RemoveUser(ctx, repoID, userID)
	if err != nil {
		d.logger.Error("remove user from repo failed", "repo_id", repoID, "user_id", userID, "error", err)
		return Removal{}, err
	}

	if remaining > 0 {
		d.logger.Info("user removed from repo and repo still exists", "repo_id", repoID, "user_id", userID, "remaining", remaining)
		return Removal{Remaining: remaining}, nil
	}

	deleted, err := d.repos.DeleteIfEmpty(ctx, repoID)
	if err != nil {
		d.logger.Error("delete empty repo failed", "repo_id", repoID, "error", err)
		return Removal{}, err
	}
	if !deleted {
		// Another user joined after the removal; the repository stays tracked.
		d.logger.Info("repository regained users before deletion", "repo_id", repoID)
		repo, err := d.repos.Get(ctx, repoID)
		if err != nil {
			d.logger.Error("repository lookup failed", "repo_id", repoID, "error", err)
			return Removal{}, err
		}
		if repo == nil {
			return Removal{}, nil
		}
		return Removal{Remaining: len(repo.Users)}, nil
	}

	d.logger.Info("last user removed, repository deleted", "repo_id", repoID, "user_id", userID)
	d.enqueue(ctx, model.HookTask{
		Action:  model.HookActionDeregister,
		UserID:  userID,
		RepoID:  repoID,
		HTMLURL: htmlURL,
	})

	return Removal{RepoDeleted: true}, nil
}

// RemoveRepo deletes the repository record regardless of its users and, in
// parallel, enqueues webhook deregistration with userID's token. The two are
// independent: a failure in one does not undo the other. Both failures are
// logged; the first is returned.
//
// An empty htmlURL is derived from the stored record's git_url. When no URL
// can be derived the record is still deleted but no deregistration is
// enqueued.
func (d *RepoDirectory) RemoveRepo(ctx context.Context, userID string, repoID int64, htmlURL string) error {
	if htmlURL == "" {
		repo, err := d.repos.Get(ctx, repoID)
		if err != nil {
			d.logger.Error("repository lookup failed", "repo_id", repoID, "error", err)
			return err
		}
		if repo != nil {
			htmlURL = repo.HTMLURL()
		}
	}

	var g errgroup.Group

	g.Go(func() error {
		if err := d.repos.Delete(ctx, repoID); err != nil {
			d.logger.Error("repository delete failed", "repo_id", repoID, "error", err)
			return err
		}
		d.logger.Info("repository deleted", "repo_id", repoID)
		return nil
	})

	g.Go(func() error {
		if d.hooks == nil {
			return nil
		}
		if htmlURL == "" {
			d.logger.Warn("no repository URL known, webhook left in place", "repo_id", repoID)
			return nil
		}
		task := model.HookTask{
			Action:  model.HookActionDeregister,
			UserID:  userID,
			RepoID:  repoID,
			HTMLURL: htmlURL,
		}
		if err := d.hooks.Enqueue(ctx, task); err != nil {
			d.logger.Error("enqueue hook task failed", "action", task.Action, "repo_id", repoID, "error", err)
			return fmt.Errorf("enqueue deregistration for repository %d: %w", repoID, err)
		}
		return nil
	})

	return g.Wait()
}

// FindAllReposByUser returns every repository userID belongs to.
func (d *RepoDirectory) FindAllReposByUser(ctx context.Context, userID string) ([]model.Repository, error) {
	repos, err := d.repos.ListByUser(ctx, userID)
	if err != nil {
		d.logger.Error("find all repos by user failed", "user_id", userID, "error", err)
		return nil, err
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	return repos, nil
}

// SyncUserRepos makes the user's tracked repositories equal to desired:
// repositories only in desired are registered, repositories only tracked
// are removed. Individual failures do not stop the sync; they are returned
// joined alongside the partial result.
func (d *RepoDirectory) SyncUserRepos(ctx context.Context, userID string, desired []RepoParams) (SyncResult, error) {
	current, err := d.FindAllReposByUser(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	currentIDs := make([]int64, 0, len(current))
	byID := make(map[int64]model.Repository, len(current))
	for _, repo := range current {
		currentIDs = append(currentIDs, repo.ID)
		byID[repo.ID] = repo
	}

	desiredIDs := make([]int64, 0, len(desired))
	params := make(map[int64]RepoParams, len(desired))
	for _, p := range desired {
		if _, dup := params[p.RepoID]; dup {
			continue
		}
		p.UserID = userID
		desiredIDs = append(desiredIDs, p.RepoID)
		params[p.RepoID] = p
	}

	delta := diff.Compare(currentIDs, desiredIDs)
	result := SyncResult{
		Added:     []int64{},
		Removed:   []int64{},
		Unchanged: delta.Intersect,
	}

	var errs []error
	for _, id := range delta.RightOnly {
		if _, err := d.GetOrInsertRepo(ctx, params[id]); err != nil {
			errs = append(errs, fmt.Errorf("add repository %d: %w", id, err))
			continue
		}
		result.Added = append(result.Added, id)
	}

	for _, id := range delta.LeftOnly {
		if _, err := d.RemoveUserFromRepo(ctx, userID, id, byID[id].HTMLURL()); err != nil {
			errs = append(errs, fmt.Errorf("remove repository %d: %w", id, err))
			continue
		}
		result.Removed = append(result.Removed, id)
	}

	d.logger.Info("user repositories synced",
		"user_id", userID,
		"added", len(result.Added),
		"removed", len(result.Removed),
		"unchanged", len(result.Unchanged),
		"failed", len(errs),
	)

	return result, errors.Join(errs...)
}

// SaveUserToken stores the access token used for the user's webhook calls.
func (d *RepoDirectory) SaveUserToken(ctx context.Context, userID, token string) error {
	if err := d.users.SaveToken(ctx, userID, token); err != nil {
		d.logger.Error("save user token failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// DeleteUser forgets the user's token. Repository memberships are left to
// RemoveUserFromRepo so webhook cleanup still runs with a valid token.
func (d *RepoDirectory) DeleteUser(ctx context.Context, userID string) error {
	if err := d.users.Delete(ctx, userID); err != nil {
		d.logger.Error("delete user failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// enqueue hands a task to the hook queue. Queue failures are logged and do
// not fail the data operation that produced the task.
func (d *RepoDirectory) enqueue(ctx context.Context, task model.HookTask) {
	if d.hooks == nil {
		return
	}
	if err := d.hooks.Enqueue(ctx, task); err != nil {
		d.logger.Error("enqueue hook task failed", "action", task.Action, "repo_id", task.RepoID, "error", err)
	}
}
