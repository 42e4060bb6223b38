package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
// A repository's users live in repository_users; the UNIQUE(repo_id, user_id)
// constraint keeps each user at most once per repository.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Get retrieves a repository and its users. Returns nil, nil if the
// repository does not exist.
func (r *RepoRepo) Get(ctx context.Context, repoID int64) (*model.Repository, error) {
	const query = `SELECT repo_id, git_url, name, scan_results, retire_results, parse_results, created_at
		FROM repositories WHERE repo_id = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, repoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", repoID, err)
	}

	users, err := listUsers(ctx, r.db.Reader, repoID)
	if err != nil {
		return nil, err
	}
	repo.Users = users

	return repo, nil
}

// Insert creates the repository row and its initial users in one transaction.
func (r *RepoRepo) Insert(ctx context.Context, repo model.Repository) error {
	scan, retire, parse, err := encodeResults(repo)
	if err != nil {
		return fmt.Errorf("insert repository %d: %w", repo.ID, err)
	}

	createdAt := repo.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRepo = `INSERT INTO repositories (repo_id, git_url, name, scan_results, retire_results, parse_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, insertRepo, repo.ID, repo.GitURL, repo.Name, scan, retire, parse,
		createdAt.Format("2006-01-02T15:04:05Z"))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert repository %d: %w", repo.ID, driven.ErrRepoAlreadyExists)
		}
		return fmt.Errorf("insert repository %d: %w", repo.ID, err)
	}

	const insertUser = `INSERT OR IGNORE INTO repository_users (repo_id, user_id) VALUES (?, ?)`
	for _, userID := range repo.Users {
		if _, err := tx.ExecContext(ctx, insertUser, repo.ID, userID); err != nil {
			return fmt.Errorf("insert user %q for repository %d: %w", userID, repo.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert repository %d: %w", repo.ID, err)
	}

	return nil
}

// AddUser inserts the membership row unless it already exists.
func (r *RepoRepo) AddUser(ctx context.Context, repoID int64, userID string) (bool, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRepo(ctx, tx, repoID); err != nil {
		return false, fmt.Errorf("add user %q to repository %d: %w", userID, repoID, err)
	}

	const query = `INSERT OR IGNORE INTO repository_users (repo_id, user_id) VALUES (?, ?)`
	result, err := tx.ExecContext(ctx, query, repoID, userID)
	if err != nil {
		return false, fmt.Errorf("add user %q to repository %d: %w", userID, repoID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit add user %q to repository %d: %w", userID, repoID, err)
	}

	return rows > 0, nil
}

// RemoveUser deletes the membership row and returns the remaining user count.
func (r *RepoRepo) RemoveUser(ctx context.Context, repoID int64, userID string) (int, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRepo(ctx, tx, repoID); err != nil {
		return 0, fmt.Errorf("remove user %q from repository %d: %w", userID, repoID, err)
	}

	const deleteQuery = `DELETE FROM repository_users WHERE repo_id = ? AND user_id = ?`
	if _, err := tx.ExecContext(ctx, deleteQuery, repoID, userID); err != nil {
		return 0, fmt.Errorf("remove user %q from repository %d: %w", userID, repoID, err)
	}

	var remaining int
	const countQuery = `SELECT COUNT(*) FROM repository_users WHERE repo_id = ?`
	if err := tx.QueryRowContext(ctx, countQuery, repoID).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("count users of repository %d: %w", repoID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remove user %q from repository %d: %w", userID, repoID, err)
	}

	return remaining, nil
}

// DeleteIfEmpty deletes the repository only when no membership rows remain.
func (r *RepoRepo) DeleteIfEmpty(ctx context.Context, repoID int64) (bool, error) {
	const query = `DELETE FROM repositories
		WHERE repo_id = ? AND NOT EXISTS (SELECT 1 FROM repository_users WHERE repo_id = ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, repoID, repoID)
	if err != nil {
		return false, fmt.Errorf("delete empty repository %d: %w", repoID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// Delete removes a repository by ID. Membership rows go with it through the
// foreign key cascade.
func (r *RepoRepo) Delete(ctx context.Context, repoID int64) error {
	const query = `DELETE FROM repositories WHERE repo_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, repoID)
	if err != nil {
		return fmt.Errorf("delete repository %d: %w", repoID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete repository %d: %w", repoID, driven.ErrRepoNotFound)
	}

	return nil
}

// ListByUser returns all repositories the user belongs to, ordered by ID.
func (r *RepoRepo) ListByUser(ctx context.Context, userID string) ([]model.Repository, error) {
	const query = `SELECT r.repo_id, r.git_url, r.name, r.scan_results, r.retire_results, r.parse_results, r.created_at
		FROM repositories r
		JOIN repository_users u ON u.repo_id = r.repo_id
		WHERE u.user_id = ?
		ORDER BY r.repo_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list repositories for user %q: %w", userID, err)
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	// Users are loaded after the cursor is drained so the reader connection is
	// not held across nested queries.
	for i := range repos {
		users, err := listUsers(ctx, r.db.Reader, repos[i].ID)
		if err != nil {
			return nil, err
		}
		repos[i].Users = users
	}

	return repos, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// requireRepo returns ErrRepoNotFound if no repository row exists for repoID.
func requireRepo(ctx context.Context, q queryer, repoID int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM repositories WHERE repo_id = ?`, repoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return driven.ErrRepoNotFound
	}
	if err != nil {
		return fmt.Errorf("look up repository %d: %w", repoID, err)
	}
	return nil
}

// listUsers returns the repository's users in insertion order.
func listUsers(ctx context.Context, q queryer, repoID int64) ([]string, error) {
	const query = `SELECT user_id FROM repository_users WHERE repo_id = ? ORDER BY id`

	rows, err := q.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("list users of repository %d: %w", repoID, err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var scan, retire, parse, createdAt string

	err := s.Scan(&repo.ID, &repo.GitURL, &repo.Name, &scan, &retire, &parse, &createdAt)
	if err != nil {
		return nil, err
	}

	if repo.ScanResults, err = decodeResultSet(scan); err != nil {
		return nil, fmt.Errorf("decode scan_results: %w", err)
	}
	if repo.RetireResults, err = decodeResultSet(retire); err != nil {
		return nil, fmt.Errorf("decode retire_results: %w", err)
	}
	if repo.ParseResults, err = decodeResultSet(parse); err != nil {
		return nil, fmt.Errorf("decode parse_results: %w", err)
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &repo, nil
}

func encodeResults(repo model.Repository) (scan, retire, parse string, err error) {
	if scan, err = encodeResultSet(repo.ScanResults); err != nil {
		return "", "", "", fmt.Errorf("encode scan_results: %w", err)
	}
	if retire, err = encodeResultSet(repo.RetireResults); err != nil {
		return "", "", "", fmt.Errorf("encode retire_results: %w", err)
	}
	if parse, err = encodeResultSet(repo.ParseResults); err != nil {
		return "", "", "", fmt.Errorf("encode parse_results: %w", err)
	}
	return scan, retire, parse, nil
}

// encodeResultSet stores a nil set as an empty JSON object.
func encodeResultSet(rs model.ResultSet) (string, error) {
	if rs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeResultSet(s string) (model.ResultSet, error) {
	rs := model.ResultSet{}
	if s == "" {
		return rs, nil
	}
	if err := json.Unmarshal([]byte(s), &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
