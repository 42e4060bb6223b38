package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

type repoDocument struct {
	RepoID    int64     `bson:"repo_id"`
	Info      repoInfo  `bson:"repo_info"`
	CreatedAt time.Time `bson:"created_at,omitempty"`
}

type repoInfo struct {
	GitURL        string   `bson:"git_url"`
	Name          string   `bson:"name"`
	ScanResults   bson.M   `bson:"scan_results"`
	RetireResults bson.M   `bson:"retire_results"`
	ParseResults  bson.M   `bson:"parse_results"`
	Users         []string `bson:"users"`
}

// RepoRepo is the MongoDB implementation of the RepoStore port interface.
// Membership changes use $addToSet and $pull so each update is atomic on
// its document.
type RepoRepo struct {
	coll *mongo.Collection
}

// NewRepoRepo creates a new RepoRepo backed by the Repos collection of db.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{coll: db.Repos()}
}

// Get returns nil, nil if no document has the given repo_id.
func (r *RepoRepo) Get(ctx context.Context, repoID int64) (*model.Repository, error) {
	var doc repoDocument
	err := r.coll.FindOne(ctx, bson.M{"repo_id": repoID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", repoID, err)
	}

	repo := doc.toModel()
	return &repo, nil
}

// Insert relies on the unique repo_id index to reject duplicates.
func (r *RepoRepo) Insert(ctx context.Context, repo model.Repository) error {
	doc := fromModel(repo)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert repository %d: %w", repo.ID, driven.ErrRepoAlreadyExists)
		}
		return fmt.Errorf("insert repository %d: %w", repo.ID, err)
	}

	return nil
}

// AddUser applies $addToSet on repo_info.users.
func (r *RepoRepo) AddUser(ctx context.Context, repoID int64, userID string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"repo_id": repoID},
		bson.M{"$addToSet": bson.M{"repo_info.users": userID}},
	)
	if err != nil {
		return false, fmt.Errorf("add user %q to repository %d: %w", userID, repoID, err)
	}
	if res.MatchedCount == 0 {
		return false, fmt.Errorf("add user %q to repository %d: %w", userID, repoID, driven.ErrRepoNotFound)
	}

	return res.ModifiedCount > 0, nil
}

// RemoveUser applies $pull and reads the post-update document to count the
// users left.
func (r *RepoRepo) RemoveUser(ctx context.Context, repoID int64, userID string) (int, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc repoDocument
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"repo_id": repoID},
		bson.M{"$pull": bson.M{"repo_info.users": userID}},
		opts,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("remove user %q from repository %d: %w", userID, repoID, driven.ErrRepoNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("remove user %q from repository %d: %w", userID, repoID, err)
	}

	return len(doc.Info.Users), nil
}

// DeleteIfEmpty matches only documents whose users array is empty.
func (r *RepoRepo) DeleteIfEmpty(ctx context.Context, repoID int64) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{
		"repo_id":         repoID,
		"repo_info.users": bson.M{"$size": 0},
	})
	if err != nil {
		return false, fmt.Errorf("delete empty repository %d: %w", repoID, err)
	}

	return res.DeletedCount > 0, nil
}

// Delete removes the document regardless of its users.
func (r *RepoRepo) Delete(ctx context.Context, repoID int64) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"repo_id": repoID})
	if err != nil {
		return fmt.Errorf("delete repository %d: %w", repoID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete repository %d: %w", repoID, driven.ErrRepoNotFound)
	}

	return nil
}

// ListByUser queries by array membership on repo_info.users.
func (r *RepoRepo) ListByUser(ctx context.Context, userID string) ([]model.Repository, error) {
	opts := options.Find().SetSort(bson.D{{Key: "repo_id", Value: 1}})

	cur, err := r.coll.Find(ctx, bson.M{"repo_info.users": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list repositories for user %q: %w", userID, err)
	}

	var docs []repoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode repositories for user %q: %w", userID, err)
	}

	repos := make([]model.Repository, 0, len(docs))
	for _, doc := range docs {
		repos = append(repos, doc.toModel())
	}

	return repos, nil
}

func fromModel(repo model.Repository) repoDocument {
	users := repo.Users
	if users == nil {
		users = []string{}
	}

	return repoDocument{
		RepoID: repo.ID,
		Info: repoInfo{
			GitURL:        repo.GitURL,
			Name:          repo.Name,
			ScanResults:   toBSON(repo.ScanResults),
			RetireResults: toBSON(repo.RetireResults),
			ParseResults:  toBSON(repo.ParseResults),
			Users:         users,
		},
		CreatedAt: repo.CreatedAt,
	}
}

func (d repoDocument) toModel() model.Repository {
	users := d.Info.Users
	if users == nil {
		users = []string{}
	}

	return model.Repository{
		ID:            d.RepoID,
		GitURL:        d.Info.GitURL,
		Name:          d.Info.Name,
		ScanResults:   fromBSON(d.Info.ScanResults),
		RetireResults: fromBSON(d.Info.RetireResults),
		ParseResults:  fromBSON(d.Info.ParseResults),
		Users:         users,
		CreatedAt:     d.CreatedAt,
	}
}

// toBSON stores a nil set as an empty subdocument so the field is always present.
func toBSON(rs model.ResultSet) bson.M {
	m := bson.M{}
	for k, v := range rs {
		m[k] = v
	}
	return m
}

func fromBSON(m bson.M) model.ResultSet {
	rs := model.ResultSet{}
	for k, v := range m {
		rs[k] = v
	}
	return rs
}
