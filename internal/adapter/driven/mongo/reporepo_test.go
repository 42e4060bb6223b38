package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
	"github.com/ericfisherdev/reposcan/internal/domain/port/driven"
)

func TestRepoRepo_InsertDocumentShape(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepoRepo(db)
	ctx := context.Background()

	require.NoError(t, repos.Insert(ctx, model.NewRepository(42, "git://x", "x", "a")))

	var raw bson.M
	require.NoError(t, db.Repos().FindOne(ctx, bson.M{"repo_id": int64(42)}).Decode(&raw))

	info, ok := raw["repo_info"].(bson.M)
	require.True(t, ok, "repo_info should be a subdocument")
	assert.Equal(t, "git://x", info["git_url"])
	assert.Equal(t, "x", info["name"])
	assert.Equal(t, bson.A{"a"}, info["users"])
	assert.Equal(t, bson.M{}, info["scan_results"])
	assert.Equal(t, bson.M{}, info["retire_results"])
	assert.Equal(t, bson.M{}, info["parse_results"])

	count, err := db.Repos().CountDocuments(ctx, bson.M{"repo_id": int64(42)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepoRepo_Insert_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepoRepo(db)
	ctx := context.Background()

	require.NoError(t, repos.Insert(ctx, model.NewRepository(1, "git://x", "x", "alice")))

	err := repos.Insert(ctx, model.NewRepository(1, "git://x", "x", "bob"))
	assert.ErrorIs(t, err, driven.ErrRepoAlreadyExists)
}

func TestRepoRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepoRepo(db)

	got, err := repos.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepoRepo_Membership(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepoRepo(db)
	ctx := context.Background()

	require.NoError(t, repos.Insert(ctx, model.NewRepository(1, "git://x", "x", "alice")))

	added, err := repos.AddUser(ctx, 1, "bob")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repos.AddUser(ctx, 1, "bob")
	require.NoError(t, err)
	assert.False(t, added)

	got, err := repos.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Users)

	remaining, err := repos.RemoveUser(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	deleted, err := repos.DeleteIfEmpty(ctx, 1)
	require.NoError(t, err)
	assert.False(t, deleted)

	remaining, err = repos.RemoveUser(ctx, 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	deleted, err = repos.DeleteIfEmpty(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestRepoRepo_MissingRepo(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepoRepo(db)
	ctx := context.Background()

	_, err := repos.AddUser(ctx, 404, "alice")
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)

	_, err = repos.RemoveUser(ctx, 404, "alice")
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)

	err = repos.Delete(ctx, 404)
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)
}

func TestRepoRepo_ListByUser(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepoRepo(db)
	ctx := context.Background()

	require.NoError(t, repos.Insert(ctx, model.NewRepository(30, "git://z", "z", "alice")))
	require.NoError(t, repos.Insert(ctx, model.NewRepository(10, "git://a", "a", "alice")))
	require.NoError(t, repos.Insert(ctx, model.NewRepository(20, "git://b", "b", "bob")))

	list, err := repos.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(10), list[0].ID)
	assert.Equal(t, int64(30), list[1].ID)

	list, err = repos.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
