package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepo_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepo(db)
	ctx := context.Background()

	require.NoError(t, users.SaveToken(ctx, "alice", "gho_abc"))
	require.NoError(t, users.SaveToken(ctx, "alice", "gho_def"))

	token, err := users.AccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "gho_def", token)
}

func TestUserRepo_Missing(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepo(db)
	ctx := context.Background()

	token, err := users.AccessToken(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "", token)

	assert.NoError(t, users.Delete(ctx, "nobody"))
}
