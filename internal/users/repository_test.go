package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authcore/internal/platform/db"
	"github.com/odyssey-erp/authcore/internal/shared"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(db.OpenTestSQLite(t), time.Second)
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, User{Username: "alice", Email: "alice@example.com", DisplayName: "Alice"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "alice@example.com", byID.Email)

	byEmail, err := repo.FindByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byName, err := repo.FindByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = repo.FindByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRepositoryCreateDuplicateConflicts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, User{Username: "bob"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, User{Username: "bob"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestRepositoryExists(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	user, err := repo.Create(ctx, User{ID: "u-1", Username: "carol"})
	require.NoError(t, err)

	ok, err := repo.Exists(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "u-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceListAndLookup(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo)
	ctx := context.Background()

	for _, name := range []string{"dave", "erin", "frank"} {
		_, err := repo.Create(ctx, User{ID: "id-" + name, Username: name, Email: name + "@example.com"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListFilters{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "dave", page.Users[0].Username)

	page, err = svc.List(ctx, ListFilters{Query: "erin"})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.False(t, page.HasMore)

	_, err = svc.List(ctx, ListFilters{Offset: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)

	user, err := svc.Lookup(ctx, "id-frank")
	require.NoError(t, err)
	assert.Equal(t, "frank", user.Username)

	user, err = svc.Lookup(ctx, "frank@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-frank", user.ID)

	_, err = svc.Lookup(ctx, "  ")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
