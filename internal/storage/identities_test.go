package storage

import (
	"context"
	"testing"
	"time"

	"github.com/sayup/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentity(email string) models.Identity {
	return models.Identity{
		Email:        email,
		Username:     models.UsernameFromEmail(email),
		PasswordHash: "hash",
		Role:         models.RoleUser,
		Active:       true,
	}
}

func TestIdentityStoreLifecycle(t *testing.T) {
	store := openTestDatabase(t).Identities()
	ctx := context.Background()

	saved, err := store.Save(ctx, newIdentity("Alice@X.com"))
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "alice@x.com", saved.Email)
	assert.False(t, saved.CreatedAt.IsZero())

	byEmail, err := store.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byEmail.ID)
	assert.True(t, byEmail.Active)

	byID, err := store.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	exists, err := store.ExistsByEmail(ctx, "ALICE@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	loginAt := time.Now().UTC().Truncate(time.Second)
	byID.LastLoginAt = &loginAt
	byID.Active = false
	updated, err := store.Save(ctx, byID)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	require.NotNil(t, updated.LastLoginAt)
	assert.True(t, loginAt.Equal(updated.LastLoginAt.UTC()))
}

func TestIdentityStoreInactiveOnCreate(t *testing.T) {
	store := openTestDatabase(t).Identities()
	identity := newIdentity("dormant@x.com")
	identity.Active = false

	saved, err := store.Save(context.Background(), identity)
	require.NoError(t, err)

	loaded, err := store.FindByID(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Active)
}

func TestIdentityStoreRejectsDuplicateEmail(t *testing.T) {
	store := openTestDatabase(t).Identities()
	ctx := context.Background()

	_, err := store.Save(ctx, newIdentity("bob@x.com"))
	require.NoError(t, err)

	_, err = store.Save(ctx, newIdentity("bob@x.com"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestIdentityStoreNotFound(t *testing.T) {
	store := openTestDatabase(t).Identities()
	ctx := context.Background()

	_, err := store.FindByEmail(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByID(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.ExistsByEmail(ctx, "ghost@x.com")
	require.NoError(t, err)
	assert.False(t, exists)

	ghost := newIdentity("ghost@x.com")
	ghost.ID = 4242
	_, err = store.Save(ctx, ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}
