package service

import (
	"context"
	"testing"

	"parley/internal/models"
	"parley/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfile(t *testing.T) {
	db := setupTestDB(t)
	svc := NewUserService(repository.NewUserRepository(db))
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	updated, err := svc.UpdateProfile(ctx, UpdateProfileInput{
		UserID: alice.ID, DisplayName: "Alice A.", AvatarRef: "avatars/alice.webp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", updated.DisplayName)

	got, err := svc.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", got.DisplayName)
	assert.Equal(t, "avatars/alice.webp", got.AvatarRef)
	assert.Equal(t, "alice", got.Username, "username is immutable")

	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{UserID: alice.ID, DisplayName: "  "})
	require.Error(t, err)
}

func TestUserSearch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewUserService(repository.NewUserRepository(db))
	ctx := context.Background()

	seedUser(t, db, "alice")
	seedUser(t, db, "alicia")
	seedUser(t, db, "bob")

	users, err := svc.Search(ctx, "ali", 10)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = svc.Search(ctx, "a", 10)
	require.Error(t, err, "single-character queries rejected")
}

func TestRecordStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := NewUserService(repository.NewUserRepository(db))
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	require.NoError(t, svc.RecordStatus(ctx, alice.ID, models.StatusAway))
	got, err := svc.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, got.Status)
	assert.NotNil(t, got.LastSeen)

	require.Error(t, svc.RecordStatus(ctx, alice.ID, "busy"))
}
