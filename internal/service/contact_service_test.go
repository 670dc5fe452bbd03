package service

import (
	"context"
	"testing"

	"parley/internal/models"
	"parley/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupContactService(t *testing.T) (*ContactService, *models.User, *models.User) {
	t.Helper()
	db := setupTestDB(t)
	svc := NewContactService(repository.NewContactRepository(db), repository.NewUserRepository(db))
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	return svc, alice, bob
}

func TestContactRequestFlow(t *testing.T) {
	svc, alice, bob := setupContactService(t)
	ctx := context.Background()

	t.Run("request creates pending rows both ways", func(t *testing.T) {
		entry, err := svc.Request(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ContactPending, entry.Status)
		assert.Equal(t, alice.ID, entry.RequestedBy)

		bobSide, err := svc.List(ctx, bob.ID, models.ContactPending)
		require.NoError(t, err)
		require.Len(t, bobSide, 1)
		assert.Equal(t, alice.ID, bobSide[0].ContactID)
	})

	t.Run("requester cannot accept their own request", func(t *testing.T) {
		err := svc.Accept(ctx, alice.ID, bob.ID)
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.KindForbidden, appErr.Kind)
	})

	t.Run("recipient accepts and both sides flip", func(t *testing.T) {
		require.NoError(t, svc.Accept(ctx, bob.ID, alice.ID))

		ok, err := svc.IsAccepted(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = svc.IsAccepted(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("duplicate request conflicts", func(t *testing.T) {
		_, err := svc.Request(ctx, alice.ID, bob.ID)
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.KindConflict, appErr.Kind)
	})

	t.Run("self request rejected", func(t *testing.T) {
		_, err := svc.Request(ctx, alice.ID, alice.ID)
		require.Error(t, err)
	})
}

func TestBlocking(t *testing.T) {
	svc, alice, bob := setupContactService(t)
	ctx := context.Background()

	t.Run("block without prior entry", func(t *testing.T) {
		require.NoError(t, svc.Block(ctx, alice.ID, bob.ID))

		blocked, err := svc.List(ctx, alice.ID, models.ContactBlocked)
		require.NoError(t, err)
		require.Len(t, blocked, 1)
	})

	t.Run("blocked user cannot send a request", func(t *testing.T) {
		_, err := svc.Request(ctx, bob.ID, alice.ID)
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.KindForbidden, appErr.Kind)
	})

	t.Run("unblock removes the one-sided pair", func(t *testing.T) {
		require.NoError(t, svc.Unblock(ctx, alice.ID, bob.ID))
		entries, err := svc.List(ctx, alice.ID, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unblock restores accepted when the other side still accepts", func(t *testing.T) {
		_, err := svc.Request(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		require.NoError(t, svc.Accept(ctx, bob.ID, alice.ID))

		require.NoError(t, svc.Block(ctx, alice.ID, bob.ID))
		ok, err := svc.IsAccepted(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, svc.Unblock(ctx, alice.ID, bob.ID))
		ok, err = svc.IsAccepted(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("remove clears both directions", func(t *testing.T) {
		require.NoError(t, svc.Remove(ctx, alice.ID, bob.ID))
		entries, err := svc.List(ctx, bob.ID, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
