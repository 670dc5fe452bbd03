package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"parley/internal/database"
	"parley/internal/models"
	"parley/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChatService(t *testing.T) (*ChatService, *broadcasterRecorder, *database.DB) {
	t.Helper()
	db := setupTestDB(t)
	broadcaster := &broadcasterRecorder{}
	svc := NewChatService(
		db,
		repository.NewChatRepository(db),
		repository.NewUserRepository(db),
		repository.NewContactRepository(db),
		broadcaster,
	)
	return svc, broadcaster, db
}

func TestCreateDirect(t *testing.T) {
	svc, _, db := setupChatService(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	t.Run("creates a two-party chat", func(t *testing.T) {
		chat, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: bob.ID})
		require.NoError(t, err)
		assert.Equal(t, models.ChatDirect, chat.Type)
		assert.Len(t, chat.Participants, 2)
	})

	t.Run("same pair dedupes regardless of direction", func(t *testing.T) {
		first, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: bob.ID})
		require.NoError(t, err)
		second, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: bob.ID, Partner: alice.ID})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		var n int64
		db.Primary.Model(&models.Chat{}).Where("type = ?", models.ChatDirect).Count(&n)
		assert.EqualValues(t, 1, n)
	})

	t.Run("rejects self chats and unknown partners", func(t *testing.T) {
		_, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: alice.ID})
		require.Error(t, err)

		_, err = svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: 9999})
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.KindNotFound, appErr.Kind)
	})

	t.Run("blocked pair cannot open a chat", func(t *testing.T) {
		carol := seedUser(t, db, "carol")
		require.NoError(t, db.Primary.Create(&models.Contact{
			UserID: carol.ID, ContactID: alice.ID, Status: models.ContactBlocked, RequestedBy: carol.ID,
		}).Error)

		_, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: carol.ID})
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.KindForbidden, appErr.Kind)
	})

	t.Run("reopening after leaving rejoins the same chat", func(t *testing.T) {
		chat, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: bob.ID})
		require.NoError(t, err)
		require.NoError(t, svc.Leave(ctx, alice.ID, chat.ID))

		again, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: bob.ID})
		require.NoError(t, err)
		assert.Equal(t, chat.ID, again.ID)
		assert.NotNil(t, again.ActiveParticipant(alice.ID))
	})
}

func TestCreateGroup(t *testing.T) {
	svc, broadcaster, db := setupChatService(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	t.Run("creates a group with the caller as owner", func(t *testing.T) {
		chat, err := svc.CreateGroup(ctx, CreateGroupInput{
			OwnerID: alice.ID, Name: "plans", ParticipantIDs: []uint{bob.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, models.ChatGroup, chat.Type)
		require.NotNil(t, chat.ActiveParticipant(alice.ID))
		assert.Equal(t, models.RoleOwner, chat.ActiveParticipant(alice.ID).Role)
		assert.Equal(t, models.RoleMember, chat.ActiveParticipant(bob.ID).Role)

		broadcaster.mu.Lock()
		assert.Len(t, broadcaster.chatUpdates, 1)
		broadcaster.mu.Unlock()
	})

	t.Run("validates the name", func(t *testing.T) {
		_, err := svc.CreateGroup(ctx, CreateGroupInput{OwnerID: alice.ID, Name: "  "})
		require.Error(t, err)

		_, err = svc.CreateGroup(ctx, CreateGroupInput{
			OwnerID: alice.ID, Name: strings.Repeat("x", models.MaxGroupNameLen+1),
		})
		require.Error(t, err)
	})
}

func TestGroupMembership(t *testing.T) {
	svc, _, db := setupChatService(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner")
	member := seedUser(t, db, "member")
	extra := seedUser(t, db, "extra")

	chat, err := svc.CreateGroup(ctx, CreateGroupInput{
		OwnerID: owner.ID, Name: "room", ParticipantIDs: []uint{member.ID},
	})
	require.NoError(t, err)

	t.Run("member cannot add participants", func(t *testing.T) {
		_, err := svc.AddParticipant(ctx, member.ID, chat.ID, extra.ID)
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.KindForbidden, appErr.Kind)
	})

	t.Run("owner adds and removes", func(t *testing.T) {
		got, err := svc.AddParticipant(ctx, owner.ID, chat.ID, extra.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ActiveParticipant(extra.ID))

		_, err = svc.AddParticipant(ctx, owner.ID, chat.ID, extra.ID)
		require.Error(t, err, "duplicate add conflicts")

		got, err = svc.RemoveParticipant(ctx, owner.ID, chat.ID, extra.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ActiveParticipant(extra.ID))
	})

	t.Run("re-adding a departed member clears stale unread", func(t *testing.T) {
		require.NoError(t, db.Primary.Model(&models.Participant{}).
			Where("chat_id = ? AND user_id = ?", chat.ID, extra.ID).
			Update("unread_count", 7).Error)

		got, err := svc.AddParticipant(ctx, owner.ID, chat.ID, extra.ID)
		require.NoError(t, err)
		p := got.ActiveParticipant(extra.ID)
		require.NotNil(t, p)
		assert.Zero(t, p.UnreadCount)
	})

	t.Run("owner cannot be removed or leave", func(t *testing.T) {
		_, err := svc.RemoveParticipant(ctx, owner.ID, chat.ID, owner.ID)
		require.Error(t, err)

		err = svc.Leave(ctx, owner.ID, chat.ID)
		require.Error(t, err)
	})

	t.Run("member leaves", func(t *testing.T) {
		require.NoError(t, svc.Leave(ctx, member.ID, chat.ID))
		got, err := svc.Get(ctx, owner.ID, chat.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ActiveParticipant(member.ID))

		_, err = svc.Get(ctx, member.ID, chat.ID)
		require.Error(t, err, "departed members lose access")
	})
}

func TestDeleteGroup(t *testing.T) {
	svc, _, db := setupChatService(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner")
	member := seedUser(t, db, "member")
	chat, err := svc.CreateGroup(ctx, CreateGroupInput{
		OwnerID: owner.ID, Name: "doomed", ParticipantIDs: []uint{member.ID},
	})
	require.NoError(t, err)

	require.Error(t, svc.Delete(ctx, member.ID, chat.ID), "only the owner deletes")
	require.NoError(t, svc.Delete(ctx, owner.ID, chat.ID))

	_, err = svc.Get(ctx, owner.ID, chat.ID)
	appErr := models.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, models.KindNotFound, appErr.Kind)

	direct, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: owner.ID, Partner: member.ID})
	require.NoError(t, err)
	require.Error(t, svc.Delete(ctx, owner.ID, direct.ID), "direct chats cannot be deleted")
}

func TestListOrdersByActivity(t *testing.T) {
	svc, _, db := setupChatService(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")

	older, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: bob.ID})
	require.NoError(t, err)
	newer, err := svc.CreateDirect(ctx, CreateDirectInput{UserID: alice.ID, Partner: carol.ID})
	require.NoError(t, err)

	// Activity in the older chat should float it to the top.
	require.NoError(t, db.Primary.Model(&models.Chat{}).
		Where("id = ?", older.ID).
		Update("last_message_at", time.Now()).Error)

	chats, err := svc.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, older.ID, chats[0].ID)
	assert.Equal(t, newer.ID, chats[1].ID)
}
