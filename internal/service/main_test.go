package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"parley/internal/database"
	"parley/internal/delivery"
	"parley/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gdb))
	return &database.DB{Primary: gdb}
}

func seedUser(t *testing.T, db *database.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, DisplayName: username, Password: "x"}
	require.NoError(t, db.Primary.Create(u).Error)
	return u
}

func seedChat(t *testing.T, db *database.DB, chatType string, userIDs ...uint) *models.Chat {
	t.Helper()
	chat := &models.Chat{Type: chatType}
	if chatType == models.ChatGroup && len(userIDs) > 0 {
		chat.OwnerID = &userIDs[0]
		chat.Name = "group"
	}
	for i, id := range userIDs {
		role := models.RoleMember
		if chatType == models.ChatGroup && i == 0 {
			role = models.RoleOwner
		}
		chat.Participants = append(chat.Participants, models.Participant{
			UserID:   id,
			Role:     role,
			JoinedAt: time.Now(),
		})
	}
	require.NoError(t, db.Primary.Create(chat).Error)
	return chat
}

// broadcasterRecorder captures fan-out calls without a socket layer.
type broadcasterRecorder struct {
	mu          sync.Mutex
	newMessages []*models.Message
	edited      []*models.Message
	deleted     []*models.Message
	reactions   []*models.Reaction
	removed     []uint // reaction IDs
	chatUpdates []*models.Chat
	readSenders []uint
}

func (b *broadcasterRecorder) BroadcastNewMessage(_ context.Context, msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newMessages = append(b.newMessages, msg)
}

func (b *broadcasterRecorder) BroadcastMessageEdited(_ context.Context, msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edited = append(b.edited, msg)
}

func (b *broadcasterRecorder) BroadcastMessageDeleted(_ context.Context, msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, msg)
}

func (b *broadcasterRecorder) BroadcastReactionAdded(_ context.Context, _ uint, reaction *models.Reaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reactions = append(b.reactions, reaction)
}

func (b *broadcasterRecorder) BroadcastReactionRemoved(_ context.Context, _, _, reactionID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, reactionID)
}

func (b *broadcasterRecorder) BroadcastChatUpdate(_ context.Context, chat *models.Chat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatUpdates = append(b.chatUpdates, chat)
}

func (b *broadcasterRecorder) NotifyMessageRead(_ context.Context, senderID, _, _, _ uint, _ time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readSenders = append(b.readSenders, senderID)
}

// enqueuerRecorder captures delivery units instead of touching Redis.
type enqueuerRecorder struct {
	mu    sync.Mutex
	units []delivery.Unit
}

func (e *enqueuerRecorder) Enqueue(_ context.Context, unit delivery.Unit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.units = append(e.units, unit)
	return nil
}
