package repository

import (
	"testing"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	return &database.DB{Primary: db}
}

func seedUser(t *testing.T, db *database.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, DisplayName: username, Password: "x"}
	if err := db.Primary.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed user %s: %v", username, err)
	}
	return user
}

func seedDirectChat(t *testing.T, db *database.DB, a, b uint) *models.Chat {
	t.Helper()
	chat := &models.Chat{
		Type: models.ChatDirect,
		Participants: []models.Participant{
			{UserID: a, Role: models.RoleMember},
			{UserID: b, Role: models.RoleMember},
		},
	}
	if err := db.Primary.Create(chat).Error; err != nil {
		t.Fatalf("Failed to seed chat: %v", err)
	}
	return chat
}

func seedMessage(t *testing.T, db *database.DB, chatID uint, senderID uint, content string) *models.Message {
	t.Helper()
	msg := &models.Message{
		ChatID:      chatID,
		SenderID:    &senderID,
		Content:     content,
		ContentType: models.ContentTypeText,
	}
	if err := db.Primary.Create(msg).Error; err != nil {
		t.Fatalf("Failed to seed message: %v", err)
	}
	return msg
}
