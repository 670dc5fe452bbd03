package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/gorm"
)

// ChatRepository defines the interface for chat and participant data operations.
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id uint) (*models.Chat, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.Chat, error)
	FindDirect(ctx context.Context, userA, userB uint) (*models.Chat, error)
	ActiveParticipant(ctx context.Context, chatID, userID uint) (*models.Participant, error)
	ActiveParticipantCount(ctx context.Context, chatID uint) (int64, error)
	AddParticipant(ctx context.Context, p *models.Participant) error
	RejoinParticipant(ctx context.Context, chatID, userID uint) error
	RemoveParticipant(ctx context.Context, chatID, userID uint) error
	ChatIDsForUser(ctx context.Context, userID uint) ([]uint, error)
	UpdateName(ctx context.Context, chatID uint, name string) error
	ResetUnread(ctx context.Context, chatID, userID uint) error
	SoftDelete(ctx context.Context, chatID uint) error
}

type chatRepository struct {
	base
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{newBase(db)}
}

// Create persists a chat and its initial participants in one transaction.
func (r *chatRepository) Create(ctx context.Context, chat *models.Chat) error {
	return r.write.WithContext(ctx).Create(chat).Error
}

func (r *chatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.read.WithContext(ctx).
		Preload("Participants", "left_at IS NULL").
		Preload("Participants.User").
		Where("is_deleted = ?", false).
		First(&chat, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Chat", id)
		}
		return nil, err
	}
	return &chat, nil
}

// ListForUser returns the chats the user is an active participant of, most
// recently active first. Chats with no messages yet sort by creation time.
func (r *chatRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Chat, error) {
	var chats []*models.Chat
	err := r.read.WithContext(ctx).
		Joins("JOIN participants ON participants.chat_id = chats.id").
		Where("participants.user_id = ? AND participants.left_at IS NULL", userID).
		Where("chats.is_deleted = ?", false).
		Preload("Participants", "left_at IS NULL").
		Preload("Participants.User").
		Order("chats.last_message_at DESC NULLS LAST, chats.created_at DESC").
		Find(&chats).Error
	return chats, err
}

// FindDirect returns the existing direct chat between two users, or nil.
func (r *chatRepository) FindDirect(ctx context.Context, userA, userB uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.read.WithContext(ctx).
		Joins("JOIN participants pa ON pa.chat_id = chats.id AND pa.user_id = ?", userA).
		Joins("JOIN participants pb ON pb.chat_id = chats.id AND pb.user_id = ?", userB).
		Where("chats.type = ? AND chats.is_deleted = ?", models.ChatDirect, false).
		Preload("Participants", "left_at IS NULL").
		Preload("Participants.User").
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) ActiveParticipant(ctx context.Context, chatID, userID uint) (*models.Participant, error) {
	var p models.Participant
	err := r.read.WithContext(ctx).
		Where("chat_id = ? AND user_id = ? AND left_at IS NULL", chatID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *chatRepository) ActiveParticipantCount(ctx context.Context, chatID uint) (int64, error) {
	var n int64
	err := r.read.WithContext(ctx).Model(&models.Participant{}).
		Where("chat_id = ? AND left_at IS NULL", chatID).
		Count(&n).Error
	return n, err
}

func (r *chatRepository) AddParticipant(ctx context.Context, p *models.Participant) error {
	return r.write.WithContext(ctx).Create(p).Error
}

// RejoinParticipant reactivates a previously departed membership row,
// clearing the unread counter accumulated before leaving.
func (r *chatRepository) RejoinParticipant(ctx context.Context, chatID, userID uint) error {
	return r.write.WithContext(ctx).Model(&models.Participant{}).
		Where("chat_id = ? AND user_id = ? AND left_at IS NOT NULL", chatID, userID).
		Updates(map[string]any{
			"left_at":      nil,
			"unread_count": 0,
			"joined_at":    time.Now(),
			"role":         models.RoleMember,
		}).Error
}

func (r *chatRepository) RemoveParticipant(ctx context.Context, chatID, userID uint) error {
	now := time.Now()
	return r.write.WithContext(ctx).Model(&models.Participant{}).
		Where("chat_id = ? AND user_id = ? AND left_at IS NULL", chatID, userID).
		Update("left_at", &now).Error
}

func (r *chatRepository) ChatIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.read.WithContext(ctx).Model(&models.Participant{}).
		Joins("JOIN chats ON chats.id = participants.chat_id AND chats.is_deleted = ?", false).
		Where("participants.user_id = ? AND participants.left_at IS NULL", userID).
		Pluck("participants.chat_id", &ids).Error
	return ids, err
}

func (r *chatRepository) UpdateName(ctx context.Context, chatID uint, name string) error {
	return r.write.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("name", name).Error
}

func (r *chatRepository) ResetUnread(ctx context.Context, chatID, userID uint) error {
	return r.write.WithContext(ctx).Model(&models.Participant{}).
		Where("chat_id = ? AND user_id = ? AND left_at IS NULL", chatID, userID).
		Update("unread_count", 0).Error
}

func (r *chatRepository) SoftDelete(ctx context.Context, chatID uint) error {
	return r.write.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("is_deleted", true).Error
}
