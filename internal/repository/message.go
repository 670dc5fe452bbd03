package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/gorm"
)

// MessageRepository defines the interface for message data operations.
type MessageRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListBefore(ctx context.Context, chatID uint, beforeID uint, limit int) ([]*models.Message, error)
	Edit(ctx context.Context, msg *models.Message, newContent string, editedBy uint) error
	SoftDelete(ctx context.Context, msg *models.Message) error
	AddReaction(ctx context.Context, reaction *models.Reaction) error
	GetReaction(ctx context.Context, id uint) (*models.Reaction, error)
	DeleteReaction(ctx context.Context, id uint) error
	RemoveReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error)
	Search(ctx context.Context, userID uint, query string, limit int) ([]*models.Message, error)
}

type messageRepository struct {
	base
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *database.DB) MessageRepository {
	return &messageRepository{newBase(db)}
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.read.WithContext(ctx).
		Preload("Sender").
		Preload("Reactions").
		First(&msg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", id)
		}
		return nil, err
	}
	return &msg, nil
}

// ListBefore pages a chat's history backwards from beforeID (0 means from the
// newest). Results come back newest-first.
func (r *messageRepository) ListBefore(ctx context.Context, chatID uint, beforeID uint, limit int) ([]*models.Message, error) {
	q := r.read.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Preload("Sender").
		Preload("Reactions").
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []*models.Message
	err := q.Find(&msgs).Error
	return msgs, err
}

// Edit swaps the content, records the prior content as an edit row, and marks
// the message edited, all in one transaction.
func (r *messageRepository) Edit(ctx context.Context, msg *models.Message, newContent string, editedBy uint) error {
	now := time.Now()
	return r.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edit := models.MessageEdit{
			MessageID:   msg.ID,
			PrevContent: msg.Content,
			EditedBy:    editedBy,
		}
		if err := tx.Create(&edit).Error; err != nil {
			return err
		}
		if err := tx.Model(msg).Updates(map[string]any{
			"content":   newContent,
			"is_edited": true,
			"edited_at": &now,
		}).Error; err != nil {
			return err
		}
		msg.Content = newContent
		msg.IsEdited = true
		msg.EditedAt = &now
		return nil
	})
}

// SoftDelete replaces the content with the deletion placeholder. The row stays
// so history keeps its shape.
func (r *messageRepository) SoftDelete(ctx context.Context, msg *models.Message) error {
	now := time.Now()
	err := r.write.WithContext(ctx).Model(msg).Updates(map[string]any{
		"content":    models.DeletedContentPlaceholder,
		"is_deleted": true,
		"deleted_at": &now,
	}).Error
	if err != nil {
		return err
	}
	msg.Content = models.DeletedContentPlaceholder
	msg.IsDeleted = true
	msg.DeletedAt = &now
	return nil
}

func (r *messageRepository) AddReaction(ctx context.Context, reaction *models.Reaction) error {
	err := r.write.WithContext(ctx).Create(reaction).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.NewConflictError("reaction already exists")
	}
	return err
}

func (r *messageRepository) GetReaction(ctx context.Context, id uint) (*models.Reaction, error) {
	var reaction models.Reaction
	err := r.read.WithContext(ctx).First(&reaction, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Reaction", id)
		}
		return nil, err
	}
	return &reaction, nil
}

func (r *messageRepository) DeleteReaction(ctx context.Context, id uint) error {
	return r.write.WithContext(ctx).Delete(&models.Reaction{}, id).Error
}

// RemoveReaction deletes the reaction if present and reports whether a row
// was removed.
func (r *messageRepository) RemoveReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error) {
	res := r.write.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.Reaction{})
	return res.RowsAffected > 0, res.Error
}

// Search finds non-deleted messages containing query across the chats the
// user is an active participant of, newest first.
func (r *messageRepository) Search(ctx context.Context, userID uint, query string, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.read.WithContext(ctx).
		Joins("JOIN participants ON participants.chat_id = messages.chat_id").
		Where("participants.user_id = ? AND participants.left_at IS NULL", userID).
		Where("messages.is_deleted = ? AND messages.content LIKE ?", false, "%"+query+"%").
		Preload("Sender").
		Order("messages.id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
