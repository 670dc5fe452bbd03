// Package service provides application business logic (messages, chats,
// contacts, users).
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"parley/internal/database"
	"parley/internal/delivery"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/realtime"
	"parley/internal/repository"

	"gorm.io/gorm"
)

// Broadcaster is the slice of the socket layer the message service drives.
// The hub implements it; tests use a stub. Depending on the interface rather
// than the hub keeps the construction order acyclic.
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, msg *models.Message)
	BroadcastMessageEdited(ctx context.Context, msg *models.Message)
	BroadcastMessageDeleted(ctx context.Context, msg *models.Message)
	BroadcastReactionAdded(ctx context.Context, chatID uint, reaction *models.Reaction)
	BroadcastReactionRemoved(ctx context.Context, chatID, messageID, reactionID uint)
	BroadcastChatUpdate(ctx context.Context, chat *models.Chat)
	NotifyMessageRead(ctx context.Context, senderID, messageID, chatID, readBy uint, readAt time.Time)
}

// Enqueuer appends delivery units to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, unit delivery.Unit) error
}

// MessageService coordinates the send path and every other message
// mutation: validation, the commit transaction, queueing, and fan-out.
type MessageService struct {
	db           *database.DB
	chatRepo     repository.ChatRepository
	messageRepo  repository.MessageRepository
	deliveryRepo repository.DeliveryRepository
	queue        Enqueuer
	broadcaster  Broadcaster
}

// NewMessageService returns a new MessageService.
func NewMessageService(
	db *database.DB,
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	deliveryRepo repository.DeliveryRepository,
	queue Enqueuer,
	broadcaster Broadcaster,
) *MessageService {
	return &MessageService{
		db:           db,
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		deliveryRepo: deliveryRepo,
		queue:        queue,
		broadcaster:  broadcaster,
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewValidationError("Message content cannot be empty")
	}
	if len([]rune(content)) > models.MaxMessageContentLen {
		return "", models.NewContentTooLargeError()
	}
	return content, nil
}

func (s *MessageService) requireParticipant(ctx context.Context, chatID, userID uint) error {
	p, err := s.chatRepo.ActiveParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return models.NewNotAParticipantError(chatID)
	}
	return nil
}

// Send persists a message and fans it out. Everything persistent happens in
// one transaction; the queue append and the broadcast run after commit, so a
// failure there can delay delivery but never lose the message.
func (s *MessageService) Send(ctx context.Context, senderID uint, p realtime.SendMessagePayload) (*models.Message, error) {
	content, err := validateContent(p.Content)
	if err != nil {
		return nil, err
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = models.ContentTypeText
	}
	if contentType != models.ContentTypeText && contentType != models.ContentTypeImage {
		return nil, models.NewValidationError("Unknown content type",
			models.FieldError{Field: "contentType", Message: "must be text or image"})
	}

	if err := s.requireParticipant(ctx, p.ChatID, senderID); err != nil {
		return nil, err
	}

	if p.ReplyToID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *p.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent.ChatID != p.ChatID {
			return nil, models.NewValidationError("Reply target belongs to another chat")
		}
	}

	msg := &models.Message{
		ChatID:      p.ChatID,
		SenderID:    &senderID,
		Content:     content,
		ContentType: contentType,
		Metadata:    p.Metadata,
		ReplyToID:   p.ReplyToID,
	}

	var recipients []uint
	err = s.db.Primary.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		var participantIDs []uint
		if err := tx.Model(&models.Participant{}).
			Where("chat_id = ? AND left_at IS NULL", p.ChatID).
			Pluck("user_id", &participantIDs).Error; err != nil {
			return err
		}

		records := make([]models.DeliveryRecord, 0, len(participantIDs))
		for _, id := range participantIDs {
			if id == senderID {
				continue
			}
			recipients = append(recipients, id)
			records = append(records, models.DeliveryRecord{
				MessageID: msg.ID,
				UserID:    id,
				Status:    models.DeliveryPending,
			})
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Chat{}).
			Where("id = ?", p.ChatID).
			Update("last_message_at", msg.CreatedAt).Error; err != nil {
			return err
		}

		if len(recipients) > 0 {
			if err := tx.Model(&models.Participant{}).
				Where("chat_id = ? AND user_id IN ? AND left_at IS NULL", p.ChatID, recipients).
				Update("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.MessagesSent.WithLabelValues(contentType).Inc()

	full, err := s.messageRepo.GetByID(ctx, msg.ID)
	if err != nil {
		// The commit stands; fall back to the bare row.
		full = msg
	}

	if qerr := s.queue.Enqueue(ctx, delivery.Unit{
		MessageID:  msg.ID,
		ChatID:     p.ChatID,
		SenderID:   senderID,
		Recipients: recipients,
	}); qerr != nil {
		middleware.Logger.Error("Failed to enqueue delivery unit",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.String("error", qerr.Error()))
	}

	s.broadcaster.BroadcastNewMessage(ctx, full)
	return full, nil
}

// Edit rewrites a message's content, preserving the prior content in the
// edit history. Only the sender may edit.
func (s *MessageService) Edit(ctx context.Context, userID, messageID uint, content string) (*models.Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == nil || *msg.SenderID != userID {
		return nil, models.NewForbiddenError("Only the sender can edit a message")
	}
	if msg.IsDeleted {
		return nil, models.NewConflictError("Cannot edit a deleted message")
	}
	if err := s.requireParticipant(ctx, msg.ChatID, userID); err != nil {
		return nil, err
	}

	if err := s.messageRepo.Edit(ctx, msg, content, userID); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastMessageEdited(ctx, msg)
	return msg, nil
}

// Delete soft-deletes a message. Only the sender may delete.
func (s *MessageService) Delete(ctx context.Context, userID, messageID uint) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == nil || *msg.SenderID != userID {
		return nil, models.NewForbiddenError("Only the sender can delete a message")
	}
	if msg.IsDeleted {
		return msg, nil
	}

	if err := s.messageRepo.SoftDelete(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastMessageDeleted(ctx, msg)
	return msg, nil
}

// MarkRead advances the caller's delivery record to read, clears the chat's
// unread counter, and sends the sender a read receipt.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID uint) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, msg.ChatID, userID); err != nil {
		return err
	}

	moved, err := s.deliveryRepo.MarkRead(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	if err := s.chatRepo.ResetUnread(ctx, msg.ChatID, userID); err != nil {
		middleware.Logger.Warn("Failed to reset unread counter",
			slog.Uint64("chat_id", uint64(msg.ChatID)), slog.String("error", err.Error()))
	}

	if msg.SenderID != nil && *msg.SenderID != userID {
		s.broadcaster.NotifyMessageRead(ctx, *msg.SenderID, messageID, msg.ChatID, userID, time.Now())
	}
	return nil
}

// MarkAllRead bulk-advances every unread record the caller holds in the chat.
func (s *MessageService) MarkAllRead(ctx context.Context, userID, chatID uint) error {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return err
	}
	if _, err := s.deliveryRepo.MarkAllRead(ctx, chatID, userID); err != nil {
		return err
	}
	return s.chatRepo.ResetUnread(ctx, chatID, userID)
}

// AddReaction attaches an emoji reaction, membership-guarded.
func (s *MessageService) AddReaction(ctx context.Context, userID, messageID uint, emoji string) (*models.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if n := len([]rune(emoji)); n == 0 || n > models.MaxReactionEmojiLen {
		return nil, models.NewValidationError("Invalid reaction emoji")
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, msg.ChatID, userID); err != nil {
		return nil, err
	}

	reaction := &models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	if err := s.messageRepo.AddReaction(ctx, reaction); err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastReactionAdded(ctx, msg.ChatID, reaction)
	return reaction, nil
}

// RemoveReaction removes the caller's own reaction.
func (s *MessageService) RemoveReaction(ctx context.Context, userID, reactionID uint) error {
	reaction, err := s.messageRepo.GetReaction(ctx, reactionID)
	if err != nil {
		return err
	}
	if reaction.UserID != userID {
		return models.NewForbiddenError("Only the reacting user can remove a reaction")
	}

	msg, err := s.messageRepo.GetByID(ctx, reaction.MessageID)
	if err != nil {
		return err
	}

	if err := s.messageRepo.DeleteReaction(ctx, reactionID); err != nil {
		return err
	}

	s.broadcaster.BroadcastReactionRemoved(ctx, msg.ChatID, reaction.MessageID, reactionID)
	return nil
}

// History pages a chat's messages backwards. limit defaults to 50, capped at
// 100.
func (s *MessageService) History(ctx context.Context, userID, chatID, beforeID uint, limit int) ([]*models.Message, error) {
	if err := s.requireParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.messageRepo.ListBefore(ctx, chatID, beforeID, limit)
}

// Search finds messages across the caller's chats.
func (s *MessageService) Search(ctx context.Context, userID uint, query string, limit int) ([]*models.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query cannot be empty")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messageRepo.Search(ctx, userID, query, limit)
}

var _ realtime.MessageHandler = (*MessageService)(nil)
