package repository

import (
	"context"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/gorm"
)

// DeliveryRepository defines the interface for delivery record operations.
// Status writes are guarded in SQL so a stale worker can never downgrade
// a record another path already advanced.
type DeliveryRepository interface {
	MarkDelivered(ctx context.Context, messageID, userID uint) (bool, error)
	MarkRead(ctx context.Context, messageID, userID uint) (bool, error)
	MarkAllRead(ctx context.Context, chatID, userID uint) (int64, error)
	PendingForUser(ctx context.Context, userID uint, limit int) ([]*models.Message, error)
	StatusForMessage(ctx context.Context, messageID uint) ([]*models.DeliveryRecord, error)
}

type deliveryRepository struct {
	base
}

// NewDeliveryRepository creates a new delivery repository.
func NewDeliveryRepository(db *database.DB) DeliveryRepository {
	return &deliveryRepository{newBase(db)}
}

// MarkDelivered advances pending -> delivered. Returns false when the record
// is absent or already at delivered or read.
func (r *deliveryRepository) MarkDelivered(ctx context.Context, messageID, userID uint) (bool, error) {
	now := time.Now()
	res := r.write.WithContext(ctx).Model(&models.DeliveryRecord{}).
		Where("message_id = ? AND user_id = ? AND status IN ?",
			messageID, userID, models.DeliveryStatusesBefore(models.DeliveryDelivered)).
		Updates(map[string]any{
			"status":       models.DeliveryDelivered,
			"delivered_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkRead advances to read from either pending or delivered. A record that
// skipped delivered gets DeliveredAt backfilled so the timeline stays sane.
func (r *deliveryRepository) MarkRead(ctx context.Context, messageID, userID uint) (bool, error) {
	now := time.Now()
	res := r.write.WithContext(ctx).Model(&models.DeliveryRecord{}).
		Where("message_id = ? AND user_id = ? AND status IN ?",
			messageID, userID, models.DeliveryStatusesBefore(models.DeliveryRead)).
		Updates(map[string]any{
			"status":       models.DeliveryRead,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", &now),
			"read_at":      &now,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkAllRead advances every unread record the user holds in the chat and
// returns how many rows moved.
func (r *deliveryRepository) MarkAllRead(ctx context.Context, chatID, userID uint) (int64, error) {
	now := time.Now()
	res := r.write.WithContext(ctx).Model(&models.DeliveryRecord{}).
		Where("user_id = ? AND status IN ? AND message_id IN (?)",
			userID,
			models.DeliveryStatusesBefore(models.DeliveryRead),
			r.write.Model(&models.Message{}).Select("id").Where("chat_id = ?", chatID)).
		Updates(map[string]any{
			"status":       models.DeliveryRead,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", &now),
			"read_at":      &now,
		})
	return res.RowsAffected, res.Error
}

// PendingForUser returns the messages the user has pending delivery records
// for, oldest first, capped at limit.
func (r *deliveryRepository) PendingForUser(ctx context.Context, userID uint, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.read.WithContext(ctx).
		Joins("JOIN delivery_records ON delivery_records.message_id = messages.id").
		Where("delivery_records.user_id = ? AND delivery_records.status = ?", userID, models.DeliveryPending).
		Preload("Sender").
		Order("messages.id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *deliveryRepository) StatusForMessage(ctx context.Context, messageID uint) ([]*models.DeliveryRecord, error) {
	var records []*models.DeliveryRecord
	err := r.read.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("user_id ASC").
		Find(&records).Error
	return records, err
}
