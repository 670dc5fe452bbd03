package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/database"
	"parley/internal/models"

	"gorm.io/gorm"
)

// ContactRepository defines the interface for contact-list operations.
type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	GetPair(ctx context.Context, userID, contactID uint) (*models.Contact, error)
	ListForUser(ctx context.Context, userID uint, status string) ([]*models.Contact, error)
	Accept(ctx context.Context, userID, contactID uint) (bool, error)
	SetStatus(ctx context.Context, userID, contactID uint, status string) error
	Delete(ctx context.Context, userID, contactID uint) error
}

type contactRepository struct {
	base
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(db *database.DB) ContactRepository {
	return &contactRepository{newBase(db)}
}

func (r *contactRepository) Create(ctx context.Context, contact *models.Contact) error {
	err := r.write.WithContext(ctx).Create(contact).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.NewConflictError("contact entry already exists")
	}
	return err
}

func (r *contactRepository) GetPair(ctx context.Context, userID, contactID uint) (*models.Contact, error) {
	var c models.Contact
	err := r.read.WithContext(ctx).
		Where("user_id = ? AND contact_id = ?", userID, contactID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListForUser returns the user's contact entries, filtered by status when
// status is non-empty.
func (r *contactRepository) ListForUser(ctx context.Context, userID uint, status string) ([]*models.Contact, error) {
	q := r.read.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Contact").
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var contacts []*models.Contact
	err := q.Find(&contacts).Error
	return contacts, err
}

// Accept moves both directions of a pending pair to accepted. Returns false
// when no pending row existed for the accepting user.
func (r *contactRepository) Accept(ctx context.Context, userID, contactID uint) (bool, error) {
	now := time.Now()
	var moved bool
	err := r.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Contact{}).
			Where("user_id = ? AND contact_id = ? AND status = ?", userID, contactID, models.ContactPending).
			Updates(map[string]any{"status": models.ContactAccepted, "accepted_at": &now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		moved = true
		return tx.Model(&models.Contact{}).
			Where("user_id = ? AND contact_id = ? AND status = ?", contactID, userID, models.ContactPending).
			Updates(map[string]any{"status": models.ContactAccepted, "accepted_at": &now}).Error
	})
	return moved, err
}

func (r *contactRepository) SetStatus(ctx context.Context, userID, contactID uint, status string) error {
	return r.write.WithContext(ctx).Model(&models.Contact{}).
		Where("user_id = ? AND contact_id = ?", userID, contactID).
		Update("status", status).Error
}

func (r *contactRepository) Delete(ctx context.Context, userID, contactID uint) error {
	return r.write.WithContext(ctx).
		Where("(user_id = ? AND contact_id = ?) OR (user_id = ? AND contact_id = ?)",
			userID, contactID, contactID, userID).
		Delete(&models.Contact{}).Error
}
