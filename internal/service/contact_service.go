package service

import (
	"context"

	"parley/internal/models"
	"parley/internal/repository"
)

// ContactService manages contact requests, blocking, and the contact list.
type ContactService struct {
	contactRepo repository.ContactRepository
	userRepo    repository.UserRepository
}

// NewContactService returns a new ContactService.
func NewContactService(contactRepo repository.ContactRepository, userRepo repository.UserRepository) *ContactService {
	return &ContactService{contactRepo: contactRepo, userRepo: userRepo}
}

// Request sends a contact request, creating pending rows in both directions.
func (s *ContactService) Request(ctx context.Context, userID, targetID uint) (*models.Contact, error) {
	if userID == targetID {
		return nil, models.NewValidationError("Cannot add yourself as a contact")
	}
	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return nil, err
	}

	existing, err := s.contactRepo.GetPair(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.ContactBlocked:
			return nil, models.NewForbiddenError("Cannot send a request to this user")
		default:
			return nil, models.NewConflictError("A contact entry already exists")
		}
	}
	reverse, err := s.contactRepo.GetPair(ctx, targetID, userID)
	if err != nil {
		return nil, err
	}
	if reverse != nil && reverse.Status == models.ContactBlocked {
		return nil, models.NewForbiddenError("Cannot send a request to this user")
	}

	entry := &models.Contact{
		UserID:      userID,
		ContactID:   targetID,
		Status:      models.ContactPending,
		RequestedBy: userID,
	}
	if err := s.contactRepo.Create(ctx, entry); err != nil {
		return nil, err
	}
	if reverse == nil {
		mirror := &models.Contact{
			UserID:      targetID,
			ContactID:   userID,
			Status:      models.ContactPending,
			RequestedBy: userID,
		}
		if err := s.contactRepo.Create(ctx, mirror); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// Accept accepts a pending request the caller received. Only the recipient
// may accept.
func (s *ContactService) Accept(ctx context.Context, userID, contactID uint) error {
	entry, err := s.contactRepo.GetPair(ctx, userID, contactID)
	if err != nil {
		return err
	}
	if entry == nil || entry.Status != models.ContactPending {
		return models.NewNotFoundError("Contact request", contactID)
	}
	if entry.RequestedBy == userID {
		return models.NewForbiddenError("The requester cannot accept their own request")
	}

	moved, err := s.contactRepo.Accept(ctx, userID, contactID)
	if err != nil {
		return err
	}
	if !moved {
		return models.NewNotFoundError("Contact request", contactID)
	}
	return nil
}

// Block marks the target blocked from the caller's side, creating the entry
// if none exists.
func (s *ContactService) Block(ctx context.Context, userID, targetID uint) error {
	if userID == targetID {
		return models.NewValidationError("Cannot block yourself")
	}
	entry, err := s.contactRepo.GetPair(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if entry == nil {
		return s.contactRepo.Create(ctx, &models.Contact{
			UserID:      userID,
			ContactID:   targetID,
			Status:      models.ContactBlocked,
			RequestedBy: userID,
		})
	}
	return s.contactRepo.SetStatus(ctx, userID, targetID, models.ContactBlocked)
}

// Unblock clears a block the caller holds, reverting the pair to accepted
// when the other side still accepts, otherwise removing both rows.
func (s *ContactService) Unblock(ctx context.Context, userID, targetID uint) error {
	entry, err := s.contactRepo.GetPair(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if entry == nil || entry.Status != models.ContactBlocked {
		return models.NewNotFoundError("Block", targetID)
	}

	reverse, err := s.contactRepo.GetPair(ctx, targetID, userID)
	if err != nil {
		return err
	}
	if reverse != nil && reverse.Status == models.ContactAccepted {
		return s.contactRepo.SetStatus(ctx, userID, targetID, models.ContactAccepted)
	}
	return s.contactRepo.Delete(ctx, userID, targetID)
}

// Remove deletes the contact relationship in both directions.
func (s *ContactService) Remove(ctx context.Context, userID, targetID uint) error {
	entry, err := s.contactRepo.GetPair(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if entry == nil {
		return models.NewNotFoundError("Contact", targetID)
	}
	return s.contactRepo.Delete(ctx, userID, targetID)
}

// List returns the caller's contacts, optionally filtered by status.
func (s *ContactService) List(ctx context.Context, userID uint, status string) ([]*models.Contact, error) {
	switch status {
	case "", models.ContactPending, models.ContactAccepted, models.ContactBlocked:
	default:
		return nil, models.NewValidationError("Unknown contact status")
	}
	return s.contactRepo.ListForUser(ctx, userID, status)
}

// IsAccepted reports whether the pair is mutually accepted.
func (s *ContactService) IsAccepted(ctx context.Context, userID, targetID uint) (bool, error) {
	entry, err := s.contactRepo.GetPair(ctx, userID, targetID)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Status == models.ContactAccepted, nil
}
