package service

import (
	"context"
	"strings"
	"time"

	"parley/internal/models"
	"parley/internal/repository"
)

// UserService covers profile reads, updates, and user search.
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService returns a new UserService.
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UpdateProfileInput carries the editable profile fields.
type UpdateProfileInput struct {
	UserID      uint
	DisplayName string
	AvatarRef   string
}

// UpdateProfile updates display name and avatar reference.
func (s *UserService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*models.User, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, models.NewValidationError("Display name cannot be empty")
	}
	if len([]rune(displayName)) > 100 {
		return nil, models.NewValidationError("Display name too long",
			models.FieldError{Field: "displayName", Message: "must be at most 100 characters"})
	}

	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	user.DisplayName = displayName
	user.AvatarRef = strings.TrimSpace(input.AvatarRef)
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Search finds users by username or display name fragment.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, models.NewValidationError("Search query must be at least 2 characters")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.userRepo.Search(ctx, query, limit)
}

// RecordStatus persists the user's presence status and last-seen time. Called
// from the presence layer on status transitions.
func (s *UserService) RecordStatus(ctx context.Context, userID uint, status string) error {
	switch status {
	case models.StatusOnline, models.StatusAway, models.StatusOffline:
	default:
		return models.NewValidationError("Unknown status")
	}
	return s.userRepo.SetStatus(ctx, userID, status, time.Now())
}
