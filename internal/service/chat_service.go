package service

import (
	"context"
	"strings"
	"time"

	"parley/internal/database"
	"parley/internal/models"
	"parley/internal/repository"
)

// ChatService manages chat lifecycle and membership.
type ChatService struct {
	db          *database.DB
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	contactRepo repository.ContactRepository
	broadcaster Broadcaster
}

// NewChatService returns a new ChatService.
func NewChatService(
	db *database.DB,
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	contactRepo repository.ContactRepository,
	broadcaster Broadcaster,
) *ChatService {
	return &ChatService{
		db:          db,
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		contactRepo: contactRepo,
		broadcaster: broadcaster,
	}
}

// CreateDirectInput carries the parameters for opening a direct chat.
type CreateDirectInput struct {
	UserID  uint
	Partner uint
}

// CreateDirect opens a two-party chat, or returns the existing one. A direct
// chat between the same pair is never duplicated.
func (s *ChatService) CreateDirect(ctx context.Context, input CreateDirectInput) (*models.Chat, error) {
	if input.UserID == input.Partner {
		return nil, models.NewValidationError("Cannot open a direct chat with yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, input.Partner); err != nil {
		return nil, err
	}

	if err := s.requireNotBlocked(ctx, input.UserID, input.Partner); err != nil {
		return nil, err
	}

	existing, err := s.chatRepo.FindDirect(ctx, input.UserID, input.Partner)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ActiveParticipant(input.UserID) == nil {
			if err := s.chatRepo.RejoinParticipant(ctx, existing.ID, input.UserID); err != nil {
				return nil, err
			}
			return s.chatRepo.GetByID(ctx, existing.ID)
		}
		return existing, nil
	}

	now := time.Now()
	chat := &models.Chat{
		Type: models.ChatDirect,
		Participants: []models.Participant{
			{UserID: input.UserID, Role: models.RoleMember, JoinedAt: now},
			{UserID: input.Partner, Role: models.RoleMember, JoinedAt: now},
		},
	}
	if err := s.chatRepo.Create(ctx, chat); err != nil {
		return nil, err
	}
	return s.chatRepo.GetByID(ctx, chat.ID)
}

// CreateGroupInput carries the parameters for creating a group chat.
type CreateGroupInput struct {
	OwnerID        uint
	Name           string
	ParticipantIDs []uint
}

// CreateGroup creates a group chat with the caller as owner.
func (s *ChatService) CreateGroup(ctx context.Context, input CreateGroupInput) (*models.Chat, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, models.NewValidationError("Group name cannot be empty")
	}
	if len([]rune(name)) > models.MaxGroupNameLen {
		return nil, models.NewValidationError("Group name too long",
			models.FieldError{Field: "name", Message: "must be at most 100 characters"})
	}

	members := map[uint]struct{}{input.OwnerID: {}}
	for _, id := range input.ParticipantIDs {
		members[id] = struct{}{}
	}
	if len(members) > models.MaxGroupParticipants {
		return nil, models.NewValidationError("Too many participants",
			models.FieldError{Field: "participantIds", Message: "groups hold at most 300 members"})
	}
	for id := range members {
		if id == input.OwnerID {
			continue
		}
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	chat := &models.Chat{
		Type:    models.ChatGroup,
		Name:    name,
		OwnerID: &input.OwnerID,
	}
	for id := range members {
		role := models.RoleMember
		if id == input.OwnerID {
			role = models.RoleOwner
		}
		chat.Participants = append(chat.Participants, models.Participant{
			UserID: id, Role: role, JoinedAt: now,
		})
	}
	if err := s.chatRepo.Create(ctx, chat); err != nil {
		return nil, err
	}

	full, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastChatUpdate(ctx, full)
	return full, nil
}

// Get returns a chat the caller belongs to.
func (s *ChatService) Get(ctx context.Context, userID, chatID uint) (*models.Chat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.ActiveParticipant(userID) == nil {
		return nil, models.NewNotAParticipantError(chatID)
	}
	return chat, nil
}

// List returns the caller's chats, most recently active first.
func (s *ChatService) List(ctx context.Context, userID uint) ([]*models.Chat, error) {
	return s.chatRepo.ListForUser(ctx, userID)
}

// Rename changes a group chat's name. Owner or admin only.
func (s *ChatService) Rename(ctx context.Context, userID, chatID uint, name string) (*models.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > models.MaxGroupNameLen {
		return nil, models.NewValidationError("Invalid group name")
	}

	chat, err := s.requireGroupRole(ctx, chatID, userID, models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.UpdateName(ctx, chat.ID, name); err != nil {
		return nil, err
	}
	chat.Name = name
	s.broadcaster.BroadcastChatUpdate(ctx, chat)
	return chat, nil
}

// AddParticipant adds a user to a group chat, reactivating a prior membership
// when one exists. Owner or admin only.
func (s *ChatService) AddParticipant(ctx context.Context, userID, chatID, newUserID uint) (*models.Chat, error) {
	chat, err := s.requireGroupRole(ctx, chatID, userID, models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if chat.ActiveParticipant(newUserID) != nil {
		return nil, models.NewConflictError("User is already a participant")
	}
	if _, err := s.userRepo.GetByID(ctx, newUserID); err != nil {
		return nil, err
	}

	count, err := s.chatRepo.ActiveParticipantCount(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if count >= models.MaxGroupParticipants {
		return nil, models.NewConflictError("Group is full")
	}

	var prior int64
	if err := s.db.Primary.WithContext(ctx).Model(&models.Participant{}).
		Where("chat_id = ? AND user_id = ?", chatID, newUserID).
		Count(&prior).Error; err != nil {
		return nil, err
	}
	if prior > 0 {
		err = s.chatRepo.RejoinParticipant(ctx, chatID, newUserID)
	} else {
		err = s.chatRepo.AddParticipant(ctx, &models.Participant{
			ChatID: chatID, UserID: newUserID, Role: models.RoleMember, JoinedAt: time.Now(),
		})
	}
	if err != nil {
		return nil, err
	}

	full, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastChatUpdate(ctx, full)
	return full, nil
}

// RemoveParticipant removes a member from a group chat. Owner or admin only;
// the owner cannot be removed.
func (s *ChatService) RemoveParticipant(ctx context.Context, userID, chatID, targetID uint) (*models.Chat, error) {
	chat, err := s.requireGroupRole(ctx, chatID, userID, models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	target := chat.ActiveParticipant(targetID)
	if target == nil {
		return nil, models.NewNotFoundError("Participant", targetID)
	}
	if target.Role == models.RoleOwner {
		return nil, models.NewForbiddenError("The owner cannot be removed")
	}

	if err := s.chatRepo.RemoveParticipant(ctx, chatID, targetID); err != nil {
		return nil, err
	}

	full, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastChatUpdate(ctx, full)
	return full, nil
}

// Leave removes the caller from a chat. The owner of a group must delete it
// instead of leaving.
func (s *ChatService) Leave(ctx context.Context, userID, chatID uint) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	p := chat.ActiveParticipant(userID)
	if p == nil {
		return models.NewNotAParticipantError(chatID)
	}
	if chat.IsGroup() && p.Role == models.RoleOwner {
		return models.NewForbiddenError("The owner cannot leave; delete the group instead")
	}

	if err := s.chatRepo.RemoveParticipant(ctx, chatID, userID); err != nil {
		return err
	}

	if full, err := s.chatRepo.GetByID(ctx, chatID); err == nil {
		s.broadcaster.BroadcastChatUpdate(ctx, full)
	}
	return nil
}

// Delete soft-deletes a group chat. Owner only.
func (s *ChatService) Delete(ctx context.Context, userID, chatID uint) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsGroup() {
		return models.NewValidationError("Direct chats cannot be deleted")
	}
	p := chat.ActiveParticipant(userID)
	if p == nil || p.Role != models.RoleOwner {
		return models.NewForbiddenError("Only the owner can delete a group")
	}

	if err := s.chatRepo.SoftDelete(ctx, chatID); err != nil {
		return err
	}
	chat.IsDeleted = true
	s.broadcaster.BroadcastChatUpdate(ctx, chat)
	return nil
}

// ChatIDsForUser exposes the caller's active chat memberships for socket
// room joins.
func (s *ChatService) ChatIDsForUser(ctx context.Context, userID uint) ([]uint, error) {
	return s.chatRepo.ChatIDsForUser(ctx, userID)
}

func (s *ChatService) requireGroupRole(ctx context.Context, chatID, userID uint, roles ...string) (*models.Chat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroup() {
		return nil, models.NewValidationError("Operation applies to group chats only")
	}
	p := chat.ActiveParticipant(userID)
	if p == nil {
		return nil, models.NewNotAParticipantError(chatID)
	}
	for _, role := range roles {
		if p.Role == role {
			return chat, nil
		}
	}
	return nil, models.NewForbiddenError("Insufficient role for this operation")
}

// requireNotBlocked rejects when either side of the pair has blocked the
// other.
func (s *ChatService) requireNotBlocked(ctx context.Context, userID, otherID uint) error {
	for _, pair := range [][2]uint{{userID, otherID}, {otherID, userID}} {
		entry, err := s.contactRepo.GetPair(ctx, pair[0], pair[1])
		if err != nil {
			return err
		}
		if entry != nil && entry.Status == models.ContactBlocked {
			return models.NewForbiddenError("Cannot open a chat with this user")
		}
	}
	return nil
}
