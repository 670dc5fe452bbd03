package server

import (
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createChatRequest struct {
	Type           string `json:"type"`
	PartnerID      uint   `json:"partnerId"`
	Name           string `json:"name"`
	ParticipantIDs []uint `json:"participantIds"`
}

func (s *Server) handleListChats(c *fiber.Ctx) error {
	chats, err := s.chats.List(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"chats": chats})
}

func (s *Server) handleCreateChat(c *fiber.Ctx) error {
	var req createChatRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}

	userID := currentUserID(c)
	ctx := c.UserContext()

	var chat *models.Chat
	var err error
	switch req.Type {
	case models.ChatDirect:
		chat, err = s.chats.CreateDirect(ctx, service.CreateDirectInput{
			UserID: userID, Partner: req.PartnerID,
		})
	case models.ChatGroup:
		chat, err = s.chats.CreateGroup(ctx, service.CreateGroupInput{
			OwnerID: userID, Name: req.Name, ParticipantIDs: req.ParticipantIDs,
		})
	default:
		err = models.NewValidationError("Unknown chat type",
			models.FieldError{Field: "type", Message: "must be direct or group"})
	}
	if err != nil {
		return models.RespondWithError(c, err)
	}

	// Connected participants start receiving the chat's events right away.
	for _, id := range chat.ActiveParticipantIDs() {
		s.hub.JoinChat(id, chat.ID)
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}

func (s *Server) handleGetChat(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	chat, err := s.chats.Get(c.UserContext(), currentUserID(c), chatID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleRenameChat(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}

	chat, err := s.chats.Rename(c.UserContext(), currentUserID(c), chatID, req.Name)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(chat)
}

func (s *Server) handleDeleteChat(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.chats.Delete(c.UserContext(), currentUserID(c), chatID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAddParticipant(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	var req struct {
		UserID uint `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return models.RespondWithError(c, models.NewBadRequestError("userId is required"))
	}

	chat, err := s.chats.AddParticipant(c.UserContext(), currentUserID(c), chatID, req.UserID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	s.hub.JoinChat(req.UserID, chatID)
	return c.JSON(chat)
}

func (s *Server) handleRemoveParticipant(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	targetID, err := paramUint(c, "userId")
	if err != nil {
		return models.RespondWithError(c, err)
	}

	chat, err := s.chats.RemoveParticipant(c.UserContext(), currentUserID(c), chatID, targetID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	s.hub.LeaveChat(targetID, chatID)
	return c.JSON(chat)
}

func (s *Server) handleLeaveChat(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	userID := currentUserID(c)
	if err := s.chats.Leave(c.UserContext(), userID, chatID); err != nil {
		return models.RespondWithError(c, err)
	}
	s.hub.LeaveChat(userID, chatID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarkAllRead(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.messages.MarkAllRead(c.UserContext(), currentUserID(c), chatID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
