package server

import (
	"strconv"

	"parley/internal/models"
	"parley/internal/realtime"

	"github.com/gofiber/fiber/v2"
)

// handleListMessages pages a chat's history backwards via the before cursor.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	before := queryUint(c, "before")

	msgs, err := s.messages.History(c.UserContext(), currentUserID(c), chatID, before, limit)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	var nextCursor uint
	if len(msgs) > 0 {
		nextCursor = msgs[len(msgs)-1].ID
	}
	return c.JSON(fiber.Map{
		"messages":   msgs,
		"nextCursor": nextCursor,
	})
}

// handleSendMessage is the REST fallback for clients without a socket. The
// send path is identical to the socket one.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	chatID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}

	var payload realtime.SendMessagePayload
	if err := c.BodyParser(&payload); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}
	payload.ChatID = chatID

	msg, err := s.messages.Send(c.UserContext(), currentUserID(c), payload)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) handleEditMessage(c *fiber.Ctx) error {
	messageID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}

	msg, err := s.messages.Edit(c.UserContext(), currentUserID(c), messageID, req.Content)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(msg)
}

func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	messageID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if _, err := s.messages.Delete(c.UserContext(), currentUserID(c), messageID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	messageID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.messages.MarkRead(c.UserContext(), currentUserID(c), messageID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSearchMessages(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := s.messages.Search(c.UserContext(), currentUserID(c), c.Query("q"), limit)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}
