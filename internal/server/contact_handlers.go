package server

import (
	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleListContacts(c *fiber.Ctx) error {
	contacts, err := s.contacts.List(c.UserContext(), currentUserID(c), c.Query("status"))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"contacts": contacts})
}

func (s *Server) handleContactRequest(c *fiber.Ctx) error {
	var req struct {
		UserID uint `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return models.RespondWithError(c, models.NewBadRequestError("userId is required"))
	}

	entry, err := s.contacts.Request(c.UserContext(), currentUserID(c), req.UserID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (s *Server) handleContactAccept(c *fiber.Ctx) error {
	targetID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.contacts.Accept(c.UserContext(), currentUserID(c), targetID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleContactBlock(c *fiber.Ctx) error {
	targetID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.contacts.Block(c.UserContext(), currentUserID(c), targetID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleContactUnblock(c *fiber.Ctx) error {
	targetID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.contacts.Unblock(c.UserContext(), currentUserID(c), targetID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleContactRemove(c *fiber.Ctx) error {
	targetID, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.contacts.Remove(c.UserContext(), currentUserID(c), targetID); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
