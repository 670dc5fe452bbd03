package server

import (
	"strconv"

	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleMe(c *fiber.Ctx) error {
	user, err := s.users.Get(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req struct {
		DisplayName string `json:"displayName"`
		AvatarRef   string `json:"avatarRef"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}

	user, err := s.users.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:      currentUserID(c),
		DisplayName: req.DisplayName,
		AvatarRef:   req.AvatarRef,
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleGetUser(c *fiber.Ctx) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	user, err := s.users.Get(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(user.PublicProfile())
}

func (s *Server) handleSearchUsers(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := s.users.Search(c.UserContext(), c.Query("q"), limit)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	profiles := make([]any, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.PublicProfile())
	}
	return c.JSON(fiber.Map{"users": profiles})
}

// handleOnlineUsers reports fleet-wide presence for the caller's UI.
func (s *Server) handleOnlineUsers(c *fiber.Ctx) error {
	ids := s.hub.Presence().OnlineUserIDs(c.UserContext())
	return c.JSON(fiber.Map{"userIds": ids})
}
