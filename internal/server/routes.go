package server

import (
	"strconv"
	"strings"

	"parley/internal/models"
	"parley/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/health/ready", s.handleReady)

	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", s.rateLimitByIP(ratelimit.BucketAuth), s.handleRegister)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/refresh", s.handleRefresh)
	authGroup.Post("/logout", s.handleLogout)
	authGroup.Post("/logout-all", s.requireAuth, s.handleLogoutAll)
	authGroup.Get("/sessions", s.requireAuth, s.handleListSessions)

	api := s.app.Group("/api", s.requireAuth, s.rateLimitByUser(ratelimit.BucketAPI))

	users := api.Group("/users")
	users.Get("/me", s.handleMe)
	users.Put("/me", s.handleUpdateProfile)
	users.Get("/search", s.rateLimitByUser(ratelimit.BucketSearch), s.handleSearchUsers)
	users.Get("/online", s.handleOnlineUsers)
	users.Get("/:id", s.handleGetUser)

	chats := api.Group("/chats")
	chats.Get("/", s.handleListChats)
	chats.Post("/", s.handleCreateChat)
	chats.Get("/:id", s.handleGetChat)
	chats.Patch("/:id", s.handleRenameChat)
	chats.Delete("/:id", s.handleDeleteChat)
	chats.Post("/:id/participants", s.handleAddParticipant)
	chats.Delete("/:id/participants/:userId", s.handleRemoveParticipant)
	chats.Post("/:id/leave", s.handleLeaveChat)
	chats.Post("/:id/read-all", s.handleMarkAllRead)
	chats.Get("/:id/messages", s.handleListMessages)
	chats.Post("/:id/messages", s.rateLimitByUser(ratelimit.BucketMessage), s.handleSendMessage)

	messages := api.Group("/messages")
	messages.Get("/search", s.rateLimitByUser(ratelimit.BucketSearch), s.handleSearchMessages)
	messages.Put("/:id", s.handleEditMessage)
	messages.Delete("/:id", s.handleDeleteMessage)
	messages.Post("/:id/read", s.handleMarkRead)

	contacts := api.Group("/contacts")
	contacts.Get("/", s.handleListContacts)
	contacts.Post("/", s.rateLimitByUser(ratelimit.BucketContactRequest), s.handleContactRequest)
	contacts.Post("/:id/accept", s.handleContactAccept)
	contacts.Post("/:id/block", s.handleContactBlock)
	contacts.Post("/:id/unblock", s.handleContactUnblock)
	contacts.Delete("/:id", s.handleContactRemove)

	s.app.Use("/ws", s.upgradeGate)
	s.app.Get("/ws", websocket.New(s.handleSocket))
}

// requireAuth validates the bearer access token and stashes the caller's ID.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return models.RespondWithError(c, models.NewUnauthorizedError("missing bearer token"))
	}
	userID, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	c.Locals("userID", userID)
	return c.Next()
}

func (s *Server) rateLimitByIP(bucket string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := s.limiter.Check(c.UserContext(), bucket, c.IP()); err != nil {
			return models.RespondWithError(c, err)
		}
		return c.Next()
	}
}

func (s *Server) rateLimitByUser(bucket string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if userID, ok := c.Locals("userID").(uint); ok {
			key = strconv.FormatUint(uint64(userID), 10)
		}
		if err := s.limiter.Check(c.UserContext(), bucket, key); err != nil {
			return models.RespondWithError(c, err)
		}
		return c.Next()
	}
}

func currentUserID(c *fiber.Ctx) uint {
	userID, _ := c.Locals("userID").(uint)
	return userID
}

func paramUint(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewBadRequestError("invalid " + name)
	}
	return uint(id), nil
}

func queryUint(c *fiber.Ctx, name string) uint {
	id, _ := strconv.ParseUint(c.Query(name), 10, 32)
	return uint(id)
}
