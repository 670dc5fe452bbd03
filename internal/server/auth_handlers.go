package server

import (
	"errors"
	"regexp"
	"strings"

	"parley/internal/auth"
	"parley/internal/models"
	"parley/internal/ratelimit"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	DeviceID    string `json:"deviceId"`
	DeviceType  string `json:"deviceType"`
	DeviceName  string `json:"deviceName"`
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	DeviceName string `json:"deviceName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	User         any    `json:"user,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}

	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	if !usernamePattern.MatchString(req.Username) {
		return models.RespondWithError(c, models.NewValidationError("Invalid username",
			models.FieldError{Field: "username", Message: "3-50 characters, letters, digits and underscores"}))
	}
	if len(req.Password) < 8 {
		return models.RespondWithError(c, models.NewValidationError("Password too short",
			models.FieldError{Field: "password", Message: "must be at least 8 characters"}))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	ctx := c.UserContext()
	user := &models.User{
		Username:    req.Username,
		DisplayName: displayName,
		Password:    string(hash),
		Status:      models.StatusOffline,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.RespondWithError(c, models.NewConflictError("username already taken"))
		}
		return models.RespondWithError(c, err)
	}
	s.limiter.Refund(ctx, ratelimit.BucketAuth, c.IP())

	// A fresh account logs straight in: the response carries a full token
	// pair and a session, same as POST /auth/login.
	refreshToken, err := s.tokens.IssueRefreshToken(user.ID, 0)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	sess := &models.Session{
		UserID:       user.ID,
		SessionToken: refreshToken,
		DeviceID:     req.DeviceID,
		DeviceType:   req.DeviceType,
		DeviceName:   req.DeviceName,
		IPAddress:    c.IP(),
		UserAgent:    c.Get("User-Agent"),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return models.RespondWithError(c, err)
	}
	accessToken, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(tokenResponse{
		User:         user.PublicProfile(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(auth.AccessTokenTTL.Seconds()),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, models.NewBadRequestError("invalid request body"))
	}

	ctx := c.UserContext()
	username := strings.TrimSpace(strings.ToLower(req.Username))

	// Keyed by IP and target account, so an attacker cannot lock out a user
	// fleet-wide while a single address still cannot spray passwords.
	if err := s.limiter.Check(ctx, ratelimit.BucketAuth, c.IP()+":"+username); err != nil {
		return models.RespondWithError(c, err)
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	// Identical response for unknown user and wrong password.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return models.RespondWithError(c, models.NewUnauthorizedError("invalid credentials"))
	}
	// Only failed attempts count against the auth window.
	s.limiter.Refund(ctx, ratelimit.BucketAuth, c.IP()+":"+username)

	refreshToken, err := s.tokens.IssueRefreshToken(user.ID, 0)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	sess := &models.Session{
		UserID:       user.ID,
		SessionToken: refreshToken,
		DeviceID:     req.DeviceID,
		DeviceType:   req.DeviceType,
		DeviceName:   req.DeviceName,
		IPAddress:    c.IP(),
		UserAgent:    c.Get("User-Agent"),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return models.RespondWithError(c, err)
	}

	accessToken, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	return c.JSON(tokenResponse{
		User:         user.PublicProfile(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(auth.AccessTokenTTL.Seconds()),
	})
}

// handleRefresh exchanges a valid refresh credential for a fresh access
// token. The credential doubles as the session token, so the session row is
// checked on every refresh.
func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return models.RespondWithError(c, models.NewBadRequestError("refreshToken is required"))
	}

	ctx := c.UserContext()
	userID, _, err := s.tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	sess, err := s.sessions.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if sess.UserID != userID {
		return models.RespondWithError(c, models.NewInvalidSessionError())
	}

	accessToken, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	s.sessions.Touch(ctx, sess)

	return c.JSON(tokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(auth.AccessTokenTTL.Seconds()),
	})
}

// handleLogout invalidates the session behind the presented refresh
// credential.
func (s *Server) handleLogout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return models.RespondWithError(c, models.NewBadRequestError("refreshToken is required"))
	}

	ctx := c.UserContext()
	sess, err := s.sessions.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		// Already gone; logout is idempotent.
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err := s.sessions.Invalidate(ctx, sess); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleLogoutAll(c *fiber.Ctx) error {
	count, err := s.sessions.InvalidateAllForUser(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"invalidated": count})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.sessions.ListForUser(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}
