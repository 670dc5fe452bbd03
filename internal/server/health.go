package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// handleHealth is the liveness probe: the process is up and serving.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// handleReady is the readiness probe: dependencies are reachable. A degraded
// dependency reports 503 so the balancer stops routing here.
func (s *Server) handleReady(c *fiber.Ctx) error {
	ctx := c.UserContext()
	checks := fiber.Map{}
	healthy := true

	dbStatus := "ok"
	if sqlDB, err := s.db.Primary.DB(); err != nil {
		dbStatus, healthy = "error: "+err.Error(), false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus, healthy = "error: "+err.Error(), false
	}
	checks["database"] = dbStatus

	redisStatus := "ok"
	if s.redis == nil {
		redisStatus, healthy = "unavailable", false
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus, healthy = "error: "+err.Error(), false
	}
	checks["redis"] = redisStatus

	status := fiber.StatusOK
	overall := "ready"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":    overall,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
