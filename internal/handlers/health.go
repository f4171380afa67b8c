package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	store   storage.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, store storage.Store) *HealthHandler {
	return &HealthHandler{
		Version: version,
		store:   store,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "DEGRADED",
			"service":  "ChatDesk Backend",
			"version":  h.Version,
			"database": "unreachable",
		})
	}

	return c.JSON(fiber.Map{
		"status":   "OK",
		"service":  "ChatDesk Backend",
		"version":  h.Version,
		"database": "ok",
	})
}
