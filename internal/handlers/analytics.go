package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

type AnalyticsHandler struct {
	store storage.Store
}

func NewAnalyticsHandler(store storage.Store) *AnalyticsHandler {
	return &AnalyticsHandler{
		store: store,
	}
}

func (h *AnalyticsHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.store.GetStats(c.UserContext(), time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}
