package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/chatdesk-backend/internal/services"
)

// SupportHandler exposes handoff requests over HTTP
type SupportHandler struct {
	handoffs *services.HandoffWorkflow
}

// NewSupportHandler creates a new support handler
func NewSupportHandler(handoffs *services.HandoffWorkflow) *SupportHandler {
	return &SupportHandler{handoffs: handoffs}
}

// ListHandoffs returns requests still waiting on a human
func (h *SupportHandler) ListHandoffs(c *fiber.Ctx) error {
	handoffs, err := h.handoffs.ListOpen(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"handoffs": handoffs,
		"count":    len(handoffs),
	})
}

// AssignHandoff gives a request to an agent
func (h *SupportHandler) AssignHandoff(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Agent string `json:"agent"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	handoff, err := h.handoffs.Assign(c.UserContext(), id, req.Agent)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"handoff": handoff,
	})
}

// ResolveHandoff closes a request
func (h *SupportHandler) ResolveHandoff(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	handoff, err := h.handoffs.Resolve(c.UserContext(), id, req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"handoff": handoff,
	})
}
