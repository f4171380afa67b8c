package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/middleware"
	"github.com/Ananth-NQI/chatdesk-backend/internal/services"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// AdminHandler handles conversation operations for the team
type AdminHandler struct {
	store    storage.Store
	handoffs *services.HandoffWorkflow
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store, handoffs *services.HandoffWorkflow) *AdminHandler {
	return &AdminHandler{
		store:    store,
		handoffs: handoffs,
	}
}

// GetConversation returns a conversation and its recent messages
func (h *AdminHandler) GetConversation(c *fiber.Ctx) error {
	chatID := services.ChatIDForPhone(c.Params("chatId"))

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	conv, err := h.store.GetConversation(c.UserContext(), chatID)
	if err != nil {
		return respondError(c, err)
	}
	messages, err := h.store.GetRecentMessages(c.UserContext(), chatID, limit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"conversation": conv,
		"messages":     messages,
		"count":        len(messages),
	})
}

// ResumeConversation hands a conversation back to the bot
func (h *AdminHandler) ResumeConversation(c *fiber.Ctx) error {
	conv, err := h.handoffs.Resume(c.UserContext(), services.ChatIDForPhone(c.Params("chatId")))
	if err != nil {
		return respondError(c, err)
	}

	logger.Info("Conversation resumed from admin API", zap.String("chat_id", conv.ChatID), zap.String("by", actor(c)))
	return c.JSON(fiber.Map{
		"success":      true,
		"conversation": conv,
	})
}

// SendMessage sends a message to the customer as the team
func (h *AdminHandler) SendMessage(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.handoffs.ForwardToCustomer(c.UserContext(), c.Params("chatId"), req.Text); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// respondError maps service errors to HTTP statuses
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidState):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrUpstream):
		status = fiber.StatusBadGateway
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("Admin request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// ErrorHandler renders errors returned by handlers as JSON
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// idParam parses a numeric path parameter
func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

func actor(c *fiber.Ctx) string {
	if s, ok := c.Locals(middleware.LocalsAdmin).(string); ok {
		return s
	}
	return "admin"
}
