package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/chatdesk-backend/internal/config"
	"github.com/Ananth-NQI/chatdesk-backend/internal/handlers"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/middleware"
)

// Handlers are the route targets
type Handlers struct {
	Health    *handlers.HealthHandler
	WhatsApp  *handlers.WhatsAppHandler
	Admin     *handlers.AdminHandler
	Payments  *handlers.PaymentHandler
	Support   *handlers.SupportHandler
	Analytics *handlers.AnalyticsHandler
	Metrics   fiber.Handler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, h *Handlers) {

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to ChatDesk Backend!",
			"version": h.Health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"metrics": "/metrics",
				"webhook": "/webhook/whatsapp",
				"admin":   "/admin",
			},
		})
	})

	app.Get("/health", h.Health.Check)
	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics)
	}

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	if cfg.DisableWebhookValidation {
		webhooks.Post("/whatsapp", h.WhatsApp.HandleWebhook)
		logger.Warn("⚠️  WhatsApp webhook validation DISABLED")
	} else {
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(cfg.TwilioAuthToken, cfg.PublicBaseURL), h.WhatsApp.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	if cfg.IsDevelopment() {
		app.Post("/test/whatsapp", h.WhatsApp.HandleTestWebhook)
	}

	// ========== ADMIN ROUTES ==========
	admin := app.Group("/admin", middleware.RequireAdmin(cfg.AdminJWTSecret))

	admin.Get("/stats", h.Analytics.GetStats)

	payments := admin.Group("/payments")
	payments.Get("/", h.Payments.ListPayments)
	payments.Post("/:id/approve", h.Payments.ApprovePayment)
	payments.Post("/:id/reject", h.Payments.RejectPayment)

	handoffs := admin.Group("/handoffs")
	handoffs.Get("/", h.Support.ListHandoffs)
	handoffs.Post("/:id/assign", h.Support.AssignHandoff)
	handoffs.Post("/:id/resolve", h.Support.ResolveHandoff)

	conversations := admin.Group("/conversations")
	conversations.Get("/:chatId", h.Admin.GetConversation)
	conversations.Get("/:chatId/messages", h.Admin.GetConversation)
	conversations.Post("/:chatId/messages", h.Admin.SendMessage)
	conversations.Post("/:chatId/resume", h.Admin.ResumeConversation)
}
