package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/services"
)

// InboundProcessor is the part of the bot the webhook needs
type InboundProcessor interface {
	HandleInboundMessage(ctx context.Context, payload services.InboundPayload) services.Result
}

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	bot            InboundProcessor
	processTimeout time.Duration
	inflight       sync.WaitGroup
}

// NewWhatsAppHandler creates a new WhatsApp handler. processTimeout bounds
// the background work for one message.
func NewWhatsAppHandler(bot InboundProcessor, processTimeout time.Duration) *WhatsAppHandler {
	if processTimeout <= 0 {
		processTimeout = 2 * time.Minute
	}
	return &WhatsAppHandler{bot: bot, processTimeout: processTimeout}
}

// HandleWebhook acknowledges a Twilio webhook immediately and processes the
// message in the background. Twilio always gets a 200.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := make(services.InboundPayload)
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		payload[string(key)] = string(value)
	})

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Recovered from panic while processing message",
					zap.Any("panic", rec),
					zap.String("message_id", payload["MessageSid"]),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
		defer cancel()
		h.bot.HandleInboundMessage(ctx, payload)
	}()

	return c.SendStatus(fiber.StatusOK)
}

// Wait blocks until background processing finishes or ctx is done
func (h *WhatsAppHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TestWebhookPayload is the JSON body of the development test endpoint
type TestWebhookPayload struct {
	From     string `json:"from"`
	Message  string `json:"message"`
	MediaURL string `json:"media_url"`
	Name     string `json:"name"`
}

// HandleTestWebhook runs a message through the bot synchronously and
// returns the result (for development).
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var req TestWebhookPayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if strings.TrimSpace(req.From) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from is required",
		})
	}

	payload := services.InboundPayload{
		"MessageSid":  "SMtest" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"From":        services.ChatIDForPhone(req.From),
		"Body":        req.Message,
		"ProfileName": req.Name,
		"NumMedia":    "0",
	}
	if req.MediaURL != "" {
		payload["NumMedia"] = "1"
		payload["MediaUrl0"] = req.MediaURL
		payload["MediaContentType0"] = "image/jpeg"
	}

	logger.Info("🧪 Test webhook received", zap.String("from", payload["From"]), zap.String("message", req.Message))

	res := h.bot.HandleInboundMessage(c.UserContext(), payload)
	resp := fiber.Map{
		"success":   res.Err == nil,
		"processed": res.Processed,
		"intent":    res.Intent,
		"outcome":   res.Outcome,
		"response":  res.Reply,
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	return c.JSON(resp)
}
