package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
)

// ValidateTwilioSignature validates that the webhook request is from Twilio.
// publicBaseURL is the externally visible scheme and host; when empty the
// request's own host is used.
func ValidateTwilioSignature(authToken, publicBaseURL string) fiber.Handler {
	validator := client.NewRequestValidator(authToken)

	return func(c *fiber.Ctx) error {
		twilioSignature := c.Get("X-Twilio-Signature")
		if twilioSignature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}

		if authToken == "" {
			logger.Error("Twilio auth token not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		fullURL := getFullURL(c, publicBaseURL)

		formParams := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formParams[string(key)] = string(value)
		})

		if !validator.Validate(fullURL, formParams, twilioSignature) {
			logger.Warn("Rejected webhook with invalid signature", zap.String("url", fullURL), zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// getFullURL rebuilds the URL Twilio signed, including the query string
func getFullURL(c *fiber.Ctx, publicBaseURL string) string {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		protocol := "https"
		if c.Protocol() == "http" {
			protocol = "http"
		}
		base = fmt.Sprintf("%s://%s", protocol, c.Hostname())
	}

	url := base + c.Path()
	if q := string(c.Request().URI().QueryString()); q != "" {
		url += "?" + q
	}
	return url
}
