package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/services"
)

// PaymentHandler exposes payment review over HTTP
type PaymentHandler struct {
	payments *services.PaymentWorkflow
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentWorkflow) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// ListPayments returns payments by status. The default is pending; "all"
// lists every payment.
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	status := c.Query("status", models.PaymentStatusPending)
	switch status {
	case "all":
		status = ""
	case models.PaymentStatusPending, models.PaymentStatusApproved, models.PaymentStatusRejected:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown status " + status,
		})
	}

	payments, err := h.payments.List(c.UserContext(), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"payments": payments,
		"count":    len(payments),
	})
}

// ApprovePayment approves a pending payment
func (h *PaymentHandler) ApprovePayment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.payments.Approve(c.UserContext(), id, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"payment": payment,
	})
}

// RejectPayment rejects a pending payment with a reason
func (h *PaymentHandler) RejectPayment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	payment, err := h.payments.Reject(c.UserContext(), id, req.Reason, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"payment": payment,
	})
}
