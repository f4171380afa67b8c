package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/intent"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/metrics"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/sheets"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// PaymentWorkflow handles payment screenshots and their review
type PaymentWorkflow struct {
	store          storage.Store
	messenger      *Messenger
	mirror         sheets.Mirror
	catalog        *catalog.Catalog
	metrics        *metrics.Metrics
	supportContact string
	now            func() time.Time
}

// NewPaymentWorkflow creates a payment workflow
func NewPaymentWorkflow(store storage.Store, messenger *Messenger, mirror sheets.Mirror, cat *catalog.Catalog, m *metrics.Metrics, supportContact string) *PaymentWorkflow {
	return &PaymentWorkflow{
		store:          store,
		messenger:      messenger,
		mirror:         mirror,
		catalog:        cat,
		metrics:        m,
		supportContact: supportContact,
		now:            time.Now,
	}
}

// Initiate records a pending payment for a screenshot, alerts the
// operator and acknowledges the customer. serviceID names the order being
// paid for; empty records a payment with no service or amount.
func (w *PaymentWorkflow) Initiate(ctx context.Context, conv *models.Conversation, mediaURL, serviceID string) (*models.Payment, error) {
	convID := conv.ID
	p := &models.Payment{
		ConversationID: &convID,
		ChatID:         conv.ChatID,
		Phone:          conv.Phone,
		Currency:       w.catalog.Business.Currency,
		ScreenshotURL:  mediaURL,
	}
	if svc, ok := w.catalog.Service(serviceID); ok {
		p.ServiceID = svc.ID
		amount := float64(svc.Price)
		p.Amount = &amount
	}

	if err := w.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	w.metrics.Payment(p.Status)
	logger.Info("💰 Payment submitted", zap.Uint("payment_id", p.ID), zap.String("chat_id", p.ChatID))

	w.mirrorPayment(ctx, p)

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 New payment #%d from %s (%s)\n", p.ID, conv.DisplayName(), conv.Phone)
	if p.ServiceID != "" {
		fmt.Fprintf(&sb, "Service: %s, %s %.0f\n", p.ServiceID, p.Currency, *p.Amount)
	}
	fmt.Fprintf(&sb, "Screenshot: %s\n\nReply /approve %d or /reject %d <reason>", mediaURL, p.ID, p.ID)
	w.messenger.NotifyOperator(ctx, sb.String())

	reply, err := w.catalog.Render(catalog.TplPaymentReceived, map[string]interface{}{"PaymentID": p.ID})
	if err != nil {
		return p, err
	}
	if err := w.messenger.Reply(ctx, conv, reply, string(intent.PaymentConfirmation)); err != nil {
		return p, err
	}
	return p, nil
}

// Approve marks a pending payment approved and tells the customer
func (w *PaymentWorkflow) Approve(ctx context.Context, id uint, approver string) (*models.Payment, error) {
	p, err := w.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := w.now()
	p.Status = models.PaymentStatusApproved
	p.ReviewedBy = approver
	p.ApprovedAt = &now
	if err := w.store.UpdatePaymentFrom(ctx, p, models.PaymentStatusPending); err != nil {
		return nil, storeErr(err, fmt.Sprintf("payment #%d", id))
	}
	w.metrics.Payment(p.Status)
	logger.Info("✅ Payment approved", zap.Uint("payment_id", id), zap.String("by", approver))

	w.mirrorPayment(ctx, p)
	w.notifyCustomer(ctx, p, catalog.TplPaymentApproved, map[string]interface{}{"PaymentID": p.ID})
	w.messenger.NotifyOperator(ctx, fmt.Sprintf("✅ Payment #%d approved. Customer %s notified.", p.ID, p.Phone))
	return p, nil
}

// Reject marks a pending payment rejected with a reason and tells the
// customer.
func (w *PaymentWorkflow) Reject(ctx context.Context, id uint, reason, rejecter string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("a rejection reason is required: %w", ErrValidation)
	}
	p, err := w.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := w.now()
	p.Status = models.PaymentStatusRejected
	p.ReviewedBy = rejecter
	p.RejectedAt = &now
	p.Notes = reason
	if err := w.store.UpdatePaymentFrom(ctx, p, models.PaymentStatusPending); err != nil {
		return nil, storeErr(err, fmt.Sprintf("payment #%d", id))
	}
	w.metrics.Payment(p.Status)
	logger.Info("❌ Payment rejected", zap.Uint("payment_id", id), zap.String("by", rejecter), zap.String("reason", reason))

	w.mirrorPayment(ctx, p)
	w.notifyCustomer(ctx, p, catalog.TplPaymentRejected, map[string]interface{}{
		"PaymentID": p.ID,
		"Reason":    reason,
		"Support":   w.supportContact,
	})
	w.messenger.NotifyOperator(ctx, fmt.Sprintf("❌ Payment #%d rejected. Customer %s notified.", p.ID, p.Phone))
	return p, nil
}

// ListPending returns payments awaiting review, oldest first
func (w *PaymentWorkflow) ListPending(ctx context.Context) ([]*models.Payment, error) {
	return w.List(ctx, models.PaymentStatusPending)
}

// List returns payments with a status, or all payments for ""
func (w *PaymentWorkflow) List(ctx context.Context, status string) ([]*models.Payment, error) {
	return w.store.ListPaymentsByStatus(ctx, status)
}

func (w *PaymentWorkflow) pending(ctx context.Context, id uint) (*models.Payment, error) {
	p, err := w.store.GetPayment(ctx, id)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("payment #%d", id))
	}
	if p.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("payment #%d is already %s: %w", id, p.Status, ErrInvalidState)
	}
	return p, nil
}

func (w *PaymentWorkflow) mirrorPayment(ctx context.Context, p *models.Payment) {
	if err := w.mirror.RecordPayment(ctx, p); err != nil {
		w.metrics.OutboundFailure(metrics.TargetSheets)
		logger.Warn("Failed to mirror payment", zap.Uint("payment_id", p.ID), zap.Error(err))
	}
}

func (w *PaymentWorkflow) notifyCustomer(ctx context.Context, p *models.Payment, tpl string, data map[string]interface{}) {
	text, err := w.catalog.Render(tpl, data)
	if err != nil {
		logger.Error("Failed to render payment notice", zap.String("template", tpl), zap.Error(err))
		return
	}

	conv, err := w.store.GetConversation(ctx, p.ChatID)
	if err != nil {
		err = w.messenger.SendRaw(ctx, p.ChatID, text)
	} else {
		err = w.messenger.Reply(ctx, conv, text, "")
	}
	if err != nil {
		logger.Warn("Failed to notify customer about payment", zap.Uint("payment_id", p.ID), zap.Error(err))
	}
}
