package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/metrics"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/sheets"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// Notes written when the system closes a handoff
const (
	ResumeNote = "Resumed automated replies by operator"
)

// HandoffWorkflow moves conversations between the bot and a human
type HandoffWorkflow struct {
	store     storage.Store
	messenger *Messenger
	mirror    sheets.Mirror
	catalog   *catalog.Catalog
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewHandoffWorkflow creates a handoff workflow
func NewHandoffWorkflow(store storage.Store, messenger *Messenger, mirror sheets.Mirror, cat *catalog.Catalog, m *metrics.Metrics) *HandoffWorkflow {
	return &HandoffWorkflow{
		store:     store,
		messenger: messenger,
		mirror:    mirror,
		catalog:   cat,
		metrics:   m,
		now:       time.Now,
	}
}

// Initiate hands the conversation to a human. An already open request for
// the chat is reused and its priority raised rather than duplicated.
func (w *HandoffWorkflow) Initiate(ctx context.Context, conv *models.Conversation, reason, priority string) (*models.HandoffRequest, error) {
	if priority == "" {
		priority = models.PriorityNormal
	}

	h, err := w.store.GetOpenHandoff(ctx, conv.ChatID)
	switch {
	case err == nil:
		if models.PriorityRank(priority) > models.PriorityRank(h.Priority) {
			h.Priority = priority
		}
		if reason != "" && !strings.Contains(h.Reason, reason) {
			h.Reason = strings.TrimPrefix(h.Reason+"; "+reason, "; ")
		}
		if err := w.store.UpdateHandoff(ctx, h); err != nil {
			return nil, storeErr(err, fmt.Sprintf("handoff #%d", h.ID))
		}
		logger.Info("Handoff request reused", zap.Uint("handoff_id", h.ID), zap.String("chat_id", conv.ChatID))
	case errors.Is(err, storage.ErrNotFound):
		h = &models.HandoffRequest{
			ConversationID: conv.ID,
			ChatID:         conv.ChatID,
			Phone:          conv.Phone,
			CustomerName:   conv.CustomerName,
			Reason:         reason,
			Priority:       priority,
		}
		if err := w.store.CreateHandoff(ctx, h); err != nil {
			return nil, fmt.Errorf("create handoff: %w", err)
		}
		w.metrics.HandoffOpened(h.Priority)
		logger.Info("🙋 Handoff requested",
			zap.Uint("handoff_id", h.ID),
			zap.String("chat_id", conv.ChatID),
			zap.String("priority", h.Priority),
			zap.String("reason", reason),
		)
	default:
		return nil, fmt.Errorf("find open handoff: %w", err)
	}

	conv.Status = models.ConversationStatusHumanHandoff
	TakeFollowUp(conv)
	if err := w.store.UpdateConversation(ctx, conv); err != nil {
		return h, storeErr(err, "conversation "+conv.ChatID)
	}
	if err := w.messenger.Record(ctx, conv, models.SenderSystem, fmt.Sprintf("Handoff #%d: %s", h.ID, reason), ""); err != nil {
		logger.Warn("Failed to log handoff note", zap.Error(err))
	}

	w.mirrorHandoff(ctx, h)
	w.messenger.NotifyOperator(ctx, handoffAlert(h, conv))

	reply, err := w.catalog.Render(catalog.TplHandoffCustomer, map[string]interface{}{
		"Urgent": models.PriorityRank(h.Priority) >= models.PriorityRank(models.PriorityHigh),
	})
	if err != nil {
		return h, err
	}
	return h, w.messenger.Reply(ctx, conv, reply, "")
}

// Resume hands a conversation back to the bot and closes its open requests
func (w *HandoffWorkflow) Resume(ctx context.Context, chatID string) (*models.Conversation, error) {
	conv, err := w.store.GetConversation(ctx, chatID)
	if err != nil {
		return nil, storeErr(err, "conversation "+chatID)
	}
	if !conv.InHandoff() {
		return nil, fmt.Errorf("conversation %s is %s, not in handoff: %w", conv.Phone, conv.Status, ErrInvalidState)
	}

	if err := w.activate(ctx, conv); err != nil {
		return nil, err
	}
	n, err := w.store.ResolveOpenHandoffs(ctx, chatID, ResumeNote, w.now())
	if err != nil {
		logger.Warn("Failed to resolve open handoffs", zap.String("chat_id", chatID), zap.Error(err))
	}
	logger.Info("🤖 AI resumed", zap.String("chat_id", chatID), zap.Int64("resolved", n))

	w.replyResumed(ctx, conv)
	w.messenger.NotifyOperator(ctx, fmt.Sprintf("🤖 AI resumed for %s (%s).", conv.DisplayName(), conv.Phone))
	return conv, nil
}

// Assign gives an open request to an agent
func (w *HandoffWorkflow) Assign(ctx context.Context, id uint, agent string) (*models.HandoffRequest, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, fmt.Errorf("an agent is required: %w", ErrValidation)
	}
	h, err := w.open(ctx, id)
	if err != nil {
		return nil, err
	}

	now := w.now()
	h.Status = models.HandoffStatusAssigned
	h.AssignedTo = agent
	h.AssignedAt = &now
	if err := w.store.UpdateHandoff(ctx, h); err != nil {
		return nil, storeErr(err, fmt.Sprintf("handoff #%d", id))
	}

	if conv, err := w.store.GetConversation(ctx, h.ChatID); err == nil {
		conv.AssignedAgent = agent
		if err := w.store.UpdateConversation(ctx, conv); err != nil {
			logger.Warn("Failed to set assigned agent", zap.String("chat_id", h.ChatID), zap.Error(err))
		}
	}

	w.mirrorHandoff(ctx, h)
	w.messenger.NotifyOperator(ctx, fmt.Sprintf("👤 Handoff #%d assigned to %s.", h.ID, agent))
	return h, nil
}

// Resolve closes an open request and hands the conversation back to the bot
func (w *HandoffWorkflow) Resolve(ctx context.Context, id uint, notes string) (*models.HandoffRequest, error) {
	h, err := w.open(ctx, id)
	if err != nil {
		return nil, err
	}

	now := w.now()
	h.Status = models.HandoffStatusResolved
	h.ResolutionNotes = strings.TrimSpace(notes)
	h.ResolvedAt = &now
	if err := w.store.UpdateHandoff(ctx, h); err != nil {
		return nil, storeErr(err, fmt.Sprintf("handoff #%d", id))
	}

	conv, err := w.store.GetConversation(ctx, h.ChatID)
	if err != nil {
		logger.Warn("Resolved handoff has no conversation", zap.Uint("handoff_id", id), zap.Error(err))
	} else if conv.InHandoff() {
		if err := w.activate(ctx, conv); err != nil {
			return h, err
		}
		w.replyResumed(ctx, conv)
	}

	w.mirrorHandoff(ctx, h)
	w.messenger.NotifyOperator(ctx, fmt.Sprintf("✅ Handoff #%d resolved.", h.ID))
	return h, nil
}

// ListOpen returns requests still waiting on a human, oldest first
func (w *HandoffWorkflow) ListOpen(ctx context.Context) ([]*models.HandoffRequest, error) {
	return w.store.ListOpenHandoffs(ctx)
}

// ForwardToCustomer relays an operator's message into a conversation
func (w *HandoffWorkflow) ForwardToCustomer(ctx context.Context, phone, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("message text is required: %w", ErrValidation)
	}
	chatID := ChatIDForPhone(phone)
	conv, err := w.store.GetConversation(ctx, chatID)
	if err != nil {
		return storeErr(err, "conversation "+NormalizePhone(phone))
	}
	return w.messenger.Send(ctx, conv, models.SenderHuman, text, "")
}

// ForwardToOperator relays a customer message received in handoff mode
func (w *HandoffWorkflow) ForwardToOperator(ctx context.Context, conv *models.Conversation, msg *ParsedMessage) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💬 %s (%s):\n%s", conv.DisplayName(), conv.Phone, msg.Body)
	if msg.HasMedia() {
		fmt.Fprintf(&sb, "\n📎 %s", msg.MediaURL)
	}
	fmt.Fprintf(&sb, "\n\n/reply %s <text> to answer", conv.Phone)
	w.messenger.NotifyOperator(ctx, sb.String())
}

func (w *HandoffWorkflow) open(ctx context.Context, id uint) (*models.HandoffRequest, error) {
	h, err := w.store.GetHandoff(ctx, id)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("handoff #%d", id))
	}
	if !h.IsOpen() {
		return nil, fmt.Errorf("handoff #%d is already %s: %w", id, h.Status, ErrInvalidState)
	}
	return h, nil
}

func (w *HandoffWorkflow) activate(ctx context.Context, conv *models.Conversation) error {
	conv.Status = models.ConversationStatusActive
	conv.AssignedAgent = ""
	TakeFollowUp(conv)
	return storeErr(w.store.UpdateConversation(ctx, conv), "conversation "+conv.ChatID)
}

func (w *HandoffWorkflow) replyResumed(ctx context.Context, conv *models.Conversation) {
	text, err := w.catalog.Render(catalog.TplHandoffResumed, nil)
	if err != nil {
		logger.Error("Failed to render resume notice", zap.Error(err))
		return
	}
	if err := w.messenger.Reply(ctx, conv, text, ""); err != nil {
		logger.Warn("Failed to notify customer about resume", zap.String("chat_id", conv.ChatID), zap.Error(err))
	}
}

func (w *HandoffWorkflow) mirrorHandoff(ctx context.Context, h *models.HandoffRequest) {
	if err := w.mirror.RecordHandoff(ctx, h); err != nil {
		w.metrics.OutboundFailure(metrics.TargetSheets)
		logger.Warn("Failed to mirror handoff", zap.Uint("handoff_id", h.ID), zap.Error(err))
	}
}

func handoffAlert(h *models.HandoffRequest, conv *models.Conversation) string {
	var badge string
	switch h.Priority {
	case models.PriorityUrgent:
		badge = "🚨 URGENT"
	case models.PriorityHigh:
		badge = "🔴 HIGH PRIORITY"
	case models.PriorityLow:
		badge = "🟢 Low priority"
	default:
		badge = "🟡 New"
	}
	return fmt.Sprintf("%s handoff #%d\nCustomer: %s (%s)\nReason: %s\n\n/reply %s <text> to answer\n/resume_ai %s when done",
		badge, h.ID, conv.DisplayName(), conv.Phone, h.Reason, conv.Phone, conv.Phone)
}
