package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/metrics"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// Messenger persists outbound messages and hands them to the transport
type Messenger struct {
	store       storage.Store
	transport   Transport
	operatorID  string
	sendTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewMessenger creates a messenger. operatorPhone receives notifications.
func NewMessenger(store storage.Store, transport Transport, operatorPhone string, sendTimeout time.Duration, m *metrics.Metrics) *Messenger {
	return &Messenger{
		store:       store,
		transport:   transport,
		operatorID:  ChatIDForPhone(operatorPhone),
		sendTimeout: sendTimeout,
		metrics:     m,
	}
}

// OperatorChatID is the chat the operator is notified on
func (m *Messenger) OperatorChatID() string {
	return m.operatorID
}

// IsOperator reports whether a chat belongs to the operator
func (m *Messenger) IsOperator(chatID string) bool {
	return ChatIDForPhone(chatID) == m.operatorID
}

// Reply logs a bot message on the conversation and sends it
func (m *Messenger) Reply(ctx context.Context, conv *models.Conversation, text, intent string) error {
	return m.Send(ctx, conv, models.SenderBot, text, intent)
}

// Send logs a message from sender on the conversation and sends it
func (m *Messenger) Send(ctx context.Context, conv *models.Conversation, sender, text, intent string) error {
	if err := m.Record(ctx, conv, sender, text, intent); err != nil {
		logger.Error("Failed to log outbound message", zap.String("chat_id", conv.ChatID), zap.Error(err))
	}
	return m.deliver(ctx, conv.ChatID, text)
}

// Record logs a message without sending it
func (m *Messenger) Record(ctx context.Context, conv *models.Conversation, sender, text, intent string) error {
	return m.store.CreateMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		ChatID:         conv.ChatID,
		Sender:         sender,
		Body:           text,
		Intent:         intent,
	})
}

// NotifyOperator sends text to the operator. Failures are logged and
// absorbed.
func (m *Messenger) NotifyOperator(ctx context.Context, text string) {
	if err := m.deliver(ctx, m.operatorID, text); err != nil {
		logger.Warn("Operator notification failed", zap.Error(err))
	}
}

// SendRaw sends text to a chat with no conversation record
func (m *Messenger) SendRaw(ctx context.Context, chatID, text string) error {
	return m.deliver(ctx, chatID, text)
}

func (m *Messenger) deliver(ctx context.Context, chatID, text string) error {
	if m.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.sendTimeout)
		defer cancel()
	}
	err := m.transport.SendText(ctx, chatID, text)
	if err == nil {
		return nil
	}
	m.metrics.OutboundFailure(metrics.TargetTransport)
	if !errors.Is(err, ErrUpstream) {
		err = fmt.Errorf("send to %s: %w: %v", chatID, ErrUpstream, err)
	}
	return err
}
