package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a message with the same external id was already stored
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a conditional update found the record in another state
	ErrConflict = errors.New("record changed concurrently")
)

// Store defines the interface for storage operations
type Store interface {
	// Conversation operations
	GetOrCreateConversation(ctx context.Context, chatID, phone string) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, chatID string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	TouchConversation(ctx context.Context, id uint, at time.Time) error

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetRecentMessages(ctx context.Context, chatID string, limit int) ([]*models.Message, error)

	// Payment operations
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	UpdatePaymentFrom(ctx context.Context, p *models.Payment, fromStatus string) error
	ListPaymentsByStatus(ctx context.Context, status string) ([]*models.Payment, error)

	// Handoff operations
	CreateHandoff(ctx context.Context, h *models.HandoffRequest) error
	GetHandoff(ctx context.Context, id uint) (*models.HandoffRequest, error)
	GetOpenHandoff(ctx context.Context, chatID string) (*models.HandoffRequest, error)
	UpdateHandoff(ctx context.Context, h *models.HandoffRequest) error
	ListOpenHandoffs(ctx context.Context) ([]*models.HandoffRequest, error)
	ListStaleHandoffs(ctx context.Context, createdBefore time.Time) ([]*models.HandoffRequest, error)
	ResolveOpenHandoffs(ctx context.Context, chatID, notes string, at time.Time) (int64, error)

	// Rate limit operations
	IncrementRateLimit(ctx context.Context, chatID string, now time.Time, window time.Duration) (int, error)
	PurgeRateLimits(ctx context.Context, windowStartBefore time.Time) (int64, error)

	// Admin operations
	GetStats(ctx context.Context, now time.Time) (*models.Stats, error)
	Ping(ctx context.Context) error
}
