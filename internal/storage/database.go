package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

// DatabaseStore implements Store on top of GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by an open GORM connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// AutoMigrate creates or updates every table
func (s *DatabaseStore) AutoMigrate() error {
	return s.db.AutoMigrate(models.AllModels()...)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Conversation operations

func (s *DatabaseStore) GetOrCreateConversation(ctx context.Context, chatID, phone string) (*models.Conversation, bool, error) {
	db := s.db.WithContext(ctx)

	var conv models.Conversation
	err := db.Where("chat_id = ?", chatID).First(&conv).Error
	if err == nil {
		return &conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv = models.Conversation{ChatID: chatID, Phone: phone}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoNothing: true,
	}).Create(&conv)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &conv, true, nil
	}

	// lost the race to a concurrent first message
	var existing models.Conversation
	if err := db.Where("chat_id = ?", chatID).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *DatabaseStore) GetConversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&conv).Error; err != nil {
		return nil, notFound(err, "conversation "+chatID)
	}
	return &conv, nil
}

func (s *DatabaseStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	// message_count is owned by TouchConversation
	return s.db.WithContext(ctx).Model(conv).Select(
		"customer_name", "status", "assigned_agent", "expected_follow_up", "follow_up_service_id",
	).Updates(conv).Error
}

// TouchConversation bumps the message counter and activity time in one
// statement so concurrent messages on a chat are not undercounted.
func (s *DatabaseStore) TouchConversation(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Updates(map[string]interface{}{
		"message_count":    gorm.Expr("message_count + 1"),
		"last_activity_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

// Message operations

func (s *DatabaseStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("message %s: %w", msg.ExternalID, ErrDuplicate)
	}
	return nil
}

// GetRecentMessages returns up to limit messages, oldest first
func (s *DatabaseStore) GetRecentMessages(ctx context.Context, chatID string, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Payment operations

func (s *DatabaseStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *DatabaseStore) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("payment %d", id))
	}
	return &p, nil
}

// UpdatePaymentFrom saves p only if the stored row is still in fromStatus
func (s *DatabaseStore) UpdatePaymentFrom(ctx context.Context, p *models.Payment, fromStatus string) error {
	res := s.db.WithContext(ctx).Model(p).
		Where("status = ?", fromStatus).
		Select("status", "reviewed_by", "approved_at", "rejected_at", "notes", "amount", "method").
		Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment %d no longer %s: %w", p.ID, fromStatus, ErrConflict)
	}
	return nil
}

func (s *DatabaseStore) ListPaymentsByStatus(ctx context.Context, status string) ([]*models.Payment, error) {
	var payments []*models.Payment
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// Handoff operations

func (s *DatabaseStore) CreateHandoff(ctx context.Context, h *models.HandoffRequest) error {
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *DatabaseStore) GetHandoff(ctx context.Context, id uint) (*models.HandoffRequest, error) {
	var h models.HandoffRequest
	if err := s.db.WithContext(ctx).First(&h, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("handoff %d", id))
	}
	return &h, nil
}

func (s *DatabaseStore) GetOpenHandoff(ctx context.Context, chatID string) (*models.HandoffRequest, error) {
	var h models.HandoffRequest
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND status IN ?", chatID, models.OpenHandoffStatuses).
		Order("created_at DESC").
		First(&h).Error
	if err != nil {
		return nil, notFound(err, "open handoff for "+chatID)
	}
	return &h, nil
}

func (s *DatabaseStore) UpdateHandoff(ctx context.Context, h *models.HandoffRequest) error {
	return s.db.WithContext(ctx).Save(h).Error
}

func (s *DatabaseStore) ListOpenHandoffs(ctx context.Context) ([]*models.HandoffRequest, error) {
	var hs []*models.HandoffRequest
	err := s.db.WithContext(ctx).
		Where("status IN ?", models.OpenHandoffStatuses).
		Order("created_at ASC").
		Find(&hs).Error
	return hs, err
}

func (s *DatabaseStore) ListStaleHandoffs(ctx context.Context, createdBefore time.Time) ([]*models.HandoffRequest, error) {
	var hs []*models.HandoffRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.HandoffStatusPending, createdBefore).
		Order("created_at ASC").
		Find(&hs).Error
	return hs, err
}

func (s *DatabaseStore) ResolveOpenHandoffs(ctx context.Context, chatID, notes string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.HandoffRequest{}).
		Where("chat_id = ? AND status IN ?", chatID, models.OpenHandoffStatuses).
		Updates(map[string]interface{}{
			"status":           models.HandoffStatusResolved,
			"resolution_notes": notes,
			"resolved_at":      at,
		})
	return res.RowsAffected, res.Error
}

// Rate limit operations

// IncrementRateLimit counts one message for chatID and returns the count in
// the current window. A window expired at now starts over at 1.
func (s *DatabaseStore) IncrementRateLimit(ctx context.Context, chatID string, now time.Time, window time.Duration) (int, error) {
	db := s.db.WithContext(ctx)

	res := db.Model(&models.RateLimit{}).
		Where("chat_id = ? AND window_start >= ?", chatID, now.Add(-window)).
		Updates(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected == 0 {
		rl := models.RateLimit{ChatID: chatID, Count: 1, WindowStart: now, UpdatedAt: now}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"count", "window_start", "updated_at"}),
		}).Create(&rl).Error
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	var rl models.RateLimit
	if err := db.Where("chat_id = ?", chatID).First(&rl).Error; err != nil {
		return 0, err
	}
	return rl.Count, nil
}

func (s *DatabaseStore) PurgeRateLimits(ctx context.Context, windowStartBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("window_start < ?", windowStartBefore).Delete(&models.RateLimit{})
	return res.RowsAffected, res.Error
}

// Admin operations

func (s *DatabaseStore) GetStats(ctx context.Context, now time.Time) (*models.Stats, error) {
	db := s.db.WithContext(ctx)
	since := now.Add(-24 * time.Hour)
	stats := &models.Stats{}

	counts := []struct {
		dest  *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&stats.Conversations, &models.Conversation{}, "", nil},
		{&stats.ActiveChats, &models.Conversation{}, "status = ?", []interface{}{models.ConversationStatusActive}},
		{&stats.HandoffChats, &models.Conversation{}, "status = ?", []interface{}{models.ConversationStatusHumanHandoff}},
		{&stats.NewConversations24, &models.Conversation{}, "created_at >= ?", []interface{}{since}},
		{&stats.Messages, &models.Message{}, "", nil},
		{&stats.MessagesLast24h, &models.Message{}, "created_at >= ?", []interface{}{since}},
		{&stats.PendingPayments, &models.Payment{}, "status = ?", []interface{}{models.PaymentStatusPending}},
		{&stats.ApprovedPayments, &models.Payment{}, "status = ?", []interface{}{models.PaymentStatusApproved}},
		{&stats.OpenHandoffs, &models.HandoffRequest{}, "status IN ?", []interface{}{models.OpenHandoffStatuses}},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
