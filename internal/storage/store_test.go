package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection to :memory: would be a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := NewDatabaseStore(db)
	require.NoError(t, s.AutoMigrate())
	return s
}

// forEachStore runs the same behaviour against both implementations
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": newSQLiteStore,
	}
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			fn(t, stores[name](t))
		})
	}
}

func TestConversationUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		conv, created, err := s.GetOrCreateConversation(ctx, "whatsapp:+923001112222", "+923001112222")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.ConversationStatusActive, conv.Status)

		again, created, err := s.GetOrCreateConversation(ctx, "whatsapp:+923001112222", "+923001112222")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, conv.ID, again.ID)

		again.CustomerName = "Ali"
		again.Status = models.ConversationStatusHumanHandoff
		again.ExpectedFollowUp = models.FollowUpOrderOffer
		again.FollowUpServiceID = "logo"
		require.NoError(t, s.UpdateConversation(ctx, again))

		now := time.Now()
		require.NoError(t, s.TouchConversation(ctx, conv.ID, now))
		require.NoError(t, s.TouchConversation(ctx, conv.ID, now))

		got, err := s.GetConversation(ctx, "whatsapp:+923001112222")
		require.NoError(t, err)
		assert.Equal(t, "Ali", got.CustomerName)
		assert.Equal(t, models.ConversationStatusHumanHandoff, got.Status)
		assert.Equal(t, models.FollowUpOrderOffer, got.ExpectedFollowUp)
		assert.Equal(t, "logo", got.FollowUpServiceID)
		assert.Equal(t, 2, got.MessageCount)

		// clearing the follow-up writes the empty values
		got.ExpectedFollowUp = models.FollowUpNone
		got.FollowUpServiceID = ""
		require.NoError(t, s.UpdateConversation(ctx, got))
		cleared, err := s.GetConversation(ctx, "whatsapp:+923001112222")
		require.NoError(t, err)
		assert.Empty(t, cleared.ExpectedFollowUp)
		assert.Empty(t, cleared.FollowUpServiceID)

		_, err = s.GetConversation(ctx, "whatsapp:+000")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMessages(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv, _, err := s.GetOrCreateConversation(ctx, "chat-1", "+1")
		require.NoError(t, err)

		base := time.Now().Add(-time.Hour)
		for i, body := range []string{"one", "two", "three"} {
			msg := &models.Message{
				ConversationID: conv.ID,
				ChatID:         "chat-1",
				Sender:         models.SenderCustomer,
				Body:           body,
				CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.CreateMessage(ctx, msg))
			assert.NotEmpty(t, msg.ExternalID)
		}

		dup := &models.Message{ConversationID: conv.ID, ChatID: "chat-1", ExternalID: "SM123", Sender: models.SenderCustomer}
		require.NoError(t, s.CreateMessage(ctx, dup))
		dup2 := &models.Message{ConversationID: conv.ID, ChatID: "chat-1", ExternalID: "SM123", Sender: models.SenderCustomer}
		assert.ErrorIs(t, s.CreateMessage(ctx, dup2), ErrDuplicate)

		recent, err := s.GetRecentMessages(ctx, "chat-1", 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, "two", recent[0].Body)
		assert.Equal(t, "three", recent[1].Body)
		assert.Equal(t, "SM123", recent[2].ExternalID)
	})
}

func TestPaymentConditionalUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		p := &models.Payment{ChatID: "chat-1", Phone: "+1", ScreenshotURL: "https://example.com/s.jpg"}
		require.NoError(t, s.CreatePayment(ctx, p))
		assert.Equal(t, models.PaymentStatusPending, p.Status)
		assert.Equal(t, models.DefaultCurrency, p.Currency)

		now := time.Now()
		p.Status = models.PaymentStatusApproved
		p.ReviewedBy = "admin"
		p.ApprovedAt = &now
		require.NoError(t, s.UpdatePaymentFrom(ctx, p, models.PaymentStatusPending))

		p.Status = models.PaymentStatusRejected
		assert.ErrorIs(t, s.UpdatePaymentFrom(ctx, p, models.PaymentStatusPending), ErrConflict)

		got, err := s.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusApproved, got.Status)
		assert.Equal(t, "admin", got.ReviewedBy)

		pending, err := s.ListPaymentsByStatus(ctx, models.PaymentStatusPending)
		require.NoError(t, err)
		assert.Empty(t, pending)

		_, err = s.GetPayment(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestHandoffs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetOpenHandoff(ctx, "chat-1")
		assert.ErrorIs(t, err, ErrNotFound)

		h := &models.HandoffRequest{ConversationID: 1, ChatID: "chat-1", Reason: "asked for a human"}
		require.NoError(t, s.CreateHandoff(ctx, h))
		assert.Equal(t, models.HandoffStatusPending, h.Status)
		assert.Equal(t, models.PriorityNormal, h.Priority)

		open, err := s.GetOpenHandoff(ctx, "chat-1")
		require.NoError(t, err)
		assert.Equal(t, h.ID, open.ID)

		open.Status = models.HandoffStatusAssigned
		open.AssignedTo = "sara"
		require.NoError(t, s.UpdateHandoff(ctx, open))

		list, err := s.ListOpenHandoffs(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "sara", list[0].AssignedTo)

		// assigned requests are not stale
		stale, err := s.ListStaleHandoffs(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)

		n, err := s.ResolveOpenHandoffs(ctx, "chat-1", "resumed", time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := s.GetHandoff(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HandoffStatusResolved, got.Status)
		assert.Equal(t, "resumed", got.ResolutionNotes)
		assert.NotNil(t, got.ResolvedAt)
	})
}

func TestIncrementRateLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		window := time.Minute
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i := 1; i <= 31; i++ {
			count, err := s.IncrementRateLimit(ctx, "chat-1", start.Add(time.Duration(i)*time.Second), window)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		// other chats are counted separately
		count, err := s.IncrementRateLimit(ctx, "chat-2", start, window)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = s.IncrementRateLimit(ctx, "chat-1", start.Add(2*time.Minute), window)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = s.IncrementRateLimit(ctx, "chat-1", start.Add(2*time.Minute+time.Second), window)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		n, err := s.PurgeRateLimits(ctx, start.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestGetStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv, _, err := s.GetOrCreateConversation(ctx, "chat-1", "+1")
		require.NoError(t, err)
		_, _, err = s.GetOrCreateConversation(ctx, "chat-2", "+2")
		require.NoError(t, err)
		conv.Status = models.ConversationStatusHumanHandoff
		require.NoError(t, s.UpdateConversation(ctx, conv))

		require.NoError(t, s.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, ChatID: "chat-1", Sender: models.SenderCustomer, Body: "hi"}))
		require.NoError(t, s.CreatePayment(ctx, &models.Payment{ChatID: "chat-1", Phone: "+1"}))
		require.NoError(t, s.CreateHandoff(ctx, &models.HandoffRequest{ConversationID: conv.ID, ChatID: "chat-1"}))

		stats, err := s.GetStats(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Conversations)
		assert.Equal(t, int64(1), stats.ActiveChats)
		assert.Equal(t, int64(1), stats.HandoffChats)
		assert.Equal(t, int64(1), stats.Messages)
		assert.Equal(t, int64(1), stats.MessagesLast24h)
		assert.Equal(t, int64(1), stats.PendingPayments)
		assert.Equal(t, int64(1), stats.OpenHandoffs)
		assert.Equal(t, int64(2), stats.NewConversations24)

		assert.NoError(t, s.Ping(ctx))
	})
}
