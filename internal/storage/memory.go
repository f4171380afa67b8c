package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

// MemoryStore holds all data in memory. It backs tests and local runs
// with DB_DRIVER=memory. Records are copied in and out so callers never
// share state with the store.
type MemoryStore struct {
	conversations map[string]*models.Conversation
	messages      []*models.Message
	externalIDs   map[string]bool
	payments      map[uint]*models.Payment
	handoffs      map[uint]*models.HandoffRequest
	rateLimits    map[string]*models.RateLimit

	// Mutexes for thread safety
	convMu    sync.RWMutex
	msgMu     sync.RWMutex
	paymentMu sync.RWMutex
	handoffMu sync.RWMutex
	rateMu    sync.Mutex

	// Counters for ID generation
	convCounter    uint
	msgCounter     uint
	paymentCounter uint
	handoffCounter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		externalIDs:   make(map[string]bool),
		payments:      make(map[uint]*models.Payment),
		handoffs:      make(map[uint]*models.HandoffRequest),
		rateLimits:    make(map[string]*models.RateLimit),
	}
}

// Conversation operations

func (m *MemoryStore) GetOrCreateConversation(ctx context.Context, chatID, phone string) (*models.Conversation, bool, error) {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	if conv, ok := m.conversations[chatID]; ok {
		c := *conv
		return &c, false, nil
	}

	m.convCounter++
	now := time.Now()
	conv := &models.Conversation{ChatID: chatID, Phone: phone}
	conv.ID = m.convCounter
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if err := conv.BeforeCreate(nil); err != nil {
		return nil, false, err
	}
	m.conversations[chatID] = conv

	c := *conv
	return &c, true, nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	m.convMu.RLock()
	defer m.convMu.RUnlock()

	conv, ok := m.conversations[chatID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", chatID, ErrNotFound)
	}
	c := *conv
	return &c, nil
}

func (m *MemoryStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	stored, ok := m.conversations[conv.ChatID]
	if !ok || stored.ID != conv.ID {
		return fmt.Errorf("conversation %s: %w", conv.ChatID, ErrNotFound)
	}
	stored.CustomerName = conv.CustomerName
	stored.Status = conv.Status
	stored.AssignedAgent = conv.AssignedAgent
	stored.ExpectedFollowUp = conv.ExpectedFollowUp
	stored.FollowUpServiceID = conv.FollowUpServiceID
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) TouchConversation(ctx context.Context, id uint, at time.Time) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	for _, conv := range m.conversations {
		if conv.ID == id {
			conv.MessageCount++
			conv.LastActivityAt = at
			return nil
		}
	}
	return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
}

// Message operations

func (m *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.msgMu.Lock()
	defer m.msgMu.Unlock()

	if err := msg.BeforeCreate(nil); err != nil {
		return err
	}
	if m.externalIDs[msg.ExternalID] {
		return fmt.Errorf("message %s: %w", msg.ExternalID, ErrDuplicate)
	}

	m.msgCounter++
	msg.ID = m.msgCounter
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	stored := *msg
	m.messages = append(m.messages, &stored)
	m.externalIDs[msg.ExternalID] = true
	return nil
}

func (m *MemoryStore) GetRecentMessages(ctx context.Context, chatID string, limit int) ([]*models.Message, error) {
	m.msgMu.RLock()
	defer m.msgMu.RUnlock()

	var out []*models.Message
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if m.messages[i].ChatID == chatID {
			c := *m.messages[i]
			out = append(out, &c)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Payment operations

func (m *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	if err := p.BeforeCreate(nil); err != nil {
		return err
	}
	m.paymentCounter++
	now := time.Now()
	p.ID = m.paymentCounter
	p.CreatedAt = now
	p.UpdatedAt = now
	stored := *p
	m.payments[p.ID] = &stored
	return nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	m.paymentMu.RLock()
	defer m.paymentMu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (m *MemoryStore) UpdatePaymentFrom(ctx context.Context, p *models.Payment, fromStatus string) error {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	stored, ok := m.payments[p.ID]
	if !ok {
		return fmt.Errorf("payment %d: %w", p.ID, ErrNotFound)
	}
	if stored.Status != fromStatus {
		return fmt.Errorf("payment %d no longer %s: %w", p.ID, fromStatus, ErrConflict)
	}
	updated := *p
	updated.UpdatedAt = time.Now()
	m.payments[p.ID] = &updated
	return nil
}

func (m *MemoryStore) ListPaymentsByStatus(ctx context.Context, status string) ([]*models.Payment, error) {
	m.paymentMu.RLock()
	defer m.paymentMu.RUnlock()

	var out []*models.Payment
	for _, p := range m.payments {
		if status == "" || p.Status == status {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Handoff operations

func (m *MemoryStore) CreateHandoff(ctx context.Context, h *models.HandoffRequest) error {
	m.handoffMu.Lock()
	defer m.handoffMu.Unlock()

	if err := h.BeforeCreate(nil); err != nil {
		return err
	}
	m.handoffCounter++
	now := time.Now()
	h.ID = m.handoffCounter
	h.CreatedAt = now
	h.UpdatedAt = now
	stored := *h
	m.handoffs[h.ID] = &stored
	return nil
}

func (m *MemoryStore) GetHandoff(ctx context.Context, id uint) (*models.HandoffRequest, error) {
	m.handoffMu.RLock()
	defer m.handoffMu.RUnlock()

	h, ok := m.handoffs[id]
	if !ok {
		return nil, fmt.Errorf("handoff %d: %w", id, ErrNotFound)
	}
	c := *h
	return &c, nil
}

func (m *MemoryStore) GetOpenHandoff(ctx context.Context, chatID string) (*models.HandoffRequest, error) {
	m.handoffMu.RLock()
	defer m.handoffMu.RUnlock()

	var latest *models.HandoffRequest
	for _, h := range m.handoffs {
		if h.ChatID == chatID && h.IsOpen() && (latest == nil || h.ID > latest.ID) {
			latest = h
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("open handoff for %s: %w", chatID, ErrNotFound)
	}
	c := *latest
	return &c, nil
}

func (m *MemoryStore) UpdateHandoff(ctx context.Context, h *models.HandoffRequest) error {
	m.handoffMu.Lock()
	defer m.handoffMu.Unlock()

	if _, ok := m.handoffs[h.ID]; !ok {
		return fmt.Errorf("handoff %d: %w", h.ID, ErrNotFound)
	}
	h.UpdatedAt = time.Now()
	stored := *h
	m.handoffs[h.ID] = &stored
	return nil
}

func (m *MemoryStore) ListOpenHandoffs(ctx context.Context) ([]*models.HandoffRequest, error) {
	return m.filterHandoffs(func(h *models.HandoffRequest) bool { return h.IsOpen() }), nil
}

func (m *MemoryStore) ListStaleHandoffs(ctx context.Context, createdBefore time.Time) ([]*models.HandoffRequest, error) {
	return m.filterHandoffs(func(h *models.HandoffRequest) bool {
		return h.Status == models.HandoffStatusPending && h.CreatedAt.Before(createdBefore)
	}), nil
}

func (m *MemoryStore) filterHandoffs(keep func(*models.HandoffRequest) bool) []*models.HandoffRequest {
	m.handoffMu.RLock()
	defer m.handoffMu.RUnlock()

	var out []*models.HandoffRequest
	for _, h := range m.handoffs {
		if keep(h) {
			c := *h
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) ResolveOpenHandoffs(ctx context.Context, chatID, notes string, at time.Time) (int64, error) {
	m.handoffMu.Lock()
	defer m.handoffMu.Unlock()

	var n int64
	for _, h := range m.handoffs {
		if h.ChatID == chatID && h.IsOpen() {
			resolvedAt := at
			h.Status = models.HandoffStatusResolved
			h.ResolutionNotes = notes
			h.ResolvedAt = &resolvedAt
			h.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// Rate limit operations

func (m *MemoryStore) IncrementRateLimit(ctx context.Context, chatID string, now time.Time, window time.Duration) (int, error) {
	m.rateMu.Lock()
	defer m.rateMu.Unlock()

	rl, ok := m.rateLimits[chatID]
	if !ok || now.After(rl.WindowStart.Add(window)) {
		m.rateLimits[chatID] = &models.RateLimit{ChatID: chatID, Count: 1, WindowStart: now, UpdatedAt: now}
		return 1, nil
	}
	rl.Count++
	rl.UpdatedAt = now
	return rl.Count, nil
}

func (m *MemoryStore) PurgeRateLimits(ctx context.Context, windowStartBefore time.Time) (int64, error) {
	m.rateMu.Lock()
	defer m.rateMu.Unlock()

	var n int64
	for chatID, rl := range m.rateLimits {
		if rl.WindowStart.Before(windowStartBefore) {
			delete(m.rateLimits, chatID)
			n++
		}
	}
	return n, nil
}

// Admin operations

func (m *MemoryStore) GetStats(ctx context.Context, now time.Time) (*models.Stats, error) {
	since := now.Add(-24 * time.Hour)
	stats := &models.Stats{}

	m.convMu.RLock()
	for _, c := range m.conversations {
		stats.Conversations++
		switch c.Status {
		case models.ConversationStatusActive:
			stats.ActiveChats++
		case models.ConversationStatusHumanHandoff:
			stats.HandoffChats++
		}
		if !c.CreatedAt.Before(since) {
			stats.NewConversations24++
		}
	}
	m.convMu.RUnlock()

	m.msgMu.RLock()
	for _, msg := range m.messages {
		stats.Messages++
		if !msg.CreatedAt.Before(since) {
			stats.MessagesLast24h++
		}
	}
	m.msgMu.RUnlock()

	m.paymentMu.RLock()
	for _, p := range m.payments {
		switch p.Status {
		case models.PaymentStatusPending:
			stats.PendingPayments++
		case models.PaymentStatusApproved:
			stats.ApprovedPayments++
		}
	}
	m.paymentMu.RUnlock()

	m.handoffMu.RLock()
	for _, h := range m.handoffs {
		if h.IsOpen() {
			stats.OpenHandoffs++
		}
	}
	m.handoffMu.RUnlock()

	return stats, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
