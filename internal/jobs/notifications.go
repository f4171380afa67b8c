package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/services"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// OperatorNotifier delivers a text to the operator
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, text string)
}

var _ OperatorNotifier = (*services.Messenger)(nil)

// HandoffReminderJob reminds the operator about handoff requests nobody
// picked up and clears expired rate-limit windows.
type HandoffReminderJob struct {
	store      storage.Store
	notifier   OperatorNotifier
	interval   time.Duration
	staleAfter time.Duration
	rateWindow time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHandoffReminderJob creates the job. It does nothing until Start.
func NewHandoffReminderJob(store storage.Store, notifier OperatorNotifier, interval, staleAfter, rateWindow time.Duration) *HandoffReminderJob {
	return &HandoffReminderJob{
		store:      store,
		notifier:   notifier,
		interval:   interval,
		staleAfter: staleAfter,
		rateWindow: rateWindow,
		now:        time.Now,
	}
}

// Start runs the job every interval until Stop
func (j *HandoffReminderJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		logger.Warn("Handoff reminder job already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.loop(ctx, j.done)
	logger.Info("⏰ Handoff reminder job started",
		zap.Duration("interval", j.interval),
		zap.Duration("stale_after", j.staleAfter))
}

// Stop halts the job and waits for a running pass to finish
func (j *HandoffReminderJob) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info("Handoff reminder job stopped")
}

func (j *HandoffReminderJob) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reminder and purge pass
func (j *HandoffReminderJob) RunOnce(ctx context.Context) {
	now := j.now()

	stale, err := j.store.ListStaleHandoffs(ctx, now.Add(-j.staleAfter))
	if err != nil {
		logger.Error("Failed to list stale handoffs", zap.Error(err))
	} else if len(stale) > 0 {
		j.notifier.NotifyOperator(ctx, staleHandoffReminder(stale, now))
		logger.Info("Sent stale handoff reminder", zap.Int("count", len(stale)))
	}

	purged, err := j.store.PurgeRateLimits(ctx, now.Add(-j.rateWindow))
	if err != nil {
		logger.Error("Failed to purge rate limit windows", zap.Error(err))
		return
	}
	if purged > 0 {
		logger.Debug("Purged rate limit windows", zap.Int64("count", purged))
	}
}

func staleHandoffReminder(stale []*models.HandoffRequest, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⏰ %d handoff request(s) still waiting:\n", len(stale))
	for _, h := range stale {
		name := h.CustomerName
		if name == "" {
			name = h.Phone
		}
		waiting := now.Sub(h.CreatedAt).Truncate(time.Minute)
		fmt.Fprintf(&sb, "\n#%d %s [%s] waiting %s", h.ID, name, h.Priority, waiting)
	}
	sb.WriteString("\n\nReply /assign <id> <agent> or /resolve <id> <notes>")
	return sb.String()
}
