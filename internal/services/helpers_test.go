package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ananth-NQI/chatdesk-backend/internal/ai"
	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/intent"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

const (
	testFrom     = "whatsapp:+14155238886"
	testOperator = "+923000000001"
	testCustomer = "whatsapp:+923001234567"
	testSupport  = "+923000000001"
)

type sentMessage struct {
	To   string
	Body string
}

// fakeTwilioAPI stands in for the Twilio REST client
type fakeTwilioAPI struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeTwilioAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{To: *params.To, Body: *params.Body})
	sid := "SM" + uuid.NewString()
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

// to returns the bodies sent to chatID, oldest first
func (f *fakeTwilioAPI) to(chatID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.To == chatID {
			out = append(out, m.Body)
		}
	}
	return out
}

func (f *fakeTwilioAPI) last(chatID string) string {
	bodies := f.to(chatID)
	if len(bodies) == 0 {
		return ""
	}
	return bodies[len(bodies)-1]
}

type fakeProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  ai.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req ai.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = req
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

type fakeMirror struct {
	mu       sync.Mutex
	payments []models.Payment
	handoffs []models.HandoffRequest
	err      error
}

func (m *fakeMirror) RecordPayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, *p)
	return m.err
}

func (m *fakeMirror) RecordHandoff(ctx context.Context, h *models.HandoffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handoffs = append(m.handoffs, *h)
	return m.err
}

type testEnv struct {
	store     *storage.MemoryStore
	api       *fakeTwilioAPI
	provider  *fakeProvider
	mirror    *fakeMirror
	messenger *Messenger
	payments  *PaymentWorkflow
	handoffs  *HandoffWorkflow
	admin     *AdminService
	bot       *Bot
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat := catalog.Default()
	store := storage.NewMemoryStore()
	api := &fakeTwilioAPI{}
	transport := newTwilioTransport(api, testFrom)
	provider := &fakeProvider{reply: "Happy to help!"}
	mirror := &fakeMirror{}

	messenger := NewMessenger(store, transport, testOperator, time.Second, nil)
	payments := NewPaymentWorkflow(store, messenger, mirror, cat, nil, testSupport)
	handoffs := NewHandoffWorkflow(store, messenger, mirror, cat, nil)
	admin := NewAdminService(store, payments, handoffs)
	classifier := intent.NewClassifier(intent.MustRegistry(cat))
	limiter := NewStoreRateLimiter(store, 30, time.Minute)

	bot := NewBot(store, transport, messenger, classifier, cat, limiter, provider, payments, handoffs, admin, nil, BotConfig{
		SupportContact: testSupport,
	})

	return &testEnv{
		store:     store,
		api:       api,
		provider:  provider,
		mirror:    mirror,
		messenger: messenger,
		payments:  payments,
		handoffs:  handoffs,
		admin:     admin,
		bot:       bot,
	}
}

func (e *testEnv) operatorChat() string {
	return ChatIDForPhone(testOperator)
}

// send delivers a text webhook from chatID through the bot
func (e *testEnv) send(t *testing.T, chatID, body string) Result {
	t.Helper()
	return e.bot.HandleInboundMessage(context.Background(), textPayload(chatID, body))
}

func (e *testEnv) conversation(t *testing.T, chatID string) *models.Conversation {
	t.Helper()
	conv, err := e.store.GetConversation(context.Background(), chatID)
	if err != nil {
		t.Fatalf("conversation %s: %v", chatID, err)
	}
	return conv
}

func textPayload(chatID, body string) InboundPayload {
	return InboundPayload{
		"MessageSid": "SM" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"From":       chatID,
		"To":         testFrom,
		"Body":       body,
		"NumMedia":   "0",
	}
}

func mediaPayload(chatID, mediaURL string) InboundPayload {
	p := textPayload(chatID, "")
	p["NumMedia"] = "1"
	p["MediaUrl0"] = mediaURL
	p["MediaContentType0"] = "image/jpeg"
	return p
}

var errBoom = errors.New("boom")
