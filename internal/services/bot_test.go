package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/chatdesk-backend/internal/intent"
	"github.com/Ananth-NQI/chatdesk-backend/internal/metrics"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

func TestBotGreetingUsesProfileName(t *testing.T) {
	env := newTestEnv(t)

	payload := textPayload(testCustomer, "hi")
	payload["ProfileName"] = "Ali"
	res := env.bot.HandleInboundMessage(context.Background(), payload)

	require.NoError(t, res.Err)
	assert.True(t, res.Processed)
	assert.Equal(t, string(intent.Greeting), res.Intent)
	assert.Equal(t, metrics.OutcomeProcessed, res.Outcome)
	assert.Contains(t, env.api.last(testCustomer), "Assalam o Alaikum Ali!")
	assert.Contains(t, env.api.last(testCustomer), "Pixel Bazaar")

	conv := env.conversation(t, testCustomer)
	assert.Equal(t, "Ali", conv.CustomerName)
	assert.Equal(t, 1, conv.MessageCount)

	history, err := env.store.GetRecentMessages(context.Background(), testCustomer, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.SenderCustomer, history[0].Sender)
	assert.Equal(t, string(intent.Greeting), history[0].Intent)
	assert.Equal(t, models.SenderBot, history[1].Sender)
}

func TestBotServiceInquiryThenConfirmation(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "I need a logo")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.ServiceInquiry), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "*Logo Design*")

	conv := env.conversation(t, testCustomer)
	assert.Equal(t, models.FollowUpOrderOffer, conv.ExpectedFollowUp)
	assert.Equal(t, "logo", conv.FollowUpServiceID)

	res = env.send(t, testCustomer, "yes")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.Confirmation), res.Intent)
	reply := env.api.last(testCustomer)
	assert.Contains(t, reply, "To order *Logo Design* (PKR 8000)")
	assert.Contains(t, reply, "JazzCash")
	assert.Equal(t, 0, env.provider.calls)

	conv = env.conversation(t, testCustomer)
	assert.Equal(t, models.FollowUpPaymentProof, conv.ExpectedFollowUp)
	assert.Equal(t, "logo", conv.FollowUpServiceID)
}

func TestBotDeclinedServiceDoesNotLeakIntoLaterOrder(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, testCustomer, "I need a logo")
	env.send(t, testCustomer, "no")

	conv := env.conversation(t, testCustomer)
	assert.Empty(t, conv.ExpectedFollowUp)
	assert.Empty(t, conv.FollowUpServiceID)

	env.send(t, testCustomer, "how much?")
	res := env.send(t, testCustomer, "yes")
	require.NoError(t, res.Err)
	reply := env.api.last(testCustomer)
	assert.Contains(t, reply, "Please pay using")
	assert.NotContains(t, reply, "Logo Design")

	res = env.bot.HandleInboundMessage(context.Background(), mediaPayload(testCustomer, "https://api.twilio.com/media/ME9"))
	require.NoError(t, res.Err)

	p, err := env.store.GetPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, p.ServiceID)
	assert.Nil(t, p.Amount)
	assert.NotContains(t, env.api.last(env.operatorChat()), "Service:")
}

func TestBotFollowUpLastsOneTurn(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, testCustomer, "I need a logo")
	env.send(t, testCustomer, "hi")
	assert.Empty(t, env.conversation(t, testCustomer).FollowUpServiceID)

	env.bot.HandleInboundMessage(context.Background(), mediaPayload(testCustomer, "https://api.twilio.com/media/ME2"))

	p, err := env.store.GetPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, p.ServiceID)
	assert.Nil(t, p.Amount)
}

func TestBotPriceListOffersOrder(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "how much?")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.PricingInquiry), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "Website Development: PKR 45000")
	assert.Equal(t, models.FollowUpOrderOffer, env.conversation(t, testCustomer).ExpectedFollowUp)

	env.send(t, testCustomer, "yes")
	assert.Contains(t, env.api.last(testCustomer), "Please pay using")
}

func TestBotServiceList(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "what services do you offer")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.ServiceInquiry), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "Here are our services:")
}

func TestBotRejectionClearsFollowUp(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, testCustomer, "I need a logo")
	res := env.send(t, testCustomer, "no thanks")

	assert.Equal(t, string(intent.Rejection), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "No problem!")
	assert.Empty(t, env.conversation(t, testCustomer).ExpectedFollowUp)

	// a later yes has nothing to confirm and goes to the assistant
	env.send(t, testCustomer, "ok")
	assert.Equal(t, 1, env.provider.calls)
}

func TestBotConfirmationWithoutFollowUpUsesAI(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "ok")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.Confirmation), res.Intent)
	assert.Equal(t, 1, env.provider.calls)
	assert.Equal(t, "Happy to help!", env.api.last(testCustomer))
	assert.NotEmpty(t, env.provider.last.System)
	require.NotEmpty(t, env.provider.last.Messages)
	assert.Equal(t, "ok", env.provider.last.Messages[len(env.provider.last.Messages)-1].Content)
	assert.Equal(t, string(intent.Confirmation), env.provider.last.Intent)
	assert.Empty(t, env.provider.last.Service)
}

func TestBotAIRequestCarriesIntentAndService(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, testCustomer, "I need a logo")
	res := env.send(t, testCustomer, "what guarantee do you give")
	require.NoError(t, res.Err)
	require.Equal(t, 1, env.provider.calls)

	req := env.provider.last
	assert.Equal(t, string(intent.FAQ), req.Intent)
	assert.Equal(t, "Logo Design", req.Service)
	assert.Equal(t, 300, req.MaxTokens)
	assert.Contains(t, req.SystemText(), "detected intent: FAQ")
	assert.Contains(t, req.SystemText(), "service discussed: Logo Design")
}

func TestBotFAQ(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "do you give a refund")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.FAQ), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "full refund")
	assert.Equal(t, 0, env.provider.calls)

	env.send(t, testCustomer, "what guarantee do you give")
	assert.Equal(t, 1, env.provider.calls)
}

func TestBotAIFailureOffersHandoff(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = errBoom

	res := env.send(t, testCustomer, "thank you")
	assert.ErrorIs(t, res.Err, ErrUpstream)
	assert.True(t, res.Processed)
	assert.Contains(t, env.api.last(testCustomer), testSupport)
	assert.Equal(t, models.FollowUpHandoffOffer, env.conversation(t, testCustomer).ExpectedFollowUp)

	res = env.send(t, testCustomer, "yes")
	require.NoError(t, res.Err)

	conv := env.conversation(t, testCustomer)
	assert.Equal(t, models.ConversationStatusHumanHandoff, conv.Status)

	h, err := env.store.GetOpenHandoff(context.Background(), testCustomer)
	require.NoError(t, err)
	assert.Equal(t, ReasonOfferAccepted, h.Reason)
	assert.Equal(t, models.PriorityNormal, h.Priority)
	assert.Contains(t, env.api.last(env.operatorChat()), "handoff #1")
}

func TestBotHumanRequestThenForwarding(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "I want to talk to a human")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.HumanRequest), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "connecting you with our team")
	assert.NotContains(t, env.api.last(testCustomer), "priority")
	assert.Contains(t, env.api.last(env.operatorChat()), "🟡 New handoff #1")
	require.Len(t, env.mirror.handoffs, 1)

	customerReplies := len(env.api.to(testCustomer))

	res = env.send(t, testCustomer, "are you there")
	require.NoError(t, res.Err)
	assert.Equal(t, metrics.OutcomeForwarded, res.Outcome)
	assert.Empty(t, res.Intent)
	assert.Len(t, env.api.to(testCustomer), customerReplies)
	assert.Contains(t, env.api.last(env.operatorChat()), "are you there")
	assert.Contains(t, env.api.last(env.operatorChat()), "/reply +923001234567")
	assert.Equal(t, 0, env.provider.calls)

	history, err := env.store.GetRecentMessages(context.Background(), testCustomer, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "are you there", history[0].Body)
	assert.Empty(t, history[0].Intent)
}

func TestBotFrustrationIsHighPriority(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "this is the worst service ever")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.HumanRequest), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "marked your request as priority")
	assert.Contains(t, env.api.last(env.operatorChat()), "🔴 HIGH PRIORITY")

	h, err := env.store.GetOpenHandoff(context.Background(), testCustomer)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, h.Priority)
	assert.Equal(t, intent.ReasonFrustrated, h.Reason)
}

func TestBotOutOfScopeHandsOff(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, testCustomer, "what is the weather today")

	h, err := env.store.GetOpenHandoff(context.Background(), testCustomer)
	require.NoError(t, err)
	assert.Equal(t, intent.ReasonOutOfScope, h.Reason)
	assert.Equal(t, 0, env.provider.calls)
}

func TestBotPaymentScreenshot(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, testCustomer, "I need a logo")
	res := env.bot.HandleInboundMessage(context.Background(), mediaPayload(testCustomer, "https://api.twilio.com/media/ME1"))
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.PaymentConfirmation), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "Reference: #1")

	operator := env.api.last(env.operatorChat())
	assert.Contains(t, operator, "/approve 1")
	assert.Contains(t, operator, "https://api.twilio.com/media/ME1")

	p, err := env.store.GetPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, "logo", p.ServiceID)
	require.NotNil(t, p.Amount)
	assert.Equal(t, 8000.0, *p.Amount)
	require.Len(t, env.mirror.payments, 1)
}

func TestBotPaymentClaimWithoutScreenshot(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, testCustomer, "I have paid the amount")
	require.NoError(t, res.Err)
	assert.Equal(t, string(intent.PaymentConfirmation), res.Intent)
	assert.Contains(t, env.api.last(testCustomer), "send a screenshot")
	assert.Equal(t, models.FollowUpPaymentProof, env.conversation(t, testCustomer).ExpectedFollowUp)

	pending, err := env.payments.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBotDuplicateDeliveryIsDropped(t *testing.T) {
	env := newTestEnv(t)
	payload := textPayload(testCustomer, "hi")

	first := env.bot.HandleInboundMessage(context.Background(), payload)
	second := env.bot.HandleInboundMessage(context.Background(), payload)

	assert.True(t, first.Processed)
	assert.False(t, second.Processed)
	assert.Equal(t, metrics.OutcomeDuplicate, second.Outcome)
	assert.NoError(t, second.Err)
	assert.Len(t, env.api.to(testCustomer), 1)
}

func TestBotIgnoresUnprocessablePayloads(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		payload InboundPayload
	}{
		{"status callback", InboundPayload{"MessageStatus": "delivered", "From": testCustomer, "MessageSid": "SM1"}},
		{"own number", textPayload(testFrom, "hi")},
		{"empty body", textPayload(testCustomer, "   ")},
		{"sms sender", textPayload("+923001234567", "hi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.bot.HandleInboundMessage(context.Background(), tt.payload)
			assert.False(t, res.Processed)
			assert.Equal(t, metrics.OutcomeIgnored, res.Outcome)
		})
	}
	assert.Empty(t, env.api.sent)
}

func TestBotBlockedConversationIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, testCustomer, "hi")

	conv := env.conversation(t, testCustomer)
	conv.Status = models.ConversationStatusBlocked
	require.NoError(t, env.store.UpdateConversation(context.Background(), conv))
	sent := len(env.api.sent)

	res := env.send(t, testCustomer, "hello again")
	assert.Equal(t, metrics.OutcomeIgnored, res.Outcome)
	assert.Len(t, env.api.sent, sent)

	history, err := env.store.GetRecentMessages(context.Background(), testCustomer, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello again", history[0].Body)
}

func TestBotRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.bot.limiter = NewStoreRateLimiter(env.store, 2, time.Minute)

	env.send(t, testCustomer, "hi")
	env.send(t, testCustomer, "hi")
	res := env.send(t, testCustomer, "hi")

	assert.Equal(t, metrics.OutcomeRateLimited, res.Outcome)
	assert.False(t, res.Processed)
	assert.Contains(t, env.api.last(testCustomer), "too quickly")
	assert.Equal(t, 2, env.conversation(t, testCustomer).MessageCount)
}

func TestBotOperatorSkipsRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.bot.limiter = NewStoreRateLimiter(env.store, 1, time.Minute)

	for i := 0; i < 3; i++ {
		res := env.send(t, env.operatorChat(), "/help")
		assert.Equal(t, metrics.OutcomeAdmin, res.Outcome)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, chatID string) (bool, error) {
	return false, errBoom
}

func TestBotRateLimiterFailureAllowsMessage(t *testing.T) {
	env := newTestEnv(t)
	env.bot.limiter = failingLimiter{}

	res := env.send(t, testCustomer, "hi")
	assert.True(t, res.Processed)
	assert.NoError(t, res.Err)
}

func TestBotOperatorCommands(t *testing.T) {
	env := newTestEnv(t)
	op := env.operatorChat()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"help", "/help", "/approve <paymentId>"},
		{"unknown", "/foo", "❓"},
		{"missing args", "/approve", "usage: /approve <paymentId>"},
		{"not found", "/approve 99", "not found"},
		{"bad id", "/approve abc", "invalid id"},
		{"empty lists", "/payments", "No pending payments."},
		{"stats", "/stats", "📊 Stats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.send(t, op, tt.text)
			assert.True(t, res.Processed)
			assert.Equal(t, metrics.OutcomeAdmin, res.Outcome)
			assert.Contains(t, env.api.last(op), tt.want)
		})
	}
}

func TestBotOperatorPlainTextIsAConversation(t *testing.T) {
	env := newTestEnv(t)

	res := env.send(t, env.operatorChat(), "hi")
	assert.Equal(t, string(intent.Greeting), res.Intent)
	assert.Equal(t, metrics.OutcomeProcessed, res.Outcome)
}

func TestBotApprovalOverWhatsApp(t *testing.T) {
	env := newTestEnv(t)
	op := env.operatorChat()

	env.bot.HandleInboundMessage(context.Background(), mediaPayload(testCustomer, "https://example.com/receipt.jpg"))

	res := env.send(t, op, "/approve 1")
	require.NoError(t, res.Err)
	assert.Contains(t, env.api.last(testCustomer), "has been verified")
	assert.Contains(t, env.api.last(op), "Payment #1 approved")

	p, err := env.store.GetPayment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, p.Status)
	assert.Equal(t, testOperator, p.ReviewedBy)

	env.send(t, op, "/approve 1")
	assert.Contains(t, env.api.last(op), "already approved")
}

func TestBotResumeOverWhatsApp(t *testing.T) {
	env := newTestEnv(t)
	op := env.operatorChat()

	env.send(t, testCustomer, "I want to talk to a human")
	env.send(t, op, "/reply +923001234567 Hi, this is Sara from the team")
	assert.Equal(t, "Hi, this is Sara from the team", env.api.last(testCustomer))
	assert.Contains(t, env.api.last(op), "📤 Sent to +923001234567")

	env.send(t, op, "/resume_ai +923001234567")
	assert.Contains(t, env.api.last(testCustomer), "assistant is back")
	assert.Equal(t, models.ConversationStatusActive, env.conversation(t, testCustomer).Status)

	open, err := env.handoffs.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)

	res := env.send(t, testCustomer, "hi")
	assert.Equal(t, string(intent.Greeting), res.Intent)
}
