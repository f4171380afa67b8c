package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/ai"
	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/intent"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/metrics"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// Result reports how an inbound message was handled
type Result struct {
	Processed bool   `json:"processed"`
	Intent    string `json:"intent,omitempty"`
	Outcome   string `json:"outcome"`
	Reply     string `json:"reply,omitempty"`
	Err       error  `json:"-"`
}

// ReasonOfferAccepted is the handoff reason when a customer says yes to
// the offer made after a failed AI reply
const ReasonOfferAccepted = "Customer accepted the offer to talk to the team"

// BotConfig holds the tunables of the router
type BotConfig struct {
	SupportContact string
	AIHistory      int
	AIMaxTokens    int
}

// Bot routes inbound messages: rate limit, conversation lookup, admin
// commands, handoff mode, then classification and intent handlers.
type Bot struct {
	transport     Transport
	conversations *ConversationService
	classifier    *intent.Classifier
	catalog       *catalog.Catalog
	limiter       RateLimiter
	generator     ai.Provider
	messenger     *Messenger
	payments      *PaymentWorkflow
	handoffs      *HandoffWorkflow
	admin         *AdminService
	store         storage.Store
	metrics       *metrics.Metrics
	cfg           BotConfig
	systemPrompt  string
}

// NewBot wires the router
func NewBot(
	store storage.Store,
	transport Transport,
	messenger *Messenger,
	classifier *intent.Classifier,
	cat *catalog.Catalog,
	limiter RateLimiter,
	generator ai.Provider,
	payments *PaymentWorkflow,
	handoffs *HandoffWorkflow,
	admin *AdminService,
	m *metrics.Metrics,
	cfg BotConfig,
) *Bot {
	if cfg.AIHistory <= 0 {
		cfg.AIHistory = 10
	}
	if cfg.AIMaxTokens <= 0 {
		cfg.AIMaxTokens = 300
	}
	return &Bot{
		transport:     transport,
		conversations: NewConversationService(store),
		classifier:    classifier,
		catalog:       cat,
		limiter:       limiter,
		generator:     generator,
		messenger:     messenger,
		payments:      payments,
		handoffs:      handoffs,
		admin:         admin,
		store:         store,
		metrics:       m,
		cfg:           cfg,
		systemPrompt:  ai.SystemPrompt(cat),
	}
}

// HandleInboundMessage processes one webhook payload end to end. Errors
// are reported in the result, never by panicking, so the caller can always
// acknowledge the webhook.
func (b *Bot) HandleInboundMessage(ctx context.Context, payload InboundPayload) Result {
	res := b.handle(ctx, payload)
	b.metrics.InboundMessage(res.Outcome)
	if res.Err != nil {
		logger.Error("Inbound message failed", zap.String("outcome", res.Outcome), zap.Error(res.Err))
	}
	return res
}

func (b *Bot) handle(ctx context.Context, payload InboundPayload) Result {
	msg := b.transport.ParseInbound(payload)
	if !b.transport.IsProcessable(msg) {
		return Result{Outcome: metrics.OutcomeIgnored}
	}

	logger.Info("📱 WhatsApp message",
		zap.String("chat_id", msg.ChatID),
		zap.String("message_id", msg.MessageID),
		zap.Bool("media", msg.HasMedia()),
	)

	isOperator := b.messenger.IsOperator(msg.ChatID)
	if !isOperator {
		if res, limited := b.checkRateLimit(ctx, msg); limited {
			return res
		}
	}

	conv, err := b.conversations.Open(ctx, msg)
	if err != nil {
		return Result{Outcome: metrics.OutcomeFailed, Err: err}
	}

	if isOperator {
		cmd, err := ParseAdminCommand(msg.Body)
		if !errors.Is(err, ErrNotACommand) {
			return b.handleAdmin(ctx, conv, msg, cmd, err)
		}
	}

	switch conv.Status {
	case models.ConversationStatusBlocked:
		if err := b.conversations.RecordInbound(ctx, conv, msg, models.SenderCustomer, ""); err != nil {
			return b.recordFailure(err)
		}
		logger.Debug("Message from blocked conversation", zap.String("chat_id", conv.ChatID))
		return Result{Outcome: metrics.OutcomeIgnored}
	case models.ConversationStatusHumanHandoff:
		return b.forwardToOperator(ctx, conv, msg)
	case models.ConversationStatusCompleted:
		conv.Status = models.ConversationStatusActive
	}

	return b.handleActive(ctx, conv, msg)
}

func (b *Bot) checkRateLimit(ctx context.Context, msg *ParsedMessage) (Result, bool) {
	allowed, err := b.limiter.Allow(ctx, msg.ChatID)
	if err != nil {
		logger.Warn("Rate limiter unavailable, allowing message", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return Result{}, false
	}
	if allowed {
		return Result{}, false
	}

	logger.Warn("⏳ Rate limit exceeded", zap.String("chat_id", msg.ChatID))
	text, err := b.catalog.Render(catalog.TplRateLimited, nil)
	if err == nil {
		err = b.messenger.SendRaw(ctx, msg.ChatID, text)
	}
	return Result{Outcome: metrics.OutcomeRateLimited, Reply: text, Err: err}, true
}

func (b *Bot) handleAdmin(ctx context.Context, conv *models.Conversation, msg *ParsedMessage, cmd *AdminCommand, parseErr error) Result {
	if err := b.conversations.RecordInbound(ctx, conv, msg, models.SenderHuman, ""); err != nil {
		return b.recordFailure(err)
	}

	var reply string
	err := parseErr
	if err == nil {
		reply, err = b.admin.HandleAdminCommand(ctx, cmd, msg.ChatID)
	}
	if err != nil {
		logger.Warn("Admin command failed", zap.String("text", msg.Body), zap.Error(err))
		reply = AdminErrorReply(err)
	}

	res := Result{Processed: true, Outcome: metrics.OutcomeAdmin, Reply: reply}
	if reply != "" {
		res.Err = b.messenger.Reply(ctx, conv, reply, "")
	}
	return res
}

// forwardToOperator relays a customer's message while a human owns the
// conversation. Nothing is classified and the customer gets no bot reply.
func (b *Bot) forwardToOperator(ctx context.Context, conv *models.Conversation, msg *ParsedMessage) Result {
	if err := b.conversations.RecordInbound(ctx, conv, msg, models.SenderCustomer, ""); err != nil {
		return b.recordFailure(err)
	}
	b.handoffs.ForwardToOperator(ctx, conv, msg)
	return Result{Processed: true, Outcome: metrics.OutcomeForwarded}
}

func (b *Bot) handleActive(ctx context.Context, conv *models.Conversation, msg *ParsedMessage) Result {
	classification := b.classifier.Classify(msg.Body, intent.Context{HasAttachment: msg.HasMedia()})
	tag := string(classification.Intent)

	if err := b.conversations.RecordInbound(ctx, conv, msg, models.SenderCustomer, tag); err != nil {
		return b.recordFailure(err)
	}
	b.metrics.Intent(tag)
	logger.Info("🧭 Intent classified",
		zap.String("chat_id", conv.ChatID),
		zap.String("intent", tag),
		zap.Float64("confidence", classification.Confidence),
		zap.String("service", classification.Metadata.ServiceID),
	)

	if name, ok := CaptureName(msg.Body); ok {
		conv.CustomerName = name
	}
	pending := TakeFollowUp(conv)

	reply, err := b.respond(ctx, conv, msg, classification, pending)

	if saveErr := b.conversations.Save(ctx, conv); saveErr != nil && err == nil {
		err = saveErr
	}
	return Result{Processed: true, Intent: tag, Outcome: metrics.OutcomeProcessed, Reply: reply, Err: err}
}

// respond dispatches to the intent handler. Handlers that run a workflow
// send their own replies; the rest return text sent here. pending is the
// follow-up the previous bot reply set up, already cleared from conv.
func (b *Bot) respond(ctx context.Context, conv *models.Conversation, msg *ParsedMessage, c intent.Result, pending FollowUp) (string, error) {
	if d := intent.ShouldHandoff(c); d.Handoff {
		_, err := b.handoffs.Initiate(ctx, conv, d.Reason, d.Priority)
		return "", err
	}

	var (
		text string
		err  error
	)
	tag := string(c.Intent)
	serviceID := c.Metadata.ServiceID
	if serviceID == "" {
		serviceID = pending.ServiceFor()
	}

	switch c.Intent {
	case intent.Greeting:
		text, err = b.catalog.Render(catalog.TplGreeting, map[string]interface{}{
			"Name":     conv.CustomerName,
			"Business": b.catalog.Business.Name,
		})

	case intent.ServiceInquiry:
		if svc, ok := b.catalog.Service(serviceID); ok {
			text, err = b.catalog.Render(catalog.TplServiceDetail, map[string]interface{}{"Service": svc, "Currency": b.catalog.Business.Currency})
			ExpectFollowUp(conv, models.FollowUpOrderOffer, svc.ID)
		} else {
			text, err = b.catalog.Render(catalog.TplServiceList, map[string]interface{}{"Services": b.catalog.Services, "Currency": b.catalog.Business.Currency})
		}

	case intent.PricingInquiry:
		if svc, ok := b.catalog.Service(serviceID); ok {
			text, err = b.catalog.Render(catalog.TplServicePrice, map[string]interface{}{"Service": svc, "Currency": b.catalog.Business.Currency})
			ExpectFollowUp(conv, models.FollowUpOrderOffer, svc.ID)
		} else {
			text, err = b.catalog.Render(catalog.TplPriceList, map[string]interface{}{"Services": b.catalog.Services, "Currency": b.catalog.Business.Currency})
			ExpectFollowUp(conv, models.FollowUpOrderOffer, "")
		}

	case intent.OrderRequest, intent.PaymentInquiry:
		text, err = b.paymentInstructions(conv, serviceID)

	case intent.PaymentConfirmation:
		if msg.HasMedia() {
			_, err = b.payments.Initiate(ctx, conv, msg.MediaURL, pending.ServiceFor())
			return "", err
		}
		text, err = b.catalog.Render(catalog.TplPaymentProofRequest, nil)
		ExpectFollowUp(conv, models.FollowUpPaymentProof, pending.ServiceFor())

	case intent.Confirmation:
		switch pending.Kind {
		case models.FollowUpOrderOffer:
			text, err = b.paymentInstructions(conv, pending.ServiceID)
		case models.FollowUpHandoffOffer:
			_, err = b.handoffs.Initiate(ctx, conv, ReasonOfferAccepted, models.PriorityNormal)
			return "", err
		default:
			return b.generate(ctx, conv, tag, serviceID)
		}

	case intent.Rejection:
		text, err = b.catalog.Render(catalog.TplRejectionAck, nil)

	case intent.FAQ:
		if faq, ok := b.catalog.MatchFAQ(msg.Body); ok {
			text = faq.Answer
		} else {
			return b.generate(ctx, conv, tag, serviceID)
		}

	default:
		return b.generate(ctx, conv, tag, serviceID)
	}

	if err != nil {
		return "", err
	}
	return text, b.messenger.Reply(ctx, conv, text, tag)
}

// paymentInstructions renders how to pay, naming the service when one is
// known, and waits for the screenshot.
func (b *Bot) paymentInstructions(conv *models.Conversation, serviceID string) (string, error) {
	data := map[string]interface{}{
		"Currency": b.catalog.Business.Currency,
		"Methods":  b.catalog.PaymentMethods,
		"Service":  nil,
	}
	if svc, ok := b.catalog.Service(serviceID); ok {
		data["Service"] = svc
	} else {
		serviceID = ""
	}
	ExpectFollowUp(conv, models.FollowUpPaymentProof, serviceID)
	return b.catalog.Render(catalog.TplPaymentInstructions, data)
}

// generate answers with the AI chain. When every provider fails the
// customer gets the fallback message and an offer to reach the team.
func (b *Bot) generate(ctx context.Context, conv *models.Conversation, intentLabel, serviceID string) (string, error) {
	history, err := b.store.GetRecentMessages(ctx, conv.ChatID, b.cfg.AIHistory)
	if err != nil {
		logger.Warn("Failed to load history", zap.String("chat_id", conv.ChatID), zap.Error(err))
	}

	req := ai.Request{
		System:    b.systemPrompt,
		Messages:  ai.HistoryMessages(history),
		MaxTokens: b.cfg.AIMaxTokens,
		Intent:    intentLabel,
	}
	if svc, ok := b.catalog.Service(serviceID); ok {
		req.Service = svc.Name
	}

	start := time.Now()
	text, err := b.generator.Generate(ctx, req)
	b.metrics.ObserveAI(start, err)

	if err != nil {
		b.metrics.OutboundFailure(metrics.TargetAI)
		logger.Warn("AI reply failed, sending fallback", zap.String("chat_id", conv.ChatID), zap.Error(err))

		fallback, renderErr := b.catalog.Render(catalog.TplFallbackError, map[string]interface{}{"Support": b.cfg.SupportContact})
		if renderErr != nil {
			return "", renderErr
		}
		ExpectFollowUp(conv, models.FollowUpHandoffOffer, "")
		if sendErr := b.messenger.Reply(ctx, conv, fallback, intentLabel); sendErr != nil {
			return fallback, sendErr
		}
		return fallback, fmt.Errorf("generate reply: %w: %v", ErrUpstream, err)
	}

	return text, b.messenger.Reply(ctx, conv, text, intentLabel)
}

func (b *Bot) recordFailure(err error) Result {
	if errors.Is(err, storage.ErrDuplicate) {
		logger.Info("Duplicate delivery ignored", zap.Error(err))
		return Result{Outcome: metrics.OutcomeDuplicate}
	}
	return Result{Outcome: metrics.OutcomeFailed, Err: fmt.Errorf("record message: %w", err)}
}
