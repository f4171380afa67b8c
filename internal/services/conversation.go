package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

// ConversationService owns per-chat state: lookup, the inbound log, name
// capture and the expected follow-up.
type ConversationService struct {
	store storage.Store
	now   func() time.Time
}

// NewConversationService creates a conversation service
func NewConversationService(store storage.Store) *ConversationService {
	return &ConversationService{store: store, now: time.Now}
}

// Open returns the conversation for an inbound message, creating it on
// first contact. A WhatsApp profile name fills in a missing customer name.
func (s *ConversationService) Open(ctx context.Context, msg *ParsedMessage) (*models.Conversation, error) {
	conv, created, err := s.store.GetOrCreateConversation(ctx, msg.ChatID, msg.Phone)
	if err != nil {
		return nil, storeErr(err, "conversation "+msg.ChatID)
	}
	if created {
		logger.Info("New conversation", zap.String("chat_id", conv.ChatID))
	}
	if conv.CustomerName == "" && msg.ProfileName != "" {
		conv.CustomerName = msg.ProfileName
		if err := s.store.UpdateConversation(ctx, conv); err != nil {
			logger.Warn("Failed to save profile name", zap.String("chat_id", conv.ChatID), zap.Error(err))
		}
	}
	return conv, nil
}

// RecordInbound logs a customer message and bumps the conversation
// counters. A redelivered transport message returns storage.ErrDuplicate.
func (s *ConversationService) RecordInbound(ctx context.Context, conv *models.Conversation, msg *ParsedMessage, sender, intent string) error {
	entry := &models.Message{
		ConversationID: conv.ID,
		ChatID:         conv.ChatID,
		ExternalID:     msg.MessageID,
		Sender:         sender,
		Body:           msg.Body,
		Type:           models.MessageTypeFromContentType(msg.MediaType),
		Intent:         intent,
		MediaURL:       msg.MediaURL,
	}
	if err := s.store.CreateMessage(ctx, entry); err != nil {
		return err
	}

	now := s.now()
	if err := s.store.TouchConversation(ctx, conv.ID, now); err != nil {
		logger.Warn("Failed to update conversation activity", zap.String("chat_id", conv.ChatID), zap.Error(err))
		return nil
	}
	conv.MessageCount++
	conv.LastActivityAt = now
	return nil
}

// Save persists status, name and follow-up changes
func (s *ConversationService) Save(ctx context.Context, conv *models.Conversation) error {
	return storeErr(s.store.UpdateConversation(ctx, conv), "conversation "+conv.ChatID)
}

// FollowUp is what the previous bot reply was waiting for
type FollowUp struct {
	Kind      string
	ServiceID string
}

// ServiceFor returns the service the pending follow-up was about when it
// was an order offer or a payment proof request.
func (f FollowUp) ServiceFor() string {
	switch f.Kind {
	case models.FollowUpOrderOffer, models.FollowUpPaymentProof:
		return f.ServiceID
	}
	return ""
}

// TakeFollowUp returns the pending follow-up and clears it on conv. The
// caller saves conv.
func TakeFollowUp(conv *models.Conversation) FollowUp {
	f := FollowUp{Kind: conv.ExpectedFollowUp, ServiceID: conv.FollowUpServiceID}
	conv.ExpectedFollowUp = models.FollowUpNone
	conv.FollowUpServiceID = ""
	return f
}

// ExpectFollowUp records what the bot just asked the customer. The caller
// saves conv.
func ExpectFollowUp(conv *models.Conversation, followUp, serviceID string) {
	conv.ExpectedFollowUp = followUp
	conv.FollowUpServiceID = serviceID
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([\p{L}][\p{L}'.-]*(?:\s+[\p{L}][\p{L}'.-]*)?)`),
	regexp.MustCompile(`(?i)\bmera naam ([\p{L}][\p{L}'.-]*(?:\s+[\p{L}][\p{L}'.-]*)?) hai\b`),
	regexp.MustCompile(`(?i)\bthis is ([\p{L}][\p{L}'.-]*) (?:here|from)\b`),
}

var nameStopWords = map[string]bool{
	"and": true, "aur": true, "i": true, "from": true, "here": true, "hai": true,
}

// CaptureName extracts a self-introduced customer name from text
func CaptureName(text string) (string, bool) {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		var words []string
		for _, w := range strings.Fields(m[1]) {
			if nameStopWords[strings.ToLower(w)] {
				break
			}
			words = append(words, strings.TrimRight(w, "."))
		}
		if len(words) == 0 {
			continue
		}
		return titleCase(strings.Join(words, " ")), true
	}
	return "", false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
