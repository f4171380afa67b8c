package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
)

// InboundPayload is the raw form body of a transport webhook
type InboundPayload map[string]string

// ParsedMessage is an inbound message reduced to what routing needs
type ParsedMessage struct {
	MessageID   string
	ChatID      string // whatsapp:+923001234567
	Phone       string // +923001234567
	ProfileName string
	Body        string
	MediaURL    string
	MediaType   string
	IsGroup     bool
}

// HasMedia reports whether the message carries an attachment
func (m *ParsedMessage) HasMedia() bool {
	return m.MediaURL != ""
}

// Transport sends and parses chat messages
type Transport interface {
	SendText(ctx context.Context, chatID, text string) error
	ParseInbound(payload InboundPayload) *ParsedMessage
	IsProcessable(msg *ParsedMessage) bool
}

const (
	whatsappPrefix = "whatsapp:"
	// maxBodyLength is Twilio's per-message body limit
	maxBodyLength = 1600
)

// NormalizePhone strips the channel prefix and formatting from a number
func NormalizePhone(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), whatsappPrefix))
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
	if s != "" && !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s
}

// ChatIDForPhone returns the WhatsApp chat id for a phone number
func ChatIDForPhone(phone string) string {
	return whatsappPrefix + NormalizePhone(phone)
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioTransport implements Transport over the Twilio WhatsApp API
type TwilioTransport struct {
	api  messageCreator
	from string // whatsapp:+14155238886
}

// NewTwilioTransport creates a transport from account credentials. A
// positive sendTimeout bounds each Twilio API request.
func NewTwilioTransport(accountSID, authToken, from string, sendTimeout time.Duration) (*TwilioTransport, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials: %w", ErrValidation)
	}
	client := newTwilioRestClient(accountSID, authToken, sendTimeout)
	return newTwilioTransport(client.Api, from), nil
}

func newTwilioRestClient(accountSID, authToken string, timeout time.Duration) *twilio.RestClient {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

func newTwilioTransport(api messageCreator, from string) *TwilioTransport {
	if !strings.HasPrefix(from, whatsappPrefix) {
		from = ChatIDForPhone(from)
	}
	return &TwilioTransport{api: api, from: from}
}

// SendText sends a WhatsApp message, split into several when it exceeds
// the body limit.
func (t *TwilioTransport) SendText(ctx context.Context, chatID, text string) error {
	if !strings.HasPrefix(chatID, whatsappPrefix) {
		chatID = ChatIDForPhone(chatID)
	}
	for _, part := range splitBody(text, maxBodyLength) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("send to %s: %w", chatID, err)
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetFrom(t.from)
		params.SetTo(chatID)
		params.SetBody(part)

		resp, err := t.api.CreateMessage(params)
		if err != nil {
			return fmt.Errorf("send to %s: %w: %v", chatID, ErrUpstream, err)
		}
		if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
			msg := ""
			if resp.ErrorMessage != nil {
				msg = *resp.ErrorMessage
			}
			return fmt.Errorf("send to %s: %w: twilio error %d: %s", chatID, ErrUpstream, *resp.ErrorCode, msg)
		}
		if resp.Sid != nil {
			logger.Debug("WhatsApp message sent", zap.String("to", chatID), zap.String("sid", *resp.Sid))
		}
	}
	return nil
}

// ParseInbound turns a Twilio webhook body into a message. Delivery
// status callbacks, messages sent from our own number, broadcast events
// and non-WhatsApp traffic return nil.
func (t *TwilioTransport) ParseInbound(payload InboundPayload) *ParsedMessage {
	if payload["MessageStatus"] != "" {
		return nil
	}
	from := payload["From"]
	if !strings.HasPrefix(from, whatsappPrefix) || from == t.from {
		return nil
	}
	if strings.Contains(from, "status@broadcast") {
		return nil
	}

	msg := &ParsedMessage{
		MessageID:   payload["MessageSid"],
		ChatID:      from,
		Phone:       NormalizePhone(from),
		ProfileName: strings.TrimSpace(payload["ProfileName"]),
		Body:        strings.TrimSpace(payload["Body"]),
		IsGroup:     strings.HasSuffix(from, "@g.us"),
	}
	if n, _ := strconv.Atoi(payload["NumMedia"]); n > 0 {
		msg.MediaURL = payload["MediaUrl0"]
		msg.MediaType = payload["MediaContentType0"]
	}
	return msg
}

// IsProcessable rejects group chats and messages with nothing in them
func (t *TwilioTransport) IsProcessable(msg *ParsedMessage) bool {
	if msg == nil || msg.IsGroup {
		return false
	}
	return msg.Body != "" || msg.MediaURL != ""
}

// splitBody breaks text into chunks of at most limit runes, preferring
// line breaks.
func splitBody(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
