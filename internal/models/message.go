package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is an append-only log entry belonging to one conversation
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"index;not null"`
	ChatID         string    `json:"chat_id" gorm:"index;not null"`
	ExternalID     string    `json:"external_id" gorm:"uniqueIndex;not null"` // transport message id, or a generated one
	Sender         string    `json:"sender" gorm:"not null"`                  // customer, bot, human, system
	Body           string    `json:"body" gorm:"type:text"`
	Type           string    `json:"type" gorm:"default:'text'"` // text, image, document, audio, video
	Intent         string    `json:"intent,omitempty" gorm:"index"`
	MediaURL       string    `json:"media_url,omitempty"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

// Message sender constants
const (
	SenderCustomer = "customer"
	SenderBot      = "bot"
	SenderHuman    = "human"
	SenderSystem   = "system"
)

// Message type constants
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeDocument = "document"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
)

// BeforeCreate generates an external id for messages that did not come
// from the transport (bot replies, system notes).
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ExternalID == "" {
		m.ExternalID = "local-" + uuid.NewString()
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return nil
}

// MessageTypeFromContentType maps a MIME type to a message type
func MessageTypeFromContentType(contentType string) string {
	switch {
	case contentType == "":
		return MessageTypeText
	case strings.HasPrefix(contentType, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(contentType, "audio/"):
		return MessageTypeAudio
	case strings.HasPrefix(contentType, "video/"):
		return MessageTypeVideo
	default:
		return MessageTypeDocument
	}
}
