package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is the persistent record of one WhatsApp chat thread
type Conversation struct {
	gorm.Model
	ChatID         string    `json:"chat_id" gorm:"uniqueIndex;not null"`
	Phone          string    `json:"phone" gorm:"index;not null"`
	CustomerName   string    `json:"customer_name,omitempty"`
	Status         string    `json:"status" gorm:"default:'active';index"` // active, human_handoff, completed, blocked
	AssignedAgent  string    `json:"assigned_agent,omitempty"`
	MessageCount   int       `json:"message_count" gorm:"default:0"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// ExpectedFollowUp is set when the last bot reply asked the customer
	// something specific, and cleared on the next inbound message.
	ExpectedFollowUp  string `json:"expected_follow_up,omitempty"`
	FollowUpServiceID string `json:"follow_up_service_id,omitempty"`
}

// Conversation status constants
const (
	ConversationStatusActive       = "active"
	ConversationStatusHumanHandoff = "human_handoff"
	ConversationStatusCompleted    = "completed"
	ConversationStatusBlocked      = "blocked"
)

// Follow-up constants stored in Conversation.ExpectedFollowUp
const (
	FollowUpNone         = ""
	FollowUpOrderOffer   = "order_offer"
	FollowUpPaymentProof = "payment_proof"
	FollowUpHandoffOffer = "handoff_offer"
)

// BeforeCreate sets defaults for a new conversation
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.Status == "" {
		c.Status = ConversationStatusActive
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = time.Now()
	}
	return nil
}

// InHandoff reports whether a human currently owns the conversation
func (c *Conversation) InHandoff() bool {
	return c.Status == ConversationStatusHumanHandoff
}

// DisplayName returns the customer name, falling back to the phone number
func (c *Conversation) DisplayName() string {
	if c.CustomerName != "" {
		return c.CustomerName
	}
	return c.Phone
}
