package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment records a customer's claim to have paid, pending operator review.
// Amount is nil until the operator knows it.
type Payment struct {
	gorm.Model
	ConversationID *uint      `json:"conversation_id,omitempty" gorm:"index"`
	ChatID         string     `json:"chat_id" gorm:"index;not null"`
	Phone          string     `json:"phone" gorm:"not null"`
	ServiceID      string     `json:"service_id,omitempty"`
	Amount         *float64   `json:"amount,omitempty"`
	Currency       string     `json:"currency" gorm:"default:'PKR'"`
	Method         string     `json:"method,omitempty"`
	ScreenshotURL  string     `json:"screenshot_url,omitempty"`
	Status         string     `json:"status" gorm:"default:'pending';index"`
	ReviewedBy     string     `json:"reviewed_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	Notes          string     `json:"notes,omitempty" gorm:"type:text"`
}

// Payment status constants
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
	PaymentStatusRefunded = "refunded"
)

// DefaultCurrency is used when a payment does not specify one
const DefaultCurrency = "PKR"

// BeforeCreate sets payment defaults
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	return nil
}
