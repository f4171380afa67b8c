package models

import (
	"time"

	"gorm.io/gorm"
)

// HandoffRequest asks a human operator to take over a conversation
type HandoffRequest struct {
	gorm.Model
	ConversationID  uint       `json:"conversation_id" gorm:"index;not null"`
	ChatID          string     `json:"chat_id" gorm:"index;not null"`
	Phone           string     `json:"phone"`
	CustomerName    string     `json:"customer_name,omitempty"`
	Reason          string     `json:"reason" gorm:"type:text"`
	Priority        string     `json:"priority" gorm:"default:'normal'"` // low, normal, high, urgent
	Status          string     `json:"status" gorm:"default:'pending';index"`
	AssignedTo      string     `json:"assigned_to,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty" gorm:"type:text"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// Handoff status constants
const (
	HandoffStatusPending    = "pending"
	HandoffStatusAssigned   = "assigned"
	HandoffStatusInProgress = "in_progress"
	HandoffStatusResolved   = "resolved"
	HandoffStatusCancelled  = "cancelled"
)

// Handoff priority constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// OpenHandoffStatuses are the statuses of a handoff that still needs a human
var OpenHandoffStatuses = []string{HandoffStatusPending, HandoffStatusAssigned, HandoffStatusInProgress}

// BeforeCreate sets handoff defaults
func (h *HandoffRequest) BeforeCreate(tx *gorm.DB) error {
	if h.Status == "" {
		h.Status = HandoffStatusPending
	}
	if h.Priority == "" {
		h.Priority = PriorityNormal
	}
	return nil
}

// IsOpen reports whether the request is still pending, assigned or in progress
func (h *HandoffRequest) IsOpen() bool {
	for _, s := range OpenHandoffStatuses {
		if h.Status == s {
			return true
		}
	}
	return false
}

// PriorityRank orders priorities so a handoff can be escalated but never
// downgraded.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}
