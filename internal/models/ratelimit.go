package models

import "time"

// RateLimit counts messages from one chat in the current window
type RateLimit struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChatID      string    `gorm:"uniqueIndex;not null" json:"chat_id"`
	Count       int       `gorm:"default:0" json:"count"`
	WindowStart time.Time `gorm:"index" json:"window_start"`
	UpdatedAt   time.Time `json:"updated_at"`
}
