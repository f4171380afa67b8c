package models

// Stats is an operator-facing snapshot of the system
type Stats struct {
	Conversations      int64 `json:"conversations"`
	ActiveChats        int64 `json:"active_chats"`
	HandoffChats       int64 `json:"handoff_chats"`
	Messages           int64 `json:"messages"`
	PendingPayments    int64 `json:"pending_payments"`
	ApprovedPayments   int64 `json:"approved_payments"`
	OpenHandoffs       int64 `json:"open_handoffs"`
	MessagesLast24h    int64 `json:"messages_last_24h"`
	NewConversations24 int64 `json:"new_conversations_last_24h"`
}

// AllModels lists every model for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&Conversation{},
		&Message{},
		&Payment{},
		&HandoffRequest{},
		&RateLimit{},
	}
}
