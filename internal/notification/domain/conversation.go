package domain

import "time"

// Conversation is the thread a message was posted to. It is owned by the
// messaging CRUD layer; only the fields notification policy needs are mapped.
type Conversation struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId"`
	Title       string `json:"title"`
}

// Message is a post inside a conversation.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	TenantID       string    `json:"tenantId" gorm:"index:idx_messages_conversation,priority:1"`
	ConversationID string    `json:"conversationId" gorm:"index:idx_messages_conversation,priority:2"`
	PersonID       string    `json:"personId"`
	DisplayName    string    `json:"displayName"`
	Content        string    `json:"content"`
	TimeSent       time.Time `json:"timeSent"`
}

// PersonEmail is a resolved address for a person.
type PersonEmail struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
