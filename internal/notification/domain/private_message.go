package domain

import "time"

// PrivateMessage tracks delivery of 1:1 conversation alerts. It is keyed by
// conversation rather than by arbitrary content.
type PrivateMessage struct {
	ID             string         `json:"id" gorm:"primaryKey"`
	TenantID       string         `json:"tenantId" gorm:"not null;index:idx_private_messages_conversation,priority:1"`
	FromPersonID   string         `json:"fromPersonId"`
	ToPersonID     string         `json:"toPersonId"`
	ConversationID string         `json:"conversationId" gorm:"index:idx_private_messages_conversation,priority:2"`
	NotifyPersonID string         `json:"notifyPersonId" gorm:"index"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod" gorm:"index"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Recipient returns whichever participant did not send.
func (pm *PrivateMessage) Recipient(senderPersonID string) string {
	if pm.FromPersonID == senderPersonID {
		return pm.ToPersonID
	}
	return pm.FromPersonID
}
