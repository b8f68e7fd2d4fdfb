package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by updates that match no row for the caller's tenant.
var ErrNotFound = errors.New("record not found")

// DeliveryMethod records the last channel that produced delivery activity.
type DeliveryMethod string

const (
	DeliveryPending  DeliveryMethod = ""
	DeliverySocket   DeliveryMethod = "socket"
	DeliveryPush     DeliveryMethod = "push"
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryNone     DeliveryMethod = "none"
	DeliveryComplete DeliveryMethod = "complete"
)

// AwaitingEmail lists the methods that still make an unread item part of the email backlog.
var AwaitingEmail = []DeliveryMethod{DeliveryPending, DeliverySocket, DeliveryPush}

// Content kinds that drive notification policy and formatting.
const (
	ContentTypeAssignment     = "assignment"
	ContentTypeNotification   = "notification"
	ContentTypePrivateMessage = "privateMessage"
	ContentTypeStreamingLive  = "streamingLive"
)

// Notification is a one-way alert to a person about content they don't own the conversation of.
type Notification struct {
	ID             string         `json:"id" gorm:"primaryKey"`
	TenantID       string         `json:"tenantId" gorm:"not null;index:idx_notifications_event,priority:1;index:idx_notifications_person,priority:1"`
	PersonID       string         `json:"personId" gorm:"not null;index:idx_notifications_person,priority:2"`
	ContentType    string         `json:"contentType" gorm:"index:idx_notifications_event,priority:2"`
	ContentID      string         `json:"contentId" gorm:"index:idx_notifications_event,priority:3"`
	Message        string         `json:"message"`
	Link           string         `json:"link,omitempty"`
	TimeSent       time.Time      `json:"timeSent"`
	IsNew          bool           `json:"isNew" gorm:"index"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod" gorm:"index"`
}

// NewNotification builds an unread notification stamped with the given time.
func NewNotification(id, tenantID, personID, contentType, contentID, message, link string, now time.Time) *Notification {
	return &Notification{
		ID:          id,
		TenantID:    tenantID,
		PersonID:    personID,
		ContentType: contentType,
		ContentID:   contentID,
		Message:     message,
		Link:        link,
		TimeSent:    now,
		IsNew:       true,
	}
}
