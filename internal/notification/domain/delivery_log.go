package domain

import "time"

// DeliveryLog is an append-only audit row for one delivery attempt.
type DeliveryLog struct {
	ID              string         `json:"id" gorm:"primaryKey"`
	TenantID        string         `json:"tenantId" gorm:"not null;index:idx_delivery_logs_content,priority:1"`
	PersonID        string         `json:"personId" gorm:"index"`
	ContentType     string         `json:"contentType" gorm:"index:idx_delivery_logs_content,priority:2"`
	ContentID       string         `json:"contentId" gorm:"index:idx_delivery_logs_content,priority:3"`
	DeliveryMethod  DeliveryMethod `json:"deliveryMethod"`
	DeliveryAddress string         `json:"deliveryAddress"` // token, channel handle or email
	Success         bool           `json:"success"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	AttemptTime     time.Time      `json:"attemptTime"`
}
