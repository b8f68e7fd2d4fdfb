package domain

import "time"

// Device is a registered push endpoint. A person may own many.
type Device struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	TenantID         string    `json:"tenantId" gorm:"not null;index:idx_devices_person,priority:1"`
	PersonID         string    `json:"personId" gorm:"not null;index:idx_devices_person,priority:2"`
	PushToken        string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	Label            string    `json:"label"`                         // Device/app metadata
	LastActiveDate   time.Time `json:"lastActiveDate"`
	RegistrationDate time.Time `json:"registrationDate"`
}
