package domain

import "fmt"

// EmailFrequency controls how often a person receives digest emails.
type EmailFrequency string

const (
	EmailNever      EmailFrequency = "never"
	EmailIndividual EmailFrequency = "individual"
	EmailDaily      EmailFrequency = "daily"
)

// ParseEmailFrequency accepts only the closed set of frequencies.
func ParseEmailFrequency(s string) (EmailFrequency, error) {
	switch f := EmailFrequency(s); f {
	case EmailNever, EmailIndividual, EmailDaily:
		return f, nil
	}
	return "", fmt.Errorf("invalid email frequency %q", s)
}

// NotificationPreference holds per-person delivery settings within a tenant.
type NotificationPreference struct {
	ID             string         `json:"id" gorm:"primaryKey"`
	TenantID       string         `json:"tenantId" gorm:"not null;uniqueIndex:idx_preferences_person,priority:1"`
	PersonID       string         `json:"personId" gorm:"not null;uniqueIndex:idx_preferences_person,priority:2"`
	AllowPush      bool           `json:"allowPush"`
	EmailFrequency EmailFrequency `json:"emailFrequency"`
	FailedDigests  int            `json:"-"` // Consecutive failed digest sends
}

// DefaultPreference is what a person gets the first time a notification consults them.
func DefaultPreference(id, tenantID, personID string) *NotificationPreference {
	return &NotificationPreference{
		ID:             id,
		TenantID:       tenantID,
		PersonID:       personID,
		AllowPush:      true,
		EmailFrequency: EmailDaily,
	}
}
