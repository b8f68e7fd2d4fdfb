package repository

import (
	"context"

	"notify-backend/internal/notification/domain"
)

// NotificationRepository defines data access for notifications. Every call
// touching tenant data takes the tenant explicitly.
type NotificationRepository interface {
	// Create inserts a new notification
	Create(ctx context.Context, n *domain.Notification) error

	// UpdateDeliveryMethod overwrites the delivery method of one notification
	UpdateDeliveryMethod(ctx context.Context, tenantID, id string, method domain.DeliveryMethod) error

	// UpdateDeliveryMethods overwrites the delivery method of many notifications at once
	UpdateDeliveryMethods(ctx context.Context, tenantID string, ids []string, method domain.DeliveryMethod) error

	// LoadUndelivered returns unread notifications not yet handled by email, across tenants
	LoadUndelivered(ctx context.Context) ([]*domain.Notification, error)

	// LoadExistingUnread returns unread notifications for one event
	LoadExistingUnread(ctx context.Context, tenantID, contentType, contentID string) ([]*domain.Notification, error)

	// LoadForPerson returns a page of a person's notifications, newest first
	LoadForPerson(ctx context.Context, tenantID, personID string, limit, offset int) ([]*domain.Notification, int64, error)

	// CountUnread counts a person's unread notifications
	CountUnread(ctx context.Context, tenantID, personID string) (int64, error)

	// MarkRead marks one notification read and complete
	MarkRead(ctx context.Context, tenantID, personID, id string) error

	// MarkAllRead marks every unread notification of a person read and complete
	MarkAllRead(ctx context.Context, tenantID, personID string) error
}

// PrivateMessageRepository defines data access for private message alerts.
type PrivateMessageRepository interface {
	Save(ctx context.Context, pm *domain.PrivateMessage) error
	LoadByConversationID(ctx context.Context, tenantID, conversationID string) (*domain.PrivateMessage, error)
	LoadUndelivered(ctx context.Context) ([]*domain.PrivateMessage, error)
	UpdateDeliveryMethods(ctx context.Context, tenantID string, ids []string, method domain.DeliveryMethod) error
	MarkRead(ctx context.Context, tenantID, personID, conversationID string) error
}

// DeviceRepository defines data access for push endpoints.
type DeviceRepository interface {
	// Save registers or refreshes a device (atomic upsert on token)
	Save(ctx context.Context, d *domain.Device) error

	// LoadForPerson returns all devices of a person
	LoadForPerson(ctx context.Context, tenantID, personID string) ([]*domain.Device, error)

	// DeleteByToken removes the device owning a token
	DeleteByToken(ctx context.Context, tenantID, token string) error
}

// PreferenceRepository defines data access for notification preferences.
type PreferenceRepository interface {
	// LoadByPersonID returns nil when the person has no preference yet
	LoadByPersonID(ctx context.Context, tenantID, personID string) (*domain.NotificationPreference, error)

	LoadByPersonIDs(ctx context.Context, tenantID string, personIDs []string) ([]*domain.NotificationPreference, error)

	// Save upserts by (tenant, person)
	Save(ctx context.Context, p *domain.NotificationPreference) error

	// CreateIfMissing inserts p unless a row for (tenant, person) already exists
	CreateIfMissing(ctx context.Context, p *domain.NotificationPreference) error
}

// DeliveryLogRepository is the append-only audit store.
type DeliveryLogRepository interface {
	Save(ctx context.Context, l *domain.DeliveryLog) error
	LoadForContent(ctx context.Context, tenantID, contentType, contentID string) ([]*domain.DeliveryLog, error)
}

// ConversationRepository reads messaging data owned by the CRUD layer.
type ConversationRepository interface {
	// LoadPosterIDs returns every distinct person that posted in a conversation
	LoadPosterIDs(ctx context.Context, tenantID, conversationID string) ([]string, error)
}

// Models lists every table this engine owns, for migrations.
func Models() []interface{} {
	return []interface{}{
		&domain.Notification{},
		&domain.PrivateMessage{},
		&domain.Device{},
		&domain.NotificationPreference{},
		&domain.DeliveryLog{},
	}
}
