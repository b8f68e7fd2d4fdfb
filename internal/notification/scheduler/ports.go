package scheduler

import (
	"context"

	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
)

// Email is one outgoing message.
type Email struct {
	From      string
	To        string
	AppName   string
	ReplyLink string
	Subject   string
	HTMLBody  string
	Template  string // template the body was rendered from, for provider analytics
}

// EmailSender delivers an email or returns why it could not.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// DigestComposer renders the backlog of one person into an email.
type DigestComposer interface {
	Compose(notifications []*domain.Notification, privateMessages []*domain.PrivateMessage) (Composed, error)
}

// PersonLookup resolves email addresses, one batch per call.
type PersonLookup interface {
	EmailsForIDs(ctx context.Context, tenantID string, personIDs []string) ([]domain.PersonEmail, error)
}

// PreferenceStore is the slice of the preference store the digest needs.
type PreferenceStore interface {
	GetMany(ctx context.Context, tenantID string, personIDs []string) (map[string]*domain.NotificationPreference, error)
	RecordDigestResult(ctx context.Context, pref *domain.NotificationPreference, ok bool) (int, error)
}

// DeliveryRecorder appends delivery attempts to the audit trail.
type DeliveryRecorder interface {
	Log(ctx context.Context, e deliverylog.Entry) error
}
