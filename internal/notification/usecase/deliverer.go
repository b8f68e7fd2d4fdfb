package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/push"
	"notify-backend/internal/notification/realtime"
	"notify-backend/internal/notification/repository"

	"go.uber.org/zap"
)

// PreferenceReader hands out a person's preference, creating the default if needed.
type PreferenceReader interface {
	Get(ctx context.Context, tenantID, personID string) (*domain.NotificationPreference, error)
}

// PushDispatcher sends a push to all tokens of a person.
type PushDispatcher interface {
	SendBulk(ctx context.Context, req push.Request) ([]push.Ticket, error)
}

// Target identifies what to tell whom.
type Target struct {
	TenantID    string
	PersonID    string
	ContentType string
	ContentID   string
	Message     string
}

// Deliverer runs the channel waterfall for one person: live socket, then
// mobile push. Both are attempted; the result is the last channel that
// delivered anything, or DeliveryPending when neither did.
type Deliverer struct {
	registry      realtime.Registry
	transport     realtime.Transport
	devices       repository.DeviceRepository
	preferences   PreferenceReader
	dispatcher    PushDispatcher
	log           push.DeliveryRecorder
	logger        *zap.Logger
	socketTimeout time.Duration
}

func NewDeliverer(
	registry realtime.Registry,
	transport realtime.Transport,
	devices repository.DeviceRepository,
	preferences PreferenceReader,
	dispatcher PushDispatcher,
	log push.DeliveryRecorder,
	logger *zap.Logger,
	socketTimeout time.Duration,
) *Deliverer {
	return &Deliverer{
		registry:      registry,
		transport:     transport,
		devices:       devices,
		preferences:   preferences,
		dispatcher:    dispatcher,
		log:           log,
		logger:        logger.Named("deliverer"),
		socketTimeout: socketTimeout,
	}
}

// Deliver returns the resulting delivery method. Only persistence failures are errors.
func (d *Deliverer) Deliver(ctx context.Context, t Target) (domain.DeliveryMethod, error) {
	method := domain.DeliveryPending

	sent, err := d.trySocket(ctx, t)
	if err != nil {
		return method, err
	}
	if sent {
		method = domain.DeliverySocket
	}

	pushed, err := d.tryPush(ctx, t)
	if err != nil {
		return method, err
	}
	if pushed {
		method = domain.DeliveryPush
	}
	return method, nil
}

func (d *Deliverer) trySocket(ctx context.Context, t Target) (bool, error) {
	handles, err := d.registry.Lookup(ctx, t.TenantID, t.PersonID)
	if err != nil {
		return false, fmt.Errorf("lookup connections: %w", err)
	}

	alert := realtime.Alert{Type: "notification", ContentType: t.ContentType, ContentID: t.ContentID}
	sent := false
	for _, handle := range handles {
		pushErr := d.pushToChannel(ctx, handle, alert)
		if err := d.log.Log(ctx, deliverylog.Entry{
			TenantID:    t.TenantID,
			PersonID:    t.PersonID,
			ContentType: t.ContentType,
			ContentID:   t.ContentID,
			Method:      domain.DeliverySocket,
			Address:     handle,
			Err:         pushErr,
		}); err != nil {
			return sent, err
		}

		if pushErr == nil {
			sent = true
			continue
		}
		if errors.Is(pushErr, realtime.ErrUnknownChannel) {
			// Nobody owns the handle any more.
			if err := d.registry.Unregister(ctx, handle); err != nil {
				d.logger.Warn("drop stale channel", zap.String("channel_id", handle), zap.Error(err))
			}
		}
	}
	return sent, nil
}

func (d *Deliverer) pushToChannel(ctx context.Context, handle string, alert realtime.Alert) error {
	if d.socketTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.socketTimeout)
		defer cancel()
	}
	return d.transport.PushToChannel(ctx, handle, alert)
}

func (d *Deliverer) tryPush(ctx context.Context, t Target) (bool, error) {
	pref, err := d.preferences.Get(ctx, t.TenantID, t.PersonID)
	if err != nil {
		return false, err
	}
	if !pref.AllowPush {
		return false, nil
	}

	devices, err := d.devices.LoadForPerson(ctx, t.TenantID, t.PersonID)
	if err != nil {
		return false, fmt.Errorf("load devices: %w", err)
	}
	if len(devices) == 0 {
		return false, nil
	}

	tokens := make([]string, 0, len(devices))
	for _, dev := range devices {
		tokens = append(tokens, dev.PushToken)
	}

	tickets, err := d.dispatcher.SendBulk(ctx, push.Request{
		TenantID:    t.TenantID,
		PersonID:    t.PersonID,
		Tokens:      tokens,
		Title:       Title(t.ContentType, t.Message),
		Body:        Body(t.Message),
		ContentType: t.ContentType,
		ContentID:   t.ContentID,
	})
	if err != nil {
		return false, err
	}
	for _, tk := range tickets {
		if tk.OK() {
			return true, nil
		}
	}
	return false, nil
}
