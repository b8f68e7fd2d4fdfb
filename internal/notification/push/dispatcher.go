package push

import (
	"context"
	"errors"
	"time"

	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/pkg/metrics"

	"go.uber.org/zap"
)

var errMissingTicket = errors.New("provider returned no ticket for token")

// DeliveryRecorder appends delivery attempts to the audit trail.
type DeliveryRecorder interface {
	Log(ctx context.Context, e deliverylog.Entry) error
}

// Request is one push to all devices of a person.
type Request struct {
	TenantID    string
	PersonID    string
	Tokens      []string
	Title       string
	Body        string
	ContentType string
	ContentID   string
}

// Dispatcher sends pushes in bulk and reconciles per-token tickets.
type Dispatcher struct {
	sender  Sender
	devices repository.DeviceRepository
	log     DeliveryRecorder
	logger  *zap.Logger
	timeout time.Duration
}

func NewDispatcher(sender Sender, devices repository.DeviceRepository, log DeliveryRecorder, logger *zap.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		devices: devices,
		log:     log,
		logger:  logger.Named("push"),
		timeout: timeout,
	}
}

// SendBulk pushes to every distinct well-formed token in one provider call.
// Provider failures are recorded and never returned; the returned error is
// only ever a persistence failure. Tickets line up with the filtered tokens.
func (d *Dispatcher) SendBulk(ctx context.Context, req Request) ([]Ticket, error) {
	tokens := d.usableTokens(req.Tokens)
	if len(tokens) == 0 {
		return nil, nil
	}

	msg := Message{
		Title: req.Title,
		Body:  req.Body,
		Data: map[string]string{
			"contentType": req.ContentType,
			"contentId":   req.ContentID,
		},
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	tickets, sendErr := d.sender.SendBulk(callCtx, tokens, msg)
	if sendErr != nil {
		d.logger.Warn("bulk push failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("person_id", req.PersonID),
			zap.Int("tokens", len(tokens)),
			zap.Error(sendErr))

		failed := make([]Ticket, len(tokens))
		for i, token := range tokens {
			failed[i] = Ticket{Status: TicketError, Message: sendErr.Error()}
			if err := d.record(ctx, req, token, sendErr); err != nil {
				return failed, err
			}
		}
		return failed, nil
	}

	result := make([]Ticket, len(tokens))
	for i, token := range tokens {
		if i >= len(tickets) {
			result[i] = Ticket{Status: TicketError, Message: errMissingTicket.Error(), Transient: true}
			if err := d.record(ctx, req, token, errMissingTicket); err != nil {
				return result, err
			}
			continue
		}

		ticket := tickets[i]
		result[i] = ticket
		if ticket.OK() {
			if err := d.record(ctx, req, token, nil); err != nil {
				return result, err
			}
			continue
		}

		if err := d.record(ctx, req, token, errors.New(ticket.Message)); err != nil {
			return result, err
		}
		if !ticket.Transient {
			d.prune(ctx, req.TenantID, token)
		}
	}
	return result, nil
}

// usableTokens dedupes preserving order and drops malformed tokens.
func (d *Dispatcher) usableTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if !d.sender.ValidToken(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (d *Dispatcher) record(ctx context.Context, req Request, token string, err error) error {
	return d.log.Log(ctx, deliverylog.Entry{
		TenantID:    req.TenantID,
		PersonID:    req.PersonID,
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		Method:      domain.DeliveryPush,
		Address:     token,
		Err:         err,
	})
}

// prune deletes a token the provider rejected. Best effort: failures are only logged.
func (d *Dispatcher) prune(ctx context.Context, tenantID, token string) {
	if err := d.devices.DeleteByToken(ctx, tenantID, token); err != nil {
		d.logger.Warn("prune push token", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	metrics.PushTokensPruned.Inc()
}
