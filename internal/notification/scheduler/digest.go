package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tune a DigestScheduler.
type Options struct {
	From    string
	AppName string

	// Concurrency caps simultaneous email sends.
	Concurrency int

	// MaxFailures suppresses a person's backlog after that many consecutive
	// failed digests. Zero retries forever.
	MaxFailures int

	EmailTimeout time.Duration

	// DeferMismatched leaves items of people whose frequency differs from the
	// pass for their own pass. By default they are marked "none".
	DeferMismatched bool
}

// Summary reports what one pass did.
type Summary struct {
	Frequency  domain.EmailFrequency `json:"frequency"`
	People     int                   `json:"people"`
	Sent       int                   `json:"sent"`
	Failed     int                   `json:"failed"`
	Suppressed int                   `json:"suppressed"`
	Deferred   int                   `json:"deferred"`
	NoAddress  int                   `json:"noAddress"`
}

// backlog is everything awaiting email for one person.
type backlog struct {
	tenantID        string
	personID        string
	notifications   []*domain.Notification
	privateMessages []*domain.PrivateMessage
}

func (b *backlog) notificationIDs() []string {
	ids := make([]string, len(b.notifications))
	for i, n := range b.notifications {
		ids[i] = n.ID
	}
	return ids
}

func (b *backlog) privateMessageIDs() []string {
	ids := make([]string, len(b.privateMessages))
	for i, pm := range b.privateMessages {
		ids[i] = pm.ID
	}
	return ids
}

// DigestScheduler clears the email backlog, one email per person.
type DigestScheduler struct {
	notifications   repository.NotificationRepository
	privateMessages repository.PrivateMessageRepository
	preferences     PreferenceStore
	people          PersonLookup
	sender          EmailSender
	log             DeliveryRecorder
	composer        DigestComposer
	opts            Options
	logger          *zap.Logger
}

func NewDigestScheduler(
	notifications repository.NotificationRepository,
	privateMessages repository.PrivateMessageRepository,
	preferences PreferenceStore,
	people PersonLookup,
	sender EmailSender,
	log DeliveryRecorder,
	composer DigestComposer,
	opts Options,
	logger *zap.Logger,
) *DigestScheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	return &DigestScheduler{
		notifications:   notifications,
		privateMessages: privateMessages,
		preferences:     preferences,
		people:          people,
		sender:          sender,
		log:             log,
		composer:        composer,
		opts:            opts,
		logger:          logger.Named("digest"),
	}
}

// DefersMismatched reports whether items of other frequencies are left pending.
func (s *DigestScheduler) DefersMismatched() bool {
	return s.opts.DeferMismatched
}

// Run performs one pass for the given frequency. Send failures are recorded
// and retried by the next pass; only persistence failures are returned.
func (s *DigestScheduler) Run(ctx context.Context, frequency domain.EmailFrequency) (Summary, error) {
	summary := Summary{Frequency: frequency}
	if frequency != domain.EmailIndividual && frequency != domain.EmailDaily {
		return summary, fmt.Errorf("cannot run a digest pass for frequency %q", frequency)
	}

	start := time.Now()
	defer func() {
		metrics.DigestDuration.WithLabelValues(string(frequency)).Observe(time.Since(start).Seconds())
	}()

	backlogs, err := s.loadBacklog(ctx)
	if err != nil {
		return summary, err
	}
	summary.People = len(backlogs)
	if len(backlogs) == 0 {
		return summary, nil
	}

	due, err := s.triage(ctx, frequency, backlogs, &summary)
	if err != nil {
		return summary, err
	}

	if err := s.sendAll(ctx, frequency, due, &summary); err != nil {
		return summary, err
	}

	s.logger.Info("digest pass finished",
		zap.String("frequency", string(frequency)),
		zap.Int("people", summary.People),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("suppressed", summary.Suppressed),
		zap.Int("deferred", summary.Deferred),
		zap.Duration("took", time.Since(start)))
	return summary, nil
}

// loadBacklog groups every item awaiting email by tenant and person, in first-seen order.
func (s *DigestScheduler) loadBacklog(ctx context.Context) ([]*backlog, error) {
	notifications, err := s.notifications.LoadUndelivered(ctx)
	if err != nil {
		return nil, fmt.Errorf("load undelivered notifications: %w", err)
	}
	privateMessages, err := s.privateMessages.LoadUndelivered(ctx)
	if err != nil {
		return nil, fmt.Errorf("load undelivered private messages: %w", err)
	}

	index := make(map[string]*backlog)
	var ordered []*backlog
	get := func(tenantID, personID string) *backlog {
		key := tenantID + ":" + personID
		b, ok := index[key]
		if !ok {
			b = &backlog{tenantID: tenantID, personID: personID}
			index[key] = b
			ordered = append(ordered, b)
		}
		return b
	}

	for _, n := range notifications {
		b := get(n.TenantID, n.PersonID)
		b.notifications = append(b.notifications, n)
	}
	for _, pm := range privateMessages {
		b := get(pm.TenantID, pm.NotifyPersonID)
		b.privateMessages = append(b.privateMessages, pm)
	}
	return ordered, nil
}

type dueDigest struct {
	*backlog
	pref  *domain.NotificationPreference
	email string
}

// triage applies preferences and resolves addresses for the people due this pass.
func (s *DigestScheduler) triage(ctx context.Context, frequency domain.EmailFrequency, backlogs []*backlog, summary *Summary) ([]dueDigest, error) {
	byTenant := make(map[string][]*backlog)
	var tenants []string
	for _, b := range backlogs {
		if _, ok := byTenant[b.tenantID]; !ok {
			tenants = append(tenants, b.tenantID)
		}
		byTenant[b.tenantID] = append(byTenant[b.tenantID], b)
	}

	var due []dueDigest
	for _, tenantID := range tenants {
		group := byTenant[tenantID]
		personIDs := make([]string, len(group))
		for i, b := range group {
			personIDs[i] = b.personID
		}

		prefs, err := s.preferences.GetMany(ctx, tenantID, personIDs)
		if err != nil {
			return nil, err
		}

		var matched []dueDigest
		for _, b := range group {
			pref := prefs[b.personID]
			switch {
			case pref.EmailFrequency == domain.EmailNever:
				if err := s.markAll(ctx, b, domain.DeliveryNone); err != nil {
					return nil, err
				}
				summary.Suppressed++
			case s.opts.MaxFailures > 0 && pref.FailedDigests >= s.opts.MaxFailures:
				s.logger.Warn("suppressing backlog after repeated digest failures",
					zap.String("tenant_id", tenantID),
					zap.String("person_id", b.personID),
					zap.Int("failures", pref.FailedDigests))
				if err := s.markAll(ctx, b, domain.DeliveryNone); err != nil {
					return nil, err
				}
				summary.Suppressed++
			case pref.EmailFrequency == frequency:
				matched = append(matched, dueDigest{backlog: b, pref: pref})
			case s.opts.DeferMismatched:
				summary.Deferred++
			default:
				if err := s.markAll(ctx, b, domain.DeliveryNone); err != nil {
					return nil, err
				}
				summary.Suppressed++
			}
		}
		if len(matched) == 0 {
			continue
		}

		ids := make([]string, len(matched))
		for i, m := range matched {
			ids[i] = m.personID
		}
		emails, err := s.people.EmailsForIDs(ctx, tenantID, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve emails: %w", err)
		}
		addr := make(map[string]string, len(emails))
		for _, e := range emails {
			addr[e.ID] = e.Email
		}

		for _, m := range matched {
			m.email = addr[m.personID]
			if m.email == "" {
				summary.NoAddress++
				s.logger.Debug("no email address", zap.String("tenant_id", tenantID), zap.String("person_id", m.personID))
				continue
			}
			due = append(due, m)
		}
	}
	return due, nil
}

func (s *DigestScheduler) sendAll(ctx context.Context, frequency domain.EmailFrequency, due []dueDigest, summary *Summary) error {
	composed := make([]Composed, len(due))
	for i, d := range due {
		c, err := s.composer.Compose(d.notifications, d.privateMessages)
		if err != nil {
			return err
		}
		composed[i] = c
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)

	for i, d := range due {
		g.Go(func() error {
			sendErr := s.send(ctx, d.email, composed[i])
			metrics.DigestEmails.WithLabelValues(string(frequency), metrics.Status(sendErr == nil)).Inc()

			if err := s.settle(ctx, d, sendErr); err != nil {
				return err
			}

			mu.Lock()
			if sendErr == nil {
				summary.Sent++
			} else {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (s *DigestScheduler) send(ctx context.Context, to string, composed Composed) error {
	if s.opts.EmailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.EmailTimeout)
		defer cancel()
	}
	return s.sender.Send(ctx, Email{
		From:      s.opts.From,
		To:        to,
		AppName:   s.opts.AppName,
		ReplyLink: composed.ReplyLink,
		Subject:   composed.Subject,
		HTMLBody:  composed.HTML,
		Template:  composed.Template,
	})
}

// settle records the outcome of one digest: items are marked only on
// success, every item gets a log row and the failure counter moves.
func (s *DigestScheduler) settle(ctx context.Context, d dueDigest, sendErr error) error {
	if sendErr == nil {
		if err := s.markAll(ctx, d.backlog, domain.DeliveryEmail); err != nil {
			return err
		}
	} else {
		s.logger.Warn("digest email failed",
			zap.String("tenant_id", d.tenantID),
			zap.String("person_id", d.personID),
			zap.Error(sendErr))
	}

	var errs []error
	for _, n := range d.notifications {
		errs = append(errs, s.record(ctx, d, n.ContentType, n.ContentID, sendErr))
	}
	for _, pm := range d.privateMessages {
		errs = append(errs, s.record(ctx, d, domain.ContentTypePrivateMessage, pm.ConversationID, sendErr))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	failures, err := s.preferences.RecordDigestResult(ctx, d.pref, sendErr == nil)
	if err != nil {
		return err
	}
	if s.opts.MaxFailures > 0 && failures == s.opts.MaxFailures {
		s.logger.Warn("digest failure limit reached, backlog will be suppressed",
			zap.String("tenant_id", d.tenantID),
			zap.String("person_id", d.personID))
	}
	return nil
}

func (s *DigestScheduler) record(ctx context.Context, d dueDigest, contentType, contentID string, sendErr error) error {
	return s.log.Log(ctx, deliverylog.Entry{
		TenantID:    d.tenantID,
		PersonID:    d.personID,
		ContentType: contentType,
		ContentID:   contentID,
		Method:      domain.DeliveryEmail,
		Address:     d.email,
		Err:         sendErr,
	})
}

func (s *DigestScheduler) markAll(ctx context.Context, b *backlog, method domain.DeliveryMethod) error {
	if err := s.notifications.UpdateDeliveryMethods(ctx, b.tenantID, b.notificationIDs(), method); err != nil {
		return fmt.Errorf("mark notifications %s: %w", method, err)
	}
	if err := s.privateMessages.UpdateDeliveryMethods(ctx, b.tenantID, b.privateMessageIDs(), method); err != nil {
		return fmt.Errorf("mark private messages %s: %w", method, err)
	}
	return nil
}
