package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/preference"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/notification/scheduler"
	"notify-backend/internal/people"
	"notify-backend/internal/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []scheduler.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, email scheduler.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

type env struct {
	db            *gorm.DB
	notifications repository.NotificationRepository
	private       repository.PrivateMessageRepository
	logs          repository.DeliveryLogRepository
	prefs         *preference.Store
	sender        *fakeSender
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDB(t)
	return &env{
		db:            db,
		notifications: repository.NewNotificationRepository(db),
		private:       repository.NewPrivateMessageRepository(db),
		logs:          repository.NewDeliveryLogRepository(db),
		prefs:         preference.NewStore(repository.NewPreferenceRepository(db)),
		sender:        &fakeSender{},
	}
}

func (e *env) scheduler(t *testing.T, opts scheduler.Options) *scheduler.DigestScheduler {
	t.Helper()
	return e.schedulerWith(t, opts, newComposer(t))
}

func newComposer(t *testing.T) *scheduler.Composer {
	t.Helper()
	composer, err := scheduler.NewComposer("Grace Church", "https://app.example.com")
	if err != nil {
		t.Fatalf("composer: %v", err)
	}
	return composer
}

func (e *env) schedulerWith(t *testing.T, opts scheduler.Options, composer scheduler.DigestComposer) *scheduler.DigestScheduler {
	t.Helper()
	opts.From = "noreply@example.com"
	opts.AppName = "Grace Church"
	return scheduler.NewDigestScheduler(
		e.notifications,
		e.private,
		e.prefs,
		people.NewPersonRepository(e.db),
		e.sender,
		deliverylog.NewLogger(e.logs, zap.NewNop()),
		composer,
		opts,
		zap.NewNop(),
	)
}

func (e *env) person(t *testing.T, id, email, frequency string) {
	t.Helper()
	if err := e.db.Create(&people.Person{ID: id, TenantID: "t1", Email: email}).Error; err != nil {
		t.Fatalf("seed person: %v", err)
	}
	if _, err := e.prefs.Update(t.Context(), "t1", id, true, frequency); err != nil {
		t.Fatalf("seed preference: %v", err)
	}
}

func (e *env) notification(t *testing.T, personID, contentType, message string) *domain.Notification {
	t.Helper()
	n := domain.NewNotification(uuid.New().String(), "t1", personID,
		contentType, "c-"+message, message, "", time.Now())
	if err := e.notifications.Create(t.Context(), n); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return n
}

func (e *env) privateMessage(t *testing.T, from, to, conversationID string) {
	t.Helper()
	pm := &domain.PrivateMessage{TenantID: "t1", FromPersonID: from, ToPersonID: to, ConversationID: conversationID, NotifyPersonID: to}
	if err := e.private.Save(t.Context(), pm); err != nil {
		t.Fatalf("seed private message: %v", err)
	}
}

// methods returns the delivery method of every notification and private message of a person.
func (e *env) methods(t *testing.T, personID string) []domain.DeliveryMethod {
	t.Helper()
	var out []domain.DeliveryMethod
	var ns []domain.Notification
	if err := e.db.Where("person_id = ?", personID).Find(&ns).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	for _, n := range ns {
		out = append(out, n.DeliveryMethod)
	}
	var pms []domain.PrivateMessage
	if err := e.db.Where("to_person_id = ?", personID).Find(&pms).Error; err != nil {
		t.Fatalf("load private messages: %v", err)
	}
	for _, pm := range pms {
		out = append(out, pm.DeliveryMethod)
	}
	return out
}

func assertAll(t *testing.T, got []domain.DeliveryMethod, want domain.DeliveryMethod, count int) {
	t.Helper()
	if len(got) != count {
		t.Fatalf("got %d items, want %d", len(got), count)
	}
	for _, m := range got {
		if m != want {
			t.Errorf("got methods %v, want all %q", got, want)
			return
		}
	}
}

func TestDigestBatchesPerPerson(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.person(t, "p1", "p1@example.com", "daily")
	for i := 0; i < 3; i++ {
		e.notification(t, "p1", domain.ContentTypeNotification, fmt.Sprintf("New message: Group %d", i))
	}
	e.privateMessage(t, "p2", "p1", "conv-a")
	e.privateMessage(t, "p3", "p1", "conv-b")

	summary, err := e.scheduler(t, scheduler.Options{}).Run(t.Context(), domain.EmailDaily)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Sent != 1 {
		t.Errorf("summary %+v, want one sent", summary)
	}

	if len(e.sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(e.sender.sent))
	}
	email := e.sender.sent[0]
	if email.To != "p1@example.com" || email.Subject != "You have 3 new notifications and 2 new messages" {
		t.Errorf("got to=%q subject=%q", email.To, email.Subject)
	}
	if !strings.Contains(email.HTMLBody, "Group 2") {
		t.Error("digest body should list the notifications")
	}

	assertAll(t, e.methods(t, "p1"), domain.DeliveryEmail, 5)

	var logs []domain.DeliveryLog
	if err := e.db.Where("person_id = ? AND delivery_method = ?", "p1", domain.DeliveryEmail).Find(&logs).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(logs) != 5 {
		t.Errorf("got %d email log rows, want 5", len(logs))
	}
}

func TestDigestNeverSuppresses(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.person(t, "p1", "p1@example.com", "never")
	e.notification(t, "p1", domain.ContentTypeNotification, "a")
	e.notification(t, "p1", domain.ContentTypeNotification, "b")

	for _, freq := range []domain.EmailFrequency{domain.EmailIndividual, domain.EmailDaily} {
		if _, err := e.scheduler(t, scheduler.Options{}).Run(t.Context(), freq); err != nil {
			t.Fatalf("run %s: %v", freq, err)
		}
	}
	if len(e.sender.sent) != 0 {
		t.Errorf("sent %d emails to a never person", len(e.sender.sent))
	}
	assertAll(t, e.methods(t, "p1"), domain.DeliveryNone, 2)
}

func TestDigestMismatchedFrequency(t *testing.T) {
	t.Parallel()

	t.Run("marked none for the pass", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.person(t, "p1", "p1@example.com", "daily")
		e.notification(t, "p1", domain.ContentTypeNotification, "a")

		summary, err := e.scheduler(t, scheduler.Options{}).Run(t.Context(), domain.EmailIndividual)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if summary.Suppressed != 1 || len(e.sender.sent) != 0 {
			t.Errorf("summary %+v, sent %d", summary, len(e.sender.sent))
		}
		assertAll(t, e.methods(t, "p1"), domain.DeliveryNone, 1)
	})

	t.Run("deferred when configured", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.person(t, "p1", "p1@example.com", "daily")
		e.notification(t, "p1", domain.ContentTypeNotification, "a")

		opts := scheduler.Options{DeferMismatched: true}
		summary, err := e.scheduler(t, opts).Run(t.Context(), domain.EmailIndividual)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if summary.Deferred != 1 || len(e.sender.sent) != 0 {
			t.Errorf("summary %+v, sent %d", summary, len(e.sender.sent))
		}
		assertAll(t, e.methods(t, "p1"), domain.DeliveryPending, 1)

		if _, err := e.scheduler(t, opts).Run(t.Context(), domain.EmailDaily); err != nil {
			t.Fatalf("run daily: %v", err)
		}
		assertAll(t, e.methods(t, "p1"), domain.DeliveryEmail, 1)
	})
}

func TestDigestSendFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.sender.err = errors.New("smtp: 550 mailbox unavailable")
	e.person(t, "p1", "p1@example.com", "individual")
	n := e.notification(t, "p1", domain.ContentTypeNotification, "a")
	e.privateMessage(t, "p2", "p1", "conv-a")

	s := e.scheduler(t, scheduler.Options{MaxFailures: 2})

	summary, err := s.Run(t.Context(), domain.EmailIndividual)
	if err != nil {
		t.Fatalf("send failures must not surface, got %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary %+v, want one failure", summary)
	}
	assertAll(t, e.methods(t, "p1"), domain.DeliveryPending, 2)

	logs, err := e.logs.LoadForContent(t.Context(), "t1", domain.ContentTypeNotification, n.ContentID)
	if err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Success || logs[0].ErrorMessage == "" {
		t.Errorf("got %+v, want one failure row", logs)
	}

	// Second failure reaches the limit; the third pass gives up on the backlog.
	if _, err := s.Run(t.Context(), domain.EmailIndividual); err != nil {
		t.Fatalf("second run: %v", err)
	}
	summary, err = s.Run(t.Context(), domain.EmailIndividual)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if summary.Suppressed != 1 {
		t.Errorf("summary %+v, want the backlog suppressed after reaching the failure limit", summary)
	}
	assertAll(t, e.methods(t, "p1"), domain.DeliveryNone, 2)
}

func TestDigestRecoversAfterPreferenceUpdate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.sender.err = errors.New("smtp: 550 mailbox unavailable")
	e.person(t, "p1", "p1@example.com", "individual")
	e.notification(t, "p1", domain.ContentTypeNotification, "a")

	s := e.scheduler(t, scheduler.Options{MaxFailures: 1})
	if _, err := s.Run(t.Context(), domain.EmailIndividual); err != nil {
		t.Fatalf("failing run: %v", err)
	}
	pref, err := e.prefs.Get(t.Context(), "t1", "p1")
	if err != nil {
		t.Fatalf("get preference: %v", err)
	}
	if pref.FailedDigests != 1 {
		t.Fatalf("failed digests = %d, want 1", pref.FailedDigests)
	}

	// The person fixes their settings and the provider recovers.
	e.sender.mu.Lock()
	e.sender.err = nil
	e.sender.mu.Unlock()
	if _, err := e.prefs.Update(t.Context(), "t1", "p1", true, "individual"); err != nil {
		t.Fatalf("update preference: %v", err)
	}
	e.notification(t, "p1", domain.ContentTypeNotification, "b")

	summary, err := s.Run(t.Context(), domain.EmailIndividual)
	if err != nil {
		t.Fatalf("recovered run: %v", err)
	}
	if summary.Sent != 1 || summary.Suppressed != 0 || len(e.sender.sent) != 1 {
		t.Errorf("summary %+v, sent %d; want one email after the preference update", summary, len(e.sender.sent))
	}
	assertAll(t, e.methods(t, "p1"), domain.DeliveryEmail, 2)
}

// failingComposer renders like the real composer but fails for one person.
type failingComposer struct {
	*scheduler.Composer
	person string
}

func (c failingComposer) Compose(notifications []*domain.Notification, privateMessages []*domain.PrivateMessage) (scheduler.Composed, error) {
	for _, n := range notifications {
		if n.PersonID == c.person {
			return scheduler.Composed{}, errors.New("render notification email: template broke")
		}
	}
	return c.Composer.Compose(notifications, privateMessages)
}

func TestDigestComposeFailureSendsNothing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	for i := range 6 {
		id := fmt.Sprintf("p%d", i)
		e.person(t, id, id+"@example.com", "individual")
		e.notification(t, id, domain.ContentTypeNotification, "hello "+id)
	}

	s := e.schedulerWith(t, scheduler.Options{Concurrency: 2}, failingComposer{Composer: newComposer(t), person: "p3"})
	if _, err := s.Run(t.Context(), domain.EmailIndividual); err == nil {
		t.Fatal("expected the compose error to be returned")
	}

	e.sender.mu.Lock()
	sent := len(e.sender.sent)
	e.sender.mu.Unlock()
	if sent != 0 {
		t.Errorf("sent %d emails, want none once composing failed", sent)
	}
	for i := range 6 {
		assertAll(t, e.methods(t, fmt.Sprintf("p%d", i)), domain.DeliveryPending, 1)
	}
}

func TestDigestSingleAssignment(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.person(t, "p1", "p1@example.com", "individual")
	e.notification(t, "p1", domain.ContentTypeAssignment, "You have been assigned to serve as Greeter on Sunday")

	if _, err := e.scheduler(t, scheduler.Options{}).Run(t.Context(), domain.EmailIndividual); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(e.sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(e.sender.sent))
	}
	email := e.sender.sent[0]
	if email.Subject != "Volunteer Assignment: Greeter" || email.Template != "assignment" {
		t.Errorf("got subject=%q template=%q", email.Subject, email.Template)
	}
	if !strings.Contains(email.HTMLBody, "<strong>Greeter</strong>") {
		t.Error("assignment email should name the role")
	}
}

func TestDigestWithoutAddress(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.person(t, "p1", "", "daily")
	e.notification(t, "p1", domain.ContentTypeNotification, "a")

	summary, err := e.scheduler(t, scheduler.Options{}).Run(t.Context(), domain.EmailDaily)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.NoAddress != 1 || len(e.sender.sent) != 0 {
		t.Errorf("summary %+v, sent %d", summary, len(e.sender.sent))
	}
	assertAll(t, e.methods(t, "p1"), domain.DeliveryPending, 1)
}

func TestDigestRejectsUnknownPass(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	if _, err := e.scheduler(t, scheduler.Options{}).Run(t.Context(), domain.EmailNever); err == nil {
		t.Error("expected an error for a never pass")
	}
}
