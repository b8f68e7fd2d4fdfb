package mailer

import (
	"context"
	"fmt"

	"notify-backend/internal/notification/scheduler"

	"gopkg.in/gomail.v2"
)

// Dialer is the part of gomail.Dialer the mailer uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends email over SMTP.
type Mailer struct {
	dialer Dialer
}

// New creates an SMTP mailer. Port 465 uses implicit TLS, others STARTTLS.
func New(host string, port int, username, password string) *Mailer {
	return &Mailer{dialer: gomail.NewDialer(host, port, username, password)}
}

// NewWithDialer creates a mailer over any dialer.
func NewWithDialer(d Dialer) *Mailer {
	return &Mailer{dialer: d}
}

// Send implements scheduler.EmailSender. gomail has no context support, so
// the dial runs in the background and ctx only bounds how long Send waits.
func (m *Mailer) Send(ctx context.Context, email scheduler.Email) error {
	msg := newMessage(email)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", email.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", email.To, ctx.Err())
	}
}

func newMessage(email scheduler.Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", email.From, email.AppName)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	if email.ReplyLink != "" {
		msg.SetHeader("List-Unsubscribe", "<"+email.ReplyLink+">")
	}
	if email.Template != "" {
		msg.SetHeader("X-Template", email.Template)
	}
	msg.SetBody("text/html", email.HTMLBody)
	return msg
}
