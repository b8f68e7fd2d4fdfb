package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"notify-backend/internal/notification/scheduler"

	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Service sends digest emails through the Gmail API as the account that
// granted the refresh token.
type Service struct {
	srv *gmail.Service
}

// NewService creates a Gmail sender from OAuth client credentials and a
// long-lived refresh token.
func NewService(ctx context.Context, clientID, clientSecret, refreshToken string) (*Service, error) {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope},
	}

	// Expired on purpose so the first call refreshes.
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now(),
	}
	client := oauth2.NewClient(ctx, config.TokenSource(ctx, token))

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &Service{srv: srv}, nil
}

// Send implements scheduler.EmailSender.
func (s *Service) Send(ctx context.Context, email scheduler.Email) error {
	raw, err := buildMessage(email, time.Now())
	if err != nil {
		return err
	}

	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}
	if _, err := s.srv.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to send message: %w", err)
	}
	return nil
}

// buildMessage renders a single-part HTML message.
func buildMessage(email scheduler.Email, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: email.AppName, Address: email.From}})
	h.SetAddressList("To", []*mail.Address{{Address: email.To}})
	h.SetSubject(email.Subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	if email.ReplyLink != "" {
		h.Set("List-Unsubscribe", "<"+email.ReplyLink+">")
	}
	if email.Template != "" {
		h.Set("X-Template", email.Template)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := w.Write([]byte(email.HTMLBody)); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}
