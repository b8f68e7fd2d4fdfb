package fcm

import (
	"context"
	"fmt"
	"regexp"

	"notify-backend/internal/notification/push"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// maxMulticast is the most tokens FCM accepts in one multicast.
const maxMulticast = 500

// Registration tokens are long opaque strings of url-safe characters.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]{32,4096}$`)

// Multicaster is the part of the messaging client the sender uses.
type Multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Client wraps Firebase Cloud Messaging functionality
type Client struct {
	messagingClient Multicaster
}

// NewClient creates a new FCM client using the provided credentials file
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &Client{messagingClient: messagingClient}, nil
}

// NewWithMulticaster creates a client over an existing messaging client.
func NewWithMulticaster(m Multicaster) *Client {
	return &Client{messagingClient: m}
}

// ValidToken implements push.Sender.
func (c *Client) ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// SendBulk implements push.Sender. Tokens are sent in multicasts of up to 500
// and one ticket is returned per token, in order. A multicast that fails after
// an earlier one went out ends the send with transient tickets for the rest.
func (c *Client) SendBulk(ctx context.Context, tokens []string, msg push.Message) ([]push.Ticket, error) {
	tickets := make([]push.Ticket, 0, len(tokens))
	for start := 0; start < len(tokens); start += maxMulticast {
		end := min(start+maxMulticast, len(tokens))
		chunk := tokens[start:end]

		message := &messaging.MulticastMessage{
			Tokens: chunk,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
			Webpush: &messaging.WebpushConfig{
				Notification: &messaging.WebpushNotification{
					Title: msg.Title,
					Body:  msg.Body,
					Icon:  "/icon-192.svg",
				},
			},
		}

		response, err := c.messagingClient.SendEachForMulticast(ctx, message)
		if err != nil {
			err = fmt.Errorf("failed to send FCM multicast message: %w", err)
			if start == 0 {
				return nil, err
			}
			return push.PadTickets(tickets, len(tokens), err.Error()), nil
		}

		for i := range chunk {
			if i >= len(response.Responses) || response.Responses[i] == nil {
				tickets = append(tickets, push.Ticket{Status: push.TicketError, Message: "no response", Transient: true})
				continue
			}
			resp := response.Responses[i]
			if resp.Success {
				tickets = append(tickets, push.Ticket{Status: push.TicketOK})
				continue
			}
			reason := "send failed"
			if resp.Error != nil {
				reason = resp.Error.Error()
			}
			tickets = append(tickets, push.Ticket{Status: push.TicketError, Message: reason})
		}
	}
	return tickets, nil
}
