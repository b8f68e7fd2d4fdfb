package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"notify-backend/internal/notification/push"
)

const (
	DefaultURL = "https://exp.host/--/api/v2/push/send"

	// maxBatch is the most messages Expo accepts per request.
	maxBatch = 100
)

var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[.+\]$`)

// Client talks to the Expo push service.
type Client struct {
	url         string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates an Expo client. accessToken is optional and only needed
// when enhanced push security is on for the project.
func NewClient(accessToken string) *Client {
	return &Client{
		url:         DefaultURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithURL points the client at another endpoint.
func (c *Client) WithURL(url string) *Client {
	c.url = url
	return c
}

type message struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type response struct {
	Data   []ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ValidToken implements push.Sender.
func (c *Client) ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// SendBulk implements push.Sender. Tokens are sent in chunks of 100 and the
// tickets are returned in token order. A chunk that fails after an earlier one
// went out ends the send; its tokens and the rest get transient tickets.
func (c *Client) SendBulk(ctx context.Context, tokens []string, msg push.Message) ([]push.Ticket, error) {
	tickets := make([]push.Ticket, 0, len(tokens))
	for start := 0; start < len(tokens); start += maxBatch {
		end := min(start+maxBatch, len(tokens))

		batch := make([]message, 0, end-start)
		for _, token := range tokens[start:end] {
			batch = append(batch, message{To: token, Title: msg.Title, Body: msg.Body, Data: msg.Data, Sound: "default"})
		}

		got, err := c.send(ctx, batch)
		if err != nil {
			if start == 0 {
				return nil, err
			}
			return push.PadTickets(tickets, len(tokens), err.Error()), nil
		}
		if len(got) > len(batch) {
			got = got[:len(batch)]
		}
		tickets = push.PadTickets(append(tickets, got...), end, "no ticket")
	}
	return tickets, nil
}

func (c *Client) send(ctx context.Context, batch []message) ([]push.Ticket, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal expo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read expo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expo returned %d: %s", resp.StatusCode, raw)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode expo response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("expo error %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)
	}

	out := make([]push.Ticket, len(parsed.Data))
	for i, t := range parsed.Data {
		if t.Status == "ok" {
			out[i] = push.Ticket{Status: push.TicketOK}
			continue
		}
		reason := t.Details.Error
		if reason == "" {
			reason = t.Message
		}
		out[i] = push.Ticket{Status: push.TicketError, Message: reason}
	}
	return out, nil
}
