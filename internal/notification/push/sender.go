package push

import "context"

// Ticket statuses reported per token.
const (
	TicketOK    = "ok"
	TicketError = "error"
)

// Ticket is a provider's outcome for one token. Transient marks a failure
// where the provider never judged the token, so it must not be pruned.
type Ticket struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Transient bool   `json:"transient,omitempty"`
}

// OK reports whether the provider accepted the message for this token.
func (t Ticket) OK() bool {
	return t.Status == TicketOK
}

// PadTickets extends tickets to n entries with transient error tickets.
func PadTickets(tickets []Ticket, n int, reason string) []Ticket {
	for len(tickets) < n {
		tickets = append(tickets, Ticket{Status: TicketError, Message: reason, Transient: true})
	}
	return tickets
}

// Message is the content of a push notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sender is a push provider. SendBulk returns one ticket per token, in the
// order the tokens were given. It returns an error only when nothing was sent;
// a batch failing after earlier batches went out yields transient tickets.
type Sender interface {
	SendBulk(ctx context.Context, tokens []string, msg Message) ([]Ticket, error)

	// ValidToken reports whether a token has the provider's expected format
	ValidToken(token string) bool
}
