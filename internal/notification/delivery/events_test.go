package delivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notify-backend/internal/notification/delivery"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/usecase"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type recordingFanout struct {
	fakeNotifier
	err      error
	messages []domain.Message
	senders  []string
}

func (f *recordingFanout) CreateNotifications(ctx context.Context, req usecase.NotifyRequest) ([]*domain.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fakeNotifier.CreateNotifications(ctx, req)
}

func (f *recordingFanout) CheckShouldNotify(_ context.Context, _ domain.Conversation, msg domain.Message, sender string) error {
	f.messages = append(f.messages, msg)
	f.senders = append(f.senders, sender)
	return f.err
}

func TestEventHandler_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		malformed bool
		check     func(t *testing.T, f *recordingFanout)
	}{
		{
			name:    "notification",
			payload: `{"type":"notification","notification":{"tenantId":"t1","personIds":["p1"],"contentType":"notification","contentId":"n1","message":"hi"}}`,
			check: func(t *testing.T, f *recordingFanout) {
				if len(f.got) != 1 || f.got[0].PersonIDs[0] != "p1" {
					t.Fatalf("requests = %+v", f.got)
				}
			},
		},
		{
			name:    "conversation message defaults sender to author",
			payload: `{"type":"conversationMessage","conversation":{"id":"c1","tenantId":"t1","contentType":"group","contentId":"g1","title":"Youth"},"message":{"id":"m1","personId":"p9","content":"yo"}}`,
			check: func(t *testing.T, f *recordingFanout) {
				if len(f.senders) != 1 || f.senders[0] != "p9" {
					t.Fatalf("senders = %v", f.senders)
				}
			},
		},
		{name: "not json", payload: `{`, malformed: true},
		{name: "unknown type", payload: `{"type":"weather"}`, malformed: true},
		{name: "notification without content", payload: `{"type":"notification","notification":{"tenantId":"t1"}}`, malformed: true},
		{name: "message without conversation", payload: `{"type":"conversationMessage","message":{"id":"m1"}}`, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &recordingFanout{}
			h := delivery.NewEventHandler(f, zap.NewNop())

			err := h.Handle(t.Context(), []byte(tt.payload))
			if tt.malformed {
				if !errors.Is(err, delivery.ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			tt.check(t, f)
		})
	}
}

func TestEventHandler_PersistenceErrorIsNotMalformed(t *testing.T) {
	t.Parallel()
	f := &recordingFanout{err: errors.New("db down")}
	h := delivery.NewEventHandler(f, zap.NewNop())

	err := h.Handle(t.Context(), []byte(`{"type":"notification","notification":{"tenantId":"t1","personIds":["p1"],"contentType":"notification","contentId":"n1"}}`))
	if err == nil || errors.Is(err, delivery.ErrMalformed) {
		t.Fatalf("err = %v, want a retryable error", err)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.pending[0]
	r.pending = r.pending[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// flakyHandler fails the first attempt of every payload.
type flakyHandler struct {
	mu   sync.Mutex
	seen map[string]int
}

func (h *flakyHandler) Handle(_ context.Context, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if string(payload) == "bad" {
		return delivery.ErrMalformed
	}
	h.seen[string(payload)]++
	if h.seen[string(payload)] == 1 {
		return errors.New("transient")
	}
	return nil
}

func TestKafkaConsumer_CommitsAfterHandling(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	reader := &fakeReader{
		pending: []kafka.Message{
			{Offset: 1, Value: []byte("bad")},
			{Offset: 2, Value: []byte("ok")},
		},
		cancel: cancel,
	}
	handler := &flakyHandler{seen: map[string]int{}}
	consumer := delivery.NewKafkaConsumerWithReader(reader, handler, zap.NewNop())

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(reader.committed) != 2 || reader.committed[0] != 1 || reader.committed[1] != 2 {
		t.Fatalf("committed = %v, want [1 2]", reader.committed)
	}
	if handler.seen["ok"] != 2 {
		t.Fatalf("attempts = %d, want 2", handler.seen["ok"])
	}
}
