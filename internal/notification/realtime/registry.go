package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"notify-backend/internal/notification/domain"

	"github.com/google/uuid"
)

// Registry tracks which live channels are open per tenant and person.
type Registry interface {
	// Register records a live channel for a person. A person may hold many.
	Register(ctx context.Context, tenantID, personID, channelID string) (*domain.Connection, error)

	// Unregister drops every record for the channel. Unknown channels are a no-op.
	Unregister(ctx context.Context, channelID string) error

	// Lookup returns the live channel handles of a person; empty means not reachable.
	Lookup(ctx context.Context, tenantID, personID string) ([]string, error)
}

// AttendanceFunc is told which connections went away so attendance derived
// from them can be recomputed.
type AttendanceFunc func(ctx context.Context, removed []domain.Connection)

func personKey(tenantID, personID string) string {
	return tenantID + ":" + personID
}

// MemoryRegistry keeps connections in process memory. It suits a single
// instance deployment.
type MemoryRegistry struct {
	mu           sync.RWMutex
	byChannel    map[string][]domain.Connection
	byPerson     map[string]map[string]struct{} // personKey -> set of channel ids
	onAttendance AttendanceFunc
	now          func() time.Time
}

func NewMemoryRegistry(onAttendance AttendanceFunc) *MemoryRegistry {
	return &MemoryRegistry{
		byChannel:    make(map[string][]domain.Connection),
		byPerson:     make(map[string]map[string]struct{}),
		onAttendance: onAttendance,
		now:          time.Now,
	}
}

func (r *MemoryRegistry) Register(_ context.Context, tenantID, personID, channelID string) (*domain.Connection, error) {
	conn := domain.Connection{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		PersonID:  personID,
		ChannelID: channelID,
		JoinedAt:  r.now(),
	}
	key := personKey(tenantID, personID)

	r.mu.Lock()
	r.byChannel[channelID] = append(r.byChannel[channelID], conn)
	if _, ok := r.byPerson[key]; !ok {
		r.byPerson[key] = make(map[string]struct{})
	}
	r.byPerson[key][channelID] = struct{}{}
	r.mu.Unlock()

	return &conn, nil
}

func (r *MemoryRegistry) Unregister(ctx context.Context, channelID string) error {
	r.mu.Lock()
	removed, ok := r.byChannel[channelID]
	if ok {
		delete(r.byChannel, channelID)
		for _, c := range removed {
			key := personKey(c.TenantID, c.PersonID)
			if set, ok := r.byPerson[key]; ok {
				delete(set, channelID)
				if len(set) == 0 {
					delete(r.byPerson, key)
				}
			}
		}
	}
	r.mu.Unlock()

	if len(removed) > 0 && r.onAttendance != nil {
		r.onAttendance(ctx, removed)
	}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, tenantID, personID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byPerson[personKey(tenantID, personID)]
	handles := make([]string, 0, len(set))
	for ch := range set {
		handles = append(handles, ch)
	}
	sort.Strings(handles)
	return handles, nil
}
