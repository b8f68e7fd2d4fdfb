package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"notify-backend/internal/notification/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	personSetPrefix   = "notify:conn:person:"
	channelHashPrefix = "notify:conn:channel:"
	ownerKeyPrefix    = "notify:conn:owner:"

	// connectionTTL bounds how long records of a crashed instance linger.
	connectionTTL = 24 * time.Hour
)

// RedisRegistry shares live connections across instances. Each person has a
// set of channel ids and each channel a hash of connection records plus the
// id of the instance holding the socket.
type RedisRegistry struct {
	rdb          *redis.Client
	instanceID   string
	onAttendance AttendanceFunc
	now          func() time.Time
}

// NewRedisRegistry creates the registry of one instance. instanceID must be
// unique per process.
func NewRedisRegistry(rdb *redis.Client, instanceID string, onAttendance AttendanceFunc) *RedisRegistry {
	return &RedisRegistry{
		rdb:          rdb,
		instanceID:   instanceID,
		onAttendance: onAttendance,
		now:          time.Now,
	}
}

// InstanceID identifies the process whose sockets this registry records.
func (r *RedisRegistry) InstanceID() string {
	return r.instanceID
}

// Owner returns the instance holding the socket of a handle, or "" when the
// handle is unknown.
func (r *RedisRegistry) Owner(ctx context.Context, channelID string) (string, error) {
	owner, err := r.rdb.Get(ctx, ownerKeyPrefix+channelID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load owner of %s: %w", channelID, err)
	}
	return owner, nil
}

func (r *RedisRegistry) Register(ctx context.Context, tenantID, personID, channelID string) (*domain.Connection, error) {
	conn := domain.Connection{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		PersonID:  personID,
		ChannelID: channelID,
		JoinedAt:  r.now(),
	}
	payload, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("marshal connection: %w", err)
	}

	personSet := personSetPrefix + personKey(tenantID, personID)
	channelHash := channelHashPrefix + channelID

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, channelHash, conn.ID, payload)
	pipe.Expire(ctx, channelHash, connectionTTL)
	pipe.Set(ctx, ownerKeyPrefix+channelID, r.instanceID, connectionTTL)
	pipe.SAdd(ctx, personSet, channelID)
	pipe.Expire(ctx, personSet, connectionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("register connection: %w", err)
	}
	return &conn, nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, channelID string) error {
	channelHash := channelHashPrefix + channelID

	records, err := r.rdb.HGetAll(ctx, channelHash).Result()
	if err != nil {
		return fmt.Errorf("load channel %s: %w", channelID, err)
	}
	if len(records) == 0 {
		return nil
	}

	// Only the caller whose DEL removed the hash reports the departure.
	deleted, err := r.rdb.Del(ctx, channelHash).Result()
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	if deleted == 0 {
		return nil
	}

	removed := make([]domain.Connection, 0, len(records))
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, ownerKeyPrefix+channelID)
	for _, raw := range records {
		var c domain.Connection
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		removed = append(removed, c)
		pipe.SRem(ctx, personSetPrefix+personKey(c.TenantID, c.PersonID), channelID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unlink channel %s: %w", channelID, err)
	}

	if len(removed) > 0 && r.onAttendance != nil {
		r.onAttendance(ctx, removed)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, tenantID, personID string) ([]string, error) {
	handles, err := r.rdb.SMembers(ctx, personSetPrefix+personKey(tenantID, personID)).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup connections: %w", err)
	}
	sort.Strings(handles)
	return handles, nil
}
