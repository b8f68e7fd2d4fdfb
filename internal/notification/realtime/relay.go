package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	relayChannelPrefix = "notify:socket:relay:"
	instanceKeyPrefix  = "notify:instance:"

	instanceHeartbeat = 10 * time.Second
	instanceTTL       = 3 * instanceHeartbeat
)

type relayEnvelope struct {
	ChannelID string          `json:"channelId"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisRelay is a Transport for multi-instance deployments. Handles owned by
// this instance are written directly; the rest are published on the owning
// instance's relay channel and picked up by its Listen. A handle whose owner
// is gone reports ErrUnknownChannel so the caller can prune it.
type RedisRelay struct {
	local    *Hub
	registry *RedisRegistry
	rdb      *redis.Client
	logger   *zap.Logger
}

func NewRedisRelay(local *Hub, registry *RedisRegistry, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		local:    local,
		registry: registry,
		rdb:      registry.rdb,
		logger:   logger.Named("relay"),
	}
}

func relayChannel(instanceID string) string {
	return relayChannelPrefix + instanceID
}

func (r *RedisRelay) PushToChannel(ctx context.Context, channelID string, payload any) error {
	if r.local.Has(channelID) {
		return r.local.PushToChannel(ctx, channelID, payload)
	}

	owner, err := r.registry.Owner(ctx, channelID)
	if err != nil {
		return err
	}
	if owner == "" || owner == r.registry.InstanceID() {
		return ErrUnknownChannel
	}
	alive, err := r.rdb.Exists(ctx, instanceKeyPrefix+owner).Result()
	if err != nil {
		return fmt.Errorf("check instance %s: %w", owner, err)
	}
	if alive == 0 {
		return ErrUnknownChannel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env, err := json.Marshal(relayEnvelope{ChannelID: channelID, Payload: body})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	receivers, err := r.rdb.Publish(ctx, relayChannel(owner), env).Result()
	if err != nil {
		return fmt.Errorf("publish relay: %w", err)
	}
	if receivers == 0 {
		return ErrUnknownChannel
	}
	return nil
}

func (r *RedisRelay) heartbeat(ctx context.Context) error {
	return r.rdb.Set(ctx, instanceKeyPrefix+r.registry.InstanceID(), time.Now().Unix(), instanceTTL).Err()
}

// Listen delivers relayed pushes addressed to this instance until ctx is
// done. While it runs the instance is advertised as alive.
func (r *RedisRelay) Listen(ctx context.Context) error {
	if err := r.heartbeat(ctx); err != nil {
		return fmt.Errorf("announce instance: %w", err)
	}
	defer r.rdb.Del(context.WithoutCancel(ctx), instanceKeyPrefix+r.registry.InstanceID())

	sub := r.rdb.Subscribe(ctx, relayChannel(r.registry.InstanceID()))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}

	ticker := time.NewTicker(instanceHeartbeat)
	defer ticker.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.heartbeat(ctx); err != nil {
				r.logger.Warn("instance heartbeat failed", zap.Error(err))
			}
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("bad relay message", zap.Error(err))
				continue
			}
			if err := r.local.PushToChannel(ctx, env.ChannelID, env.Payload); err != nil {
				r.logger.Warn("relay push failed", zap.String("channel_id", env.ChannelID), zap.Error(err))
			}
		}
	}
}
