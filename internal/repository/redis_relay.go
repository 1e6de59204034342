package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalDNA/internal/domain/models"
	drepo "SignalDNA/internal/domain/repository"
	applogger "SignalDNA/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// relayMessage is what instances exchange over the Redis channel.
type relayMessage struct {
	Origin  string               `json:"origin"`
	Payload models.SignalPayload `json:"payload"`
}

// RedisRelay shares signal updates between instances over Redis pub/sub.
// Updates published by this instance are ignored on receipt, and received updates are
// only broadcast locally, never re-published.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	local      drepo.Broadcaster
	metrics    drepo.Metrics
	log        *applogger.Logger
}

// NewRedisRelay creates a relay for instanceID that delivers foreign updates to local.
func NewRedisRelay(client *redis.Client, channel, instanceID string, local drepo.Broadcaster, metrics drepo.Metrics, l *applogger.Logger) *RedisRelay {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		local:      local,
		metrics:    metrics,
		log:        l.With(applogger.String("component", "redis_relay")),
	}
}

func (r *RedisRelay) Name() string { return "redis" }

// Publish sends u to the other instances.
func (r *RedisRelay) Publish(ctx context.Context, u models.SignalUpdate) error {
	b, err := r.encode(u)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

func (r *RedisRelay) encode(u models.SignalUpdate) ([]byte, error) {
	b, err := json.Marshal(relayMessage{Origin: r.instanceID, Payload: u.Payload()})
	if err != nil {
		return nil, fmt.Errorf("encode relay message: %w", err)
	}
	return b, nil
}

// Run subscribes to the channel and broadcasts foreign updates until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.log.Info("redis relay subscribed", applogger.String("channel", r.channel), applogger.String("instance_id", r.instanceID))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver([]byte(msg.Payload))
		}
	}
}

// deliver broadcasts a received message locally. It reports whether it did.
func (r *RedisRelay) deliver(raw []byte) bool {
	var m relayMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		r.log.Warn("redis relay decode failed", applogger.Error(err))
		r.recordError("relay_decode")
		return false
	}
	if m.Origin == r.instanceID {
		return false
	}

	u := m.Payload.Update()
	if err := u.Validate(); err != nil {
		r.log.Warn("redis relay rejected update", applogger.String("origin", m.Origin), applogger.Error(err))
		r.recordError("relay_invalid")
		return false
	}

	n := r.local.Broadcast(u)
	r.log.Debug("redis relay delivered",
		applogger.String("origin", m.Origin),
		applogger.String("instrument", string(u.Instrument)),
		applogger.Int("subscribers", n),
	)
	return true
}

func (r *RedisRelay) recordError(kind string) {
	if r.metrics != nil {
		r.metrics.RecordError(kind)
	}
}

func (r *RedisRelay) Close() error { return nil }

var _ drepo.SignalPublisher = (*RedisRelay)(nil)
