package websocket

import (
	"context"
	"log/slog"
	"strings"
	"time"

	wire "meetrix/pkg/models"

	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "notifications:user:"

// RedisRelay fans events out across api-server instances: Publish goes through
// Redis Pub/Sub and Run hands every received frame to the local hub.
type RedisRelay struct {
	client     *redis.Client
	hub        *Hub
	identifier string
	logger     *slog.Logger
	timeout    time.Duration
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client:     client,
		hub:        hub,
		identifier: wire.NotificationsIdentifier(),
		logger:     logger,
		timeout:    2 * time.Second,
	}
}

func relayChannel(userID string) string {
	return relayChannelPrefix + userID
}

// Publish falls back to local delivery when Redis is unreachable
func (r *RedisRelay) Publish(userID, eventType string, payload any) {
	frame, err := wire.EncodeEvent(r.identifier, eventType, payload)
	if err != nil {
		r.logger.Error("relay_event_encode_failed",
			"user_id", userID,
			"event", eventType,
			"error", err.Error(),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Publish(ctx, relayChannel(userID), frame).Err(); err != nil {
		r.logger.Warn("relay_publish_failed",
			"user_id", userID,
			"event", eventType,
			"error", err.Error(),
		)
		r.hub.Deliver(userID, frame)
	}
}

// Run subscribes to every user channel until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be active so no early publish is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("relay_subscribed", "pattern", relayChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay_stopped", "reason", ctx.Err().Error())
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID := strings.TrimPrefix(msg.Channel, relayChannelPrefix)
			r.hub.Deliver(userID, []byte(msg.Payload))
		}
	}
}
