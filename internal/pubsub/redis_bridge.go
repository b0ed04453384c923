package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/config"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
)

// envelope wraps a broadcast payload with the publishing instance id so
// subscribers can skip their own messages.
type envelope struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// RedisBridge mirrors room broadcasts across relay instances over redis
// pub/sub, one channel per room.
type RedisBridge struct {
	client *redis.Client
	prefix string
	origin string
}

// NewRedisBridge connects to redis and verifies the connection. origin
// identifies this relay instance and must be unique per process.
func NewRedisBridge(cfg config.RedisConfig, origin string) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBridge{
		client: client,
		prefix: cfg.ChannelPrefix,
		origin: origin,
	}, nil
}

// Publish mirrors a local broadcast to the room's redis channel.
func (b *RedisBridge) Publish(ctx context.Context, room string, data []byte) error {
	payload, err := json.Marshal(envelope{Origin: b.origin, Data: data})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.prefix+room, payload).Err()
}

// Run subscribes to all room channels and feeds events published by
// other instances into deliver. Blocks until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, deliver func(room string, data []byte)) {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.L().Warn().Err(err).Msg("malformed bridge payload")
				continue
			}
			if env.Origin == b.origin {
				continue
			}

			room := strings.TrimPrefix(msg.Channel, b.prefix)
			deliver(room, env.Data)
		}
	}
}

// Close releases the redis connection.
func (b *RedisBridge) Close() error {
	return b.client.Close()
}
