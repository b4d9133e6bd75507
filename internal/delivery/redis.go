package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig addresses the pub/sub channel the host subscribes to.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisDeliverer publishes actions as JSON on a Redis channel.
type RedisDeliverer struct {
	client  *redis.Client
	channel string
}

func NewRedisDeliverer(ctx context.Context, cfg RedisConfig) (*RedisDeliverer, error) {
	if cfg.Channel == "" {
		cfg.Channel = "callgate:actions"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Info("action delivery connected to redis", "addr", cfg.Addr, "channel", cfg.Channel)

	return &RedisDeliverer{client: rdb, channel: cfg.Channel}, nil
}

func (d *RedisDeliverer) Deliver(ctx context.Context, a Action) error {
	payload, err := encodeAction(a)
	if err != nil {
		return err
	}
	receivers, err := d.client.Publish(ctx, d.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish action: %w", err)
	}
	if receivers == 0 {
		// Nobody listening is the same as an expired intent: not an error.
		slog.Debug("action published with no subscribers", "call_id", a.CallID, "action", string(a.Name))
	}
	return nil
}

func (d *RedisDeliverer) Close() error {
	return d.client.Close()
}

func encodeAction(a Action) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action: %w", err)
	}
	return data, nil
}
