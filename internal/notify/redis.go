package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
)

const redisHistoryLength = 1000

// RedisPublisher pushes JSON outcomes onto the head of a list and trims it to
// the latest redisHistoryLength entries.
type RedisPublisher struct {
	client *redis.Client
	list   string
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, fmt.Sprintf("connect redis %s", cfg.Address))
	}
	return newRedisPublisher(client, cfg.List), nil
}

func newRedisPublisher(client *redis.Client, list string) *RedisPublisher {
	if list == "" {
		list = "counter:runs"
	}
	return &RedisPublisher{client: client, list: list}
}

func (p *RedisPublisher) Sink() Sink { return SinkRedis }

func (p *RedisPublisher) Publish(ctx context.Context, o Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := p.client.LPush(ctx, p.list, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", p.list, err)
	}
	if err := p.client.LTrim(ctx, p.list, 0, redisHistoryLength-1).Err(); err != nil {
		return fmt.Errorf("ltrim %s: %w", p.list, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
