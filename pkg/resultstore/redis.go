package resultstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/word-typesetter/config"
)

// RedisSlots 槽保存在 Redis，带过期时间
type RedisSlots struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlots 连接并 Ping 一次
func NewRedisSlots(ctx context.Context, cfg config.RedisConfig) (*RedisSlots, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return &RedisSlots{client: client, ttl: cfg.ResultTTL}, nil
}

func (r *RedisSlots) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisSlots) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisSlots) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// TTL 剩余过期时间
func (r *RedisSlots) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *RedisSlots) Close() error {
	return r.client.Close()
}
