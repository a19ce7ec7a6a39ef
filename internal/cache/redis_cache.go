package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calderhq/parley/internal/config"
	"github.com/calderhq/parley/internal/domain"
)

type RedisStatsCache struct {
	client *redis.Client
	prefix string
}

func NewRedisStatsCache(cfg config.RedisConfig) (*RedisStatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStatsCache{
		client: client,
		prefix: cfg.StatsPrefix,
	}, nil
}

func (c *RedisStatsCache) key(room string) string {
	return fmt.Sprintf("%s:%s", c.prefix, room)
}

func (c *RedisStatsCache) Get(ctx context.Context, room string) (*domain.RoomStats, error) {
	data, err := c.client.Get(ctx, c.key(room)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var stats domain.RoomStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached stats: %w", err)
	}

	return &stats, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, room string, stats *domain.RoomStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, c.key(room), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisStatsCache) Close() error {
	return c.client.Close()
}
