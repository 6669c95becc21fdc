package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the redis instance holding the run lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// ConnectAttempts bounds startup retries. Zero means 3.
	ConnectAttempts int
}

// A single run holds at most one lock call in flight, plus the release.
const (
	redisPoolSize    = 2
	redisDialTimeout = 5 * time.Second
)

// NewRedisClient connects to redis, retrying the initial ping while the
// server is unreachable.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    redisPoolSize,
		DialTimeout: redisDialTimeout,
		MaxRetries:  -1,
	})

	err := newRetrier(cfg.ConnectAttempts, logger).do(ctx, "ping redis "+cfg.Addr, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
