// Package database opens connections to shared infrastructure.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/datagenie-engine/pkg/config"
	"github.com/ekaya-inc/datagenie-engine/pkg/retry"
)

const (
	redisDialTimeout  = 3 * time.Second
	redisWriteTimeout = 2 * time.Second
	redisPingRetries  = 2
	redisPingDelay    = 250 * time.Millisecond
)

// NewRedisClient connects to the event stream server and pings it, retrying
// twice with backoff.
// It returns a nil client and no error when Redis is disabled.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		WriteTimeout: redisWriteTimeout,
		MaxRetries:   1,
	})

	ping := &retry.Config{MaxRetries: redisPingRetries, InitialDelay: redisPingDelay, Multiplier: 2}
	if err := retry.Do(ctx, ping, func(int) error { return client.Ping(ctx).Err() }); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}
