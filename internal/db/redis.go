// Package db provides connection helpers for the Redis queue and the
// optional Postgres audit ledger.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// blockingReadTimeout leaves headroom above the longest single BLPOP the
// queue issues, so a blocked pop is never cut off by the client.
const blockingReadTimeout = 10 * time.Second

// NewRedisClient parses redisURL, builds a client suited to blocking list
// pops and verifies it with PING.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	if opts.ReadTimeout >= 0 && opts.ReadTimeout < blockingReadTimeout {
		opts.ReadTimeout = blockingReadTimeout
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}
