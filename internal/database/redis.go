package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisOptions parses the URL and tunes the pool for this agent's workload:
// each table subscription holds a dedicated connection outside the pool, so
// the pool itself only serves publishes and the occasional command.
func redisOptions(redisURL string) (*redis.Options, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}
	opts.PoolSize = 4
	opts.MinIdleConns = 1
	return opts, nil
}

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redisOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Ping the client to ensure connection is established
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	return client, nil
}
