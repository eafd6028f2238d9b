package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a key-value cache backed by a Redis instance, for deployments
// that run the client headless next to shared infrastructure.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(addr, password string, db int, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client, log: logger}, nil
}

// Get returns the value for key; any failure reads as a miss.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return "", false
	}
	return value, true
}

// Set stores value under key; failures are logged and dropped.
func (r *Redis) Set(ctx context.Context, key, value string) {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
