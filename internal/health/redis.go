package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChecker verifies the settings store backend is reachable.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis connectivity checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns the checker name.
func (r *RedisChecker) Name() string {
	return "redis"
}

// Check pings Redis.
func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
