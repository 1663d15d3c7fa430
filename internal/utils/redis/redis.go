package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	re "github.com/redis/go-redis/v9"
)

// Redis stores JSON values by key. Get reports false on a miss.
type Redis interface {
	Set(ctx context.Context, key string, value interface{}, expireTime time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// Client is the subset of *redis.Client the store needs
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *re.StatusCmd
	Get(ctx context.Context, key string) *re.StringCmd
	Del(ctx context.Context, keys ...string) *re.IntCmd
}

type redis struct {
	redis Client
}

// New wraps a client; a nil client yields the no-op store
func New(client Client) Redis {
	if client == nil {
		return Dummy()
	}
	return &redis{redis: client}
}

func (r *redis) Set(ctx context.Context, key string, value interface{}, expireTime time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return r.redis.Set(ctx, key, jsonData, expireTime).Err()
}

func (r *redis) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := r.redis.Get(ctx, key).Bytes()
	if errors.Is(err, re.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *redis) Delete(ctx context.Context, key string) (bool, error) {
	result, err := r.redis.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
