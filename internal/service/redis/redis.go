package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNil is returned when a key or hash field does not exist.
var ErrNil = redis.Nil

type (
	RedisService struct {
		rdb *redis.Client
	}
)

func NewRedis(rdb *redis.Client) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisService) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return r.rdb.HGet(ctx, key, field).Bytes()
}

// HSet writes all fields with a single HSET, which redis applies atomically.
func (r *RedisService) HSet(ctx context.Context, key string, fields map[string][]byte) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return r.rdb.HSet(ctx, key, values).Err()
}

func (r *RedisService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// GetDel reads and removes key in one round trip.
func (r *RedisService) GetDel(ctx context.Context, key string) (string, error) {
	return r.rdb.GetDel(ctx, key).Result()
}

func (r *RedisService) Close() error {
	return r.rdb.Close()
}

func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
