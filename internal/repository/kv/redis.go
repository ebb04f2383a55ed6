package kv

import (
	"context"

	"nft_messenger/internal/service/redis"
)

// RedisStore keeps a namespace in a single redis hash.
type RedisStore struct {
	redisService *redis.RedisService
	key          string
}

func NewRedisStore(redisService *redis.RedisService, namespace string) *RedisStore {
	return &RedisStore{
		redisService: redisService,
		key:          "nftmsg:" + namespace,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.redisService.HGet(ctx, r.key, key)
	if redis.IsNil(err) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return r.redisService.HSet(ctx, r.key, map[string][]byte{key: value})
}

func (r *RedisStore) PutBatch(ctx context.Context, entries map[string][]byte) error {
	return r.redisService.HSet(ctx, r.key, entries)
}

func (r *RedisStore) Close() error { return nil }
