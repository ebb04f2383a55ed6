package auth

import (
	"context"
	"sync"
	"time"

	"nft_messenger/internal/service/redis"
)

type (
	// NonceStore hands out single-use nonces bound to an address.
	NonceStore interface {
		Save(ctx context.Context, nonce, address string, ttl time.Duration) error
		// Take removes nonce and reports the address it was issued to.
		// It returns ErrInvalidNonce for unknown, expired or already used nonces.
		Take(ctx context.Context, nonce string) (string, error)
	}

	MemoryNonceStore struct {
		mu      sync.Mutex
		now     func() time.Time
		entries map[string]nonceEntry
	}

	nonceEntry struct {
		address string
		expires time.Time
	}

	RedisNonceStore struct {
		redisService *redis.RedisService
	}
)

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		now:     time.Now,
		entries: make(map[string]nonceEntry),
	}
}

func (m *MemoryNonceStore) Save(_ context.Context, nonce, address string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[nonce] = nonceEntry{address: address, expires: now.Add(ttl)}
	return nil
}

func (m *MemoryNonceStore) Take(_ context.Context, nonce string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[nonce]
	if !ok {
		return "", ErrInvalidNonce
	}
	delete(m.entries, nonce)
	if m.now().After(e.expires) {
		return "", ErrInvalidNonce
	}
	return e.address, nil
}

func NewRedisNonceStore(redisService *redis.RedisService) *RedisNonceStore {
	return &RedisNonceStore{
		redisService: redisService,
	}
}

func nonceKey(nonce string) string {
	return "nftmsg:nonce:" + nonce
}

func (r *RedisNonceStore) Save(ctx context.Context, nonce, address string, ttl time.Duration) error {
	return r.redisService.Set(ctx, nonceKey(nonce), address, ttl)
}

func (r *RedisNonceStore) Take(ctx context.Context, nonce string) (string, error) {
	address, err := r.redisService.GetDel(ctx, nonceKey(nonce))
	if redis.IsNil(err) {
		return "", ErrInvalidNonce
	}
	return address, err
}
