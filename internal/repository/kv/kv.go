// Package kv is the persistence abstraction behind the directory and the
// conversation index. A Store is one namespace of string keys mapped to JSON
// documents. Every mutation is durable when the call returns, and PutBatch is
// applied atomically: readers see all of the batch or none of it.
package kv

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("kv: not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	PutBatch(ctx context.Context, entries map[string][]byte) error
	Close() error
}
