// Package blobstore stores encrypted message payloads under content
// addresses. Put must return only after the content is durable (pinned on
// IPFS), and callers must not mint before Put succeeds.
package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/multiformats/go-multihash"
)

const maxBlobSize = 16 << 20

var (
	ErrUploadFailed   = errors.New("upload failed")
	ErrFetchFailed    = errors.New("fetch failed")
	ErrInvalidAddress = errors.New("invalid content address")
)

type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// Address is the content address used by the non-IPFS backends: the base58
// sha2-256 multihash of the exact bytes.
func Address(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return mh.B58String(), nil
}

func validAddress(address string) error {
	if _, err := multihash.FromB58String(address); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

func verify(address string, data []byte) error {
	got, err := Address(data)
	if err != nil {
		return err
	}
	if got != address {
		return fmt.Errorf("content does not match address %s", address)
	}
	return nil
}

func uploadFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrUploadFailed, err)
}

func fetchFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}
