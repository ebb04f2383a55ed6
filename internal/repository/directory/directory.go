// Package directory maps account addresses to their published X25519
// encryption keys. Addresses are stored lowercased; keys must decode to a
// 32-byte curve25519 point.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nft_messenger/internal/cryptographic/dh"
	"nft_messenger/internal/repository/kv"
)

const Namespace = "pubkeys"

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidKey     = errors.New("invalid public key")
	ErrNotFound       = errors.New("public key not found")
)

type (
	Store struct {
		kv kv.Store
	}
)

func New(store kv.Store) *Store {
	return &Store{
		kv: store,
	}
}

// Canonical returns the storage form of an address. All-lowercase and
// all-uppercase hex are accepted as is; mixed case must be a valid EIP-55
// checksum.
func Canonical(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}

	checksummed := common.HexToAddress(address).Hex()
	digits := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) && digits != checksummed[2:] {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(checksummed), nil
}

// Validate checks a publish request without touching storage.
func Validate(address, publicKey string) error {
	if _, err := Canonical(address); err != nil {
		return err
	}
	if publicKey == "" {
		return ErrInvalidKey
	}
	if _, err := dh.DecodePublicKey(publicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

// Publish stores publicKey for address, replacing any earlier key.
func (s *Store) Publish(ctx context.Context, address, publicKey string) error {
	if err := Validate(address, publicKey); err != nil {
		return err
	}
	addr, _ := Canonical(address)

	value, err := json.Marshal(publicKey)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, addr, value); err != nil {
		return fmt.Errorf("publish key for %s: %w", addr, err)
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, address string) (string, error) {
	addr, err := Canonical(address)
	if err != nil {
		return "", err
	}

	value, err := s.kv.Get(ctx, addr)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup key for %s: %w", addr, err)
	}

	var key string
	if err := json.Unmarshal(value, &key); err != nil {
		return "", fmt.Errorf("decode key for %s: %w", addr, err)
	}
	if key == "" {
		return "", ErrNotFound
	}
	return key, nil
}

// LookupMany resolves every address. keys is index-aligned with addresses and
// only meaningful when missing is empty; missing holds the addresses (as given)
// with no published key. A malformed address counts as missing.
func (s *Store) LookupMany(ctx context.Context, addresses []string) (keys []string, missing []string, err error) {
	keys = make([]string, len(addresses))
	for i, a := range addresses {
		key, err := s.Lookup(ctx, a)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidAddress):
			missing = append(missing, a)
		case err != nil:
			return nil, nil, err
		default:
			keys[i] = key
		}
	}
	return keys, missing, nil
}
