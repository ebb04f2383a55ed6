// Package msgindex records which sender and recipient a minted message token
// belongs to, so readers do not have to scan the chain.
package msgindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"nft_messenger/internal/model"
	"nft_messenger/internal/repository/directory"
	"nft_messenger/internal/repository/kv"
)

const Namespace = "messages"

var (
	ErrInvalidTokenID = errors.New("invalid token id")
	ErrInvalidAddress = directory.ErrInvalidAddress
	ErrNotFound       = errors.New("not found in index")
)

type (
	Store struct {
		kv kv.Store
	}

	stored struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
	}
)

func New(store kv.Store) *Store {
	return &Store{
		kv: store,
	}
}

// CanonicalTokenID accepts a non-negative decimal integer and returns it
// without leading zeros.
func CanonicalTokenID(id string) (string, error) {
	if id == "" || len(id) > 78 {
		return "", ErrInvalidTokenID
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return "", ErrInvalidTokenID
		}
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return "", ErrInvalidTokenID
	}
	return n.String(), nil
}

type batch struct {
	ids       []string
	sender    string
	recipient string
}

func parseBatch(tokenIDs []string, sender, recipient string) (batch, error) {
	if len(tokenIDs) == 0 {
		return batch{}, ErrInvalidTokenID
	}
	from, err := directory.Canonical(sender)
	if err != nil {
		return batch{}, fmt.Errorf("sender: %w", err)
	}
	to, err := directory.Canonical(recipient)
	if err != nil {
		return batch{}, fmt.Errorf("recipient: %w", err)
	}

	ids := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		key, err := CanonicalTokenID(id)
		if err != nil {
			return batch{}, fmt.Errorf("%w: %q", err, id)
		}
		ids = append(ids, key)
	}
	return batch{ids: ids, sender: from, recipient: to}, nil
}

// Validate checks a batch without touching storage and returns the token ids
// in canonical form.
func Validate(tokenIDs []string, sender, recipient string) ([]string, error) {
	b, err := parseBatch(tokenIDs, sender, recipient)
	return b.ids, err
}

// RecordBatch writes one entry per token id, all sharing sender and
// recipient, as a single batch. An existing entry for the same id is replaced.
func (s *Store) RecordBatch(ctx context.Context, tokenIDs []string, sender, recipient string) error {
	b, err := parseBatch(tokenIDs, sender, recipient)
	if err != nil {
		return err
	}

	value, err := json.Marshal(stored{Sender: b.sender, Recipient: b.recipient})
	if err != nil {
		return err
	}

	entries := make(map[string][]byte, len(b.ids))
	for _, id := range b.ids {
		entries[id] = value
	}

	if err := s.kv.PutBatch(ctx, entries); err != nil {
		return fmt.Errorf("record index batch: %w", err)
	}
	return nil
}

// Lookup returns ErrNotFound when this index never saw the token. That answer
// is final; callers show the participants as unknown.
func (s *Store) Lookup(ctx context.Context, tokenID string) (model.ConversationIndexEntry, error) {
	key, err := CanonicalTokenID(tokenID)
	if err != nil {
		return model.ConversationIndexEntry{}, err
	}

	value, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return model.ConversationIndexEntry{}, ErrNotFound
	}
	if err != nil {
		return model.ConversationIndexEntry{}, fmt.Errorf("lookup token %s: %w", key, err)
	}

	var e stored
	if err := json.Unmarshal(value, &e); err != nil {
		return model.ConversationIndexEntry{}, fmt.Errorf("decode index entry %s: %w", key, err)
	}
	return model.ConversationIndexEntry{
		TokenID:   key,
		Sender:    e.Sender,
		Recipient: e.Recipient,
	}, nil
}
