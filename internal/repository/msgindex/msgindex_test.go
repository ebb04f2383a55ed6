package msgindex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft_messenger/internal/repository/kv"
)

const (
	sender    = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	recipient = "0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	fs, err := kv.NewFileStore(t.TempDir(), Namespace)
	require.NoError(t, err)
	return New(fs)
}

func TestRecordBatchLookup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordBatch(ctx, []string{"7", "8"}, sender, recipient))

	for _, id := range []string{"7", "8"} {
		e, err := s.Lookup(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, e.TokenID)
		assert.Equal(t, strings.ToLower(sender), e.Sender)
		assert.Equal(t, strings.ToLower(recipient), e.Recipient)
	}

	_, err := s.Lookup(ctx, "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordBatchLastWriterWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordBatch(ctx, []string{"1"}, sender, recipient))
	require.NoError(t, s.RecordBatch(ctx, []string{"1"}, recipient, sender))

	e, err := s.Lookup(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(recipient), e.Sender)
	assert.Equal(t, strings.ToLower(sender), e.Recipient)
}

func TestRecordBatchValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.RecordBatch(ctx, nil, sender, recipient), ErrInvalidTokenID)
	assert.ErrorIs(t, s.RecordBatch(ctx, []string{"1", "x"}, sender, recipient), ErrInvalidTokenID)
	assert.ErrorIs(t, s.RecordBatch(ctx, []string{"1"}, "bob", recipient), ErrInvalidAddress)
	assert.ErrorIs(t, s.RecordBatch(ctx, []string{"1"}, sender, ""), ErrInvalidAddress)

	_, err := s.Lookup(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound, "a rejected batch writes nothing")
}

func TestCanonicalTokenID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"42", "42", false},
		{"007", "7", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935",
			"115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"", "", true},
		{"-1", "", true},
		{"1e3", "", true},
		{"0x10", "", true},
		{" 1", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalTokenID(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidTokenID, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestLookupUsesCanonicalID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordBatch(ctx, []string{"0012"}, sender, recipient))
	e, err := s.Lookup(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, "12", e.TokenID)
}
