// Package auth guards the write endpoints. A client asks for a challenge
// nonce, signs the canonical write message for its action with the account
// key (EIP-191 personal_sign) and sends nonce and signature with the write.
// Each nonce is accepted once.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nft_messenger/internal/cryptographic/signature"
	"nft_messenger/internal/model"
	"nft_messenger/internal/repository/directory"
)

const (
	ActionPublishKey  = "publish_key"
	ActionRecordIndex = "record_index"

	DefaultNonceTTL = 5 * time.Minute
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMissingSignature = fmt.Errorf("%w: signature required", ErrUnauthorized)
	ErrInvalidNonce     = fmt.Errorf("%w: unknown or expired nonce", ErrUnauthorized)
)

type (
	Service struct {
		nonces   NonceStore
		ttl      time.Duration
		required bool
		now      func() time.Time
	}
)

func NewService(nonces NonceStore, ttl time.Duration, required bool) *Service {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &Service{
		nonces:   nonces,
		ttl:      ttl,
		required: required,
		now:      time.Now,
	}
}

func (s *Service) Required() bool {
	return s.required
}

// Challenge issues a fresh nonce for address.
func (s *Service) Challenge(ctx context.Context, address string) (model.Challenge, error) {
	addr, err := directory.Canonical(address)
	if err != nil {
		return model.Challenge{}, err
	}

	nonce := uuid.NewString()
	if err := s.nonces.Save(ctx, nonce, addr, s.ttl); err != nil {
		return model.Challenge{}, fmt.Errorf("save nonce: %w", err)
	}
	return model.Challenge{
		Address:   addr,
		Nonce:     nonce,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}, nil
}

// Authorize checks that address signed the write message for action and
// payload with a nonce it was issued. Writes without a signature pass only
// when signatures are not required. The nonce is spent even if the
// signature turns out to be wrong.
func (s *Service) Authorize(ctx context.Context, action, address, nonce, sig, payload string) error {
	if sig == "" && nonce == "" && !s.required {
		return nil
	}
	if sig == "" || nonce == "" {
		return ErrMissingSignature
	}

	addr, err := directory.Canonical(address)
	if err != nil {
		return err
	}

	issuedTo, err := s.nonces.Take(ctx, nonce)
	if err != nil {
		if errors.Is(err, ErrInvalidNonce) {
			return err
		}
		return fmt.Errorf("take nonce: %w", err)
	}
	if issuedTo != addr {
		return ErrInvalidNonce
	}

	msg := signature.WriteMessage(action, addr, nonce, payload)
	if err := signature.Verify(addr, msg, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// PublishPayload is the payload signed when publishing pubKey.
func PublishPayload(pubKey string) string {
	return pubKey
}

// IndexPayload is the payload signed by the sender when recording tokenIDs.
func IndexPayload(tokenIDs []string, recipient string) string {
	return strings.Join(tokenIDs, ",") + "|" + strings.ToLower(recipient)
}
