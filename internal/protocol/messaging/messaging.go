// Package messaging encrypts a message body once under a fresh AES-256-GCM
// key, stores the ciphertext in the blob store and wraps that key separately
// for every recipient. Reading reverses the steps. Nothing here talks to the
// ledger or sees a long-lived private key except through UnwrapKey, which
// only runs on the recipient's side.
package messaging

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"nft_messenger/internal/blobstore"
	"nft_messenger/internal/cryptographic/encryption"
	"nft_messenger/internal/cryptographic/wrap"
	"nft_messenger/internal/model"
)

type (
	KeyDirectory interface {
		LookupMany(ctx context.Context, addresses []string) (keys []string, missing []string, err error)
	}

	Protocol struct {
		directory KeyDirectory
		blobs     blobstore.Store
	}
)

func New(directory KeyDirectory, blobs blobstore.Store) *Protocol {
	return &Protocol{
		directory: directory,
		blobs:     blobs,
	}
}

// Encrypt runs the send sequence. Every recipient key is resolved before any
// key material is generated or anything is uploaded, and the blob is stored
// before keys are wrapped. The caller mints with the result.
func (p *Protocol) Encrypt(ctx context.Context, message string, recipients []string) (model.EncryptResult, error) {
	if len(recipients) == 0 {
		return model.EncryptResult{}, ErrNoRecipients
	}
	if message == "" {
		return model.EncryptResult{}, ErrEmptyMessage
	}

	pubKeys, missing, err := p.directory.LookupMany(ctx, recipients)
	if err != nil {
		return model.EncryptResult{}, fmt.Errorf("resolve recipient keys: %w", err)
	}
	if len(missing) > 0 {
		return model.EncryptResult{}, &MissingPublicKeysError{Missing: missing}
	}

	key, err := encryption.NewKey()
	if err != nil {
		return model.EncryptResult{}, err
	}
	nonce, err := encryption.NewNonce()
	if err != nil {
		return model.EncryptResult{}, err
	}
	ciphertext, err := encryption.Seal(key, nonce, []byte(message))
	if err != nil {
		return model.EncryptResult{}, err
	}

	blob, err := json.Marshal(model.EncryptedPayload{
		IV:         hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	})
	if err != nil {
		return model.EncryptResult{}, err
	}
	cid, err := p.blobs.Put(ctx, blob)
	if err != nil {
		return model.EncryptResult{}, err
	}

	encKeys, err := wrapForAll(ctx, pubKeys, []byte(hex.EncodeToString(key)))
	if err != nil {
		return model.EncryptResult{}, err
	}

	return model.EncryptResult{
		CID:     cid,
		EncKeys: encKeys,
	}, nil
}

// wrapForAll wraps data once per public key. The result is index-aligned
// with pubKeys.
func wrapForAll(ctx context.Context, pubKeys []string, data []byte) ([]string, error) {
	out := make([]string, len(pubKeys))
	g, _ := errgroup.WithContext(ctx)
	for i, pk := range pubKeys {
		g.Go(func() error {
			env, err := wrap.Seal(pk, data)
			if err != nil {
				return fmt.Errorf("wrap key for recipient %d: %w", i, err)
			}
			out[i], err = wrap.Encode(env)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Decrypt fetches the payload at address and opens it with key. Fetch errors
// wrap ErrFetchFailed; everything after the fetch fails as ErrDecryptionFailed.
func (p *Protocol) Decrypt(ctx context.Context, address string, key []byte) (string, error) {
	blob, err := p.blobs.Get(ctx, address)
	if err != nil {
		return "", err
	}
	return OpenPayload(blob, key)
}

func OpenPayload(blob, key []byte) (string, error) {
	var payload model.EncryptedPayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		return "", fmt.Errorf("%w: malformed payload: %v", ErrDecryptionFailed, err)
	}
	nonce, err := hex.DecodeString(payload.IV)
	if err != nil || len(nonce) != encryption.NonceSize {
		return "", fmt.Errorf("%w: malformed iv", ErrDecryptionFailed)
	}
	ciphertext, err := hex.DecodeString(payload.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryptionFailed)
	}
	if len(key) != encryption.KeySize {
		return "", fmt.Errorf("%w: key must be %d bytes", ErrDecryptionFailed, encryption.KeySize)
	}

	plaintext, err := encryption.Open(key, nonce, ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// UnwrapKey recovers the raw symmetric key from a wrapped key using the
// recipient's X25519 secret.
func UnwrapKey(wrapped string, priv [32]byte) ([]byte, error) {
	if wrapped == "" || wrapped == "0x" {
		return nil, ErrKeyNotFound
	}

	env, err := wrap.Decode(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	data, err := wrap.Open(env, priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	key, err := hex.DecodeString(string(data))
	if err != nil || len(key) != encryption.KeySize {
		return nil, fmt.Errorf("%w: unwrapped key is not %d hex bytes", ErrDecryptionFailed, encryption.KeySize)
	}
	return key, nil
}

// Read is the full receive path for one token: unwrap, fetch and open.
func (p *Protocol) Read(ctx context.Context, address, wrapped string, priv [32]byte) (string, error) {
	key, err := UnwrapKey(wrapped, priv)
	if err != nil {
		return "", err
	}
	return p.Decrypt(ctx, address, key)
}
