// Package wrap encrypts short secrets to a published X25519 public key using
// the x25519-xsalsa20-poly1305 envelope understood by eth_decrypt wallets.
package wrap

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"nft_messenger/internal/cryptographic/dh"
	"nft_messenger/internal/model"

	"golang.org/x/crypto/nacl/box"
)

const Version = "x25519-xsalsa20-poly1305"

var (
	ErrMalformed   = errors.New("malformed wrapped key")
	ErrUnsupported = errors.New("unsupported wrapped key version")
	ErrOpen        = errors.New("wrapped key authentication failed")
)

// Seal encrypts data to the base64 X25519 recipientKey with a fresh ephemeral
// key pair and nonce.
func Seal(recipientKey string, data []byte) (*model.WrappedKeyEnvelope, error) {
	recipientPub, err := dh.DecodePublicKey(recipientKey)
	if err != nil {
		return nil, err
	}

	ephemPub, ephemPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("rand.Read nonce: %w", err)
	}

	sealed := box.Seal(nil, data, &nonce, &recipientPub, ephemPriv)
	return &model.WrappedKeyEnvelope{
		Version:        Version,
		Nonce:          base64.StdEncoding.EncodeToString(nonce[:]),
		EphemPublicKey: base64.StdEncoding.EncodeToString(ephemPub[:]),
		Ciphertext:     base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

func Open(env *model.WrappedKeyEnvelope, priv [32]byte) ([]byte, error) {
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, env.Version)
	}

	nonceBytes, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("%w: bad nonce", ErrMalformed)
	}
	ephemPub, err := dh.DecodePublicKey(env.EphemPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrMalformed)
	}

	var nonce [24]byte
	copy(nonce[:], nonceBytes)
	plain, ok := box.Open(nil, sealed, &nonce, &ephemPub, &priv)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}

// Encode serializes env for on-chain storage: "0x" + hex(JSON).
func Encode(env *model.WrappedKeyEnvelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(data), nil
}

func Decode(s string) (*model.WrappedKeyEnvelope, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var env model.WrappedKeyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &env, nil
}
