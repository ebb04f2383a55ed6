package dh

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// Generate a new X25519 key pair
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	_, err = rand.Read(priv[:])
	if err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	pub, err = PublicKey(priv)
	return priv, pub, err
}

// PublicKey derives the X25519 public key for priv. The scalar is clamped the
// same way nacl's box.keyPair.fromSecretKey does, so an account's secp256k1
// private key bytes can be used directly as the encryption secret.
func PublicKey(priv [32]byte) (pub [32]byte, err error) {
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("X25519 base point: %w", err)
	}
	copy(pub[:], out)
	return pub, nil
}

// EncodePublicKey is the directory format: standard base64 of the 32-byte point.
func EncodePublicKey(pub [32]byte) string {
	return base64.StdEncoding.EncodeToString(pub[:])
}

func DecodePublicKey(s string) (pub [32]byte, err error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return pub, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != 32 {
		return pub, fmt.Errorf("public key must be 32 bytes, got %d", len(b))
	}
	copy(pub[:], b)
	return pub, nil
}
