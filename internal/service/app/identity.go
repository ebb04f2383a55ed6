package app

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nft_messenger/internal/cryptographic/dh"
	"nft_messenger/internal/cryptographic/signature"
)

// Identity is the local account. Its secp256k1 key signs transactions and
// write requests, and the same 32 secret bytes serve as the X25519
// encryption secret, as eth_getEncryptionPublicKey wallets do.
type Identity struct {
	key *ecdsa.PrivateKey
}

func NewIdentity(key *ecdsa.PrivateKey) *Identity {
	return &Identity{key: key}
}

func GenerateIdentity() (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Identity{key: key}, nil
}

func LoadIdentity(path string) (*Identity, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return &Identity{key: key}, nil
}

// Save writes the key hex-encoded with 0600 permissions. An existing file is
// never overwritten.
func (i *Identity) Save(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return crypto.SaveECDSA(path, i.key)
}

func (i *Identity) PrivateKey() *ecdsa.PrivateKey {
	return i.key
}

func (i *Identity) Address() common.Address {
	return crypto.PubkeyToAddress(i.key.PublicKey)
}

func (i *Identity) EncryptionSecret() [32]byte {
	var secret [32]byte
	copy(secret[:], crypto.FromECDSA(i.key))
	return secret
}

// EncryptionPublicKey is the base64 X25519 key published to the directory.
func (i *Identity) EncryptionPublicKey() (string, error) {
	pub, err := dh.PublicKey(i.EncryptionSecret())
	if err != nil {
		return "", err
	}
	return dh.EncodePublicKey(pub), nil
}

func (i *Identity) SignWrite(action, nonce, payload string) (string, error) {
	return signature.PersonalSign(i.key, signature.WriteMessage(action, i.Address().Hex(), nonce, payload))
}
