package messaging

import (
	"errors"
	"fmt"
	"strings"

	"nft_messenger/internal/blobstore"
)

var (
	ErrNoRecipients     = errors.New("no recipients")
	ErrEmptyMessage     = errors.New("empty message")
	ErrUploadFailed     = blobstore.ErrUploadFailed
	ErrFetchFailed      = blobstore.ErrFetchFailed
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrKeyNotFound      = errors.New("key not found")
)

// MissingPublicKeysError lists recipients, as the caller named them, that
// have never published an encryption key.
type MissingPublicKeysError struct {
	Missing []string
}

func (e *MissingPublicKeysError) Error() string {
	return fmt.Sprintf("missing public keys for %s", strings.Join(e.Missing, ", "))
}
