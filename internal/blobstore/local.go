package blobstore

import (
	"context"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs as files named by their address. Used for
// development and tests.
type LocalStore struct {
	BaseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{BaseDir: baseDir}, nil
}

func (s *LocalStore) Put(_ context.Context, data []byte) (string, error) {
	address, err := Address(data)
	if err != nil {
		return "", uploadFailed(err)
	}

	f, err := os.CreateTemp(s.BaseDir, ".blob-*")
	if err != nil {
		return "", uploadFailed(err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", uploadFailed(err)
	}
	if err := f.Close(); err != nil {
		return "", uploadFailed(err)
	}
	if err := os.Rename(tmp, filepath.Join(s.BaseDir, address)); err != nil {
		return "", uploadFailed(err)
	}
	return address, nil
}

func (s *LocalStore) Get(_ context.Context, address string) ([]byte, error) {
	if err := validAddress(address); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.BaseDir, address))
	if err != nil {
		return nil, fetchFailed(err)
	}
	if err := verify(address, data); err != nil {
		return nil, fetchFailed(err)
	}
	return data, nil
}
