// Package storage keeps uploaded test case archives in an object store
// so the original artifacts can be re-imported or audited later.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// ObjectStore defines common object operations across backends.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

const archiveContentType = "application/gzip"

// ArchiveStore stores problem test case archives through an
// ObjectStore backend.
type ArchiveStore struct {
	backend ObjectStore
}

// NewArchiveStore constructs an ArchiveStore for the provided backend.
func NewArchiveStore(backend ObjectStore) *ArchiveStore {
	return &ArchiveStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *ArchiveStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PutArchive uploads a test case archive keyed by problem and content
// hash, and returns the object key. Keys are content addressed, so an
// archive that is already stored is not uploaded again.
func (s *ArchiveStore) PutArchive(ctx context.Context, problemID int, sha string, data []byte) (string, error) {
	key := archiveKey(problemID, sha)
	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), archiveContentType); err != nil {
		return "", err
	}
	return key, nil
}

// GetArchive reads a stored archive back in full.
func (s *ArchiveStore) GetArchive(ctx context.Context, key string) ([]byte, error) {
	r, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// DeleteArchive removes a stored archive.
func (s *ArchiveStore) DeleteArchive(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

func archiveKey(problemID int, sha string) string {
	return fmt.Sprintf("problems/%d/%s.tar.gz", problemID, sha)
}
