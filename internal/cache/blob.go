package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/jonathan/compliance-reviewer/internal/storage"
)

// BlobStore keeps entries as JSON objects at cache/<fingerprint>/<version>.json in a storage backend.
type BlobStore struct {
	storage storage.Storage
	prefix  string
}

// NewBlobStore creates a blob-backed cache. An empty prefix defaults to "cache".
func NewBlobStore(s storage.Storage, prefix string) *BlobStore {
	if prefix == "" {
		prefix = "cache"
	}
	return &BlobStore{storage: s, prefix: prefix}
}

// ObjectKey returns the storage key for a cache key.
func (b *BlobStore) ObjectKey(key Key) string {
	return path.Join(b.prefix, key.Fingerprint, key.Version+".json")
}

func (b *BlobStore) Get(ctx context.Context, key Key) (*Entry, error) {
	rc, err := b.storage.Get(ctx, b.ObjectKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cache object: %w", err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache object: %w", err)
	}
	return decode(data)
}

func (b *BlobStore) Put(ctx context.Context, key Key, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	return b.storage.Put(ctx, b.ObjectKey(key), bytes.NewReader(data))
}
