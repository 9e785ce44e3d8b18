// Package cache stores validation results keyed by text fingerprint and rule-set version.
// A cached result is only reused when both the normalized text and the rule set are unchanged.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/compliance-reviewer/internal/validation"
)

// ErrMiss is returned by Store.Get when nothing is cached under a key.
var ErrMiss = errors.New("cache miss")

// Key identifies one cached validation.
type Key struct {
	Fingerprint string
	Version     string
}

func (k Key) String() string {
	return k.Fingerprint + "@" + k.Version
}

// Entry is one cached validation result.
type Entry struct {
	Fingerprint   string             `json:"fingerprint"`
	Version       string             `json:"version"`
	ApplicationID string             `json:"applicationId"`
	Result        *validation.Result `json:"result"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, key Key, entry *Entry) error
}

func encode(entry *Entry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if entry.Result == nil {
		return nil, errors.New("cache entry has no result")
	}
	return &entry, nil
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key][]byte)}
}

// Get returns a copy of the stored entry.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	return decode(data)
}

// Put stores a serialized copy so later mutation of entry does not leak into the cache.
func (s *MemoryStore) Put(_ context.Context, key Key, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = data
	s.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
