package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonathan/compliance-reviewer/internal/validation"
)

// ComputeFunc produces a validation result on a cache miss.
type ComputeFunc func(ctx context.Context) (*validation.Result, error)

// Coordinator runs at most one computation per key at a time within the process.
// Concurrent callers for the same key share the first caller's outcome.
type Coordinator struct {
	store Store
	group singleflight.Group
	now   func() time.Time
}

// NewCoordinator wraps a store. A nil store disables caching but still de-duplicates concurrent work.
func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store, now: time.Now}
}

// GetOrCompute returns the cached result for key, or computes, stores and returns it.
// cached reports whether the result came from the store. Failed computations are never stored.
// A store write failure is logged and does not fail the call.
func (c *Coordinator) GetOrCompute(ctx context.Context, key Key, appID string, compute ComputeFunc) (result *validation.Result, cached bool, err error) {
	if key.Fingerprint == "" || key.Version == "" {
		return nil, false, fmt.Errorf("cache key needs both fingerprint and version, got %q", key.String())
	}
	return c.do(ctx, key, appID, false, compute)
}

// Refresh computes a fresh result and stores it over any cached entry for key.
func (c *Coordinator) Refresh(ctx context.Context, key Key, appID string, compute ComputeFunc) (*validation.Result, error) {
	if key.Fingerprint == "" || key.Version == "" {
		return nil, fmt.Errorf("cache key needs both fingerprint and version, got %q", key.String())
	}
	result, _, err := c.do(ctx, key, appID, true, compute)
	return result, err
}

func (c *Coordinator) do(ctx context.Context, key Key, appID string, refresh bool, compute ComputeFunc) (*validation.Result, bool, error) {
	type outcome struct {
		result *validation.Result
		cached bool
	}
	// Refreshes never join a read's flight
	flight := key.String()
	if refresh {
		flight += "#refresh"
	}
	v, err, _ := c.group.Do(flight, func() (interface{}, error) {
		if c.store != nil && !refresh {
			entry, err := c.store.Get(ctx, key)
			switch {
			case err == nil:
				log.Printf("[CACHE] Hit %s for %s", key, appID)
				return outcome{result: entry.Result, cached: true}, nil
			case !errors.Is(err, ErrMiss):
				log.Printf("[CACHE] Warning: read %s failed, recomputing: %v", key, err)
			}
		}

		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		if c.store != nil {
			entry := &Entry{
				Fingerprint:   key.Fingerprint,
				Version:       key.Version,
				ApplicationID: appID,
				Result:        res,
				CreatedAt:     c.now().UTC(),
			}
			if err := c.store.Put(ctx, key, entry); err != nil {
				log.Printf("[CACHE] Warning: write %s failed: %v", key, err)
			}
		}
		return outcome{result: res}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := v.(outcome)
	return o.result, o.cached, nil
}
