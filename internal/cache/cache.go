// Package cache provides the per-scan resource cache.
//
// A Store lives for exactly one scan invocation and is the only mutable
// structure shared across concurrently running scanners. It deduplicates
// upstream API calls: when fifteen checks all need the bucket listing for
// the same account and region, the underlying fetch runs once.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies one cached resource listing. Stores are scoped to a single
// scan and a single account, so the account segment exists to keep keys
// self-describing in logs, never to share entries across tenants.
type Key struct {
	Account      string
	Region       string
	ResourceType string
}

// String renders the key for singleflight grouping and log lines.
func (k Key) String() string {
	return k.Account + "/" + k.Region + "/" + k.ResourceType
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Store is a per-scan key/value cache with per-key in-flight deduplication.
// Unrelated keys never contend: the singleflight group locks per key, and the
// backing map is guarded only for the short store/load window.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]entry
	flight  singleflight.Group
}

// New returns an empty Store. Create one per scan invocation and drop it when
// the scan completes; entries are never shared across scans or accounts.
func New() *Store {
	return &Store{entries: make(map[Key]entry)}
}

// GetOrFetch returns the cached value for key, or invokes fetch exactly once
// to populate it. Concurrent callers for the same key share a single in-flight
// fetch and all receive its result. Fetch errors are not cached, so a later
// caller may retry.
func (s *Store) GetOrFetch(ctx context.Context, key Key, fetch func(context.Context) (any, error)) (any, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e.value, nil
	}

	v, err, _ := s.flight.Do(key.String(), func() (any, error) {
		// Re-check under the group lock: a previous flight may have stored
		// the entry between our read miss and joining the group.
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			return e.value, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[key] = entry{value: value, fetchedAt: time.Now()}
		s.mu.Unlock()
		return value, nil
	})
	return v, err
}

// Len returns the number of cached entries. Used for scan metrics and tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Fetch is the typed wrapper around GetOrFetch. Scanners use it to cache
// their resource listings without repeating assertions.
func Fetch[T any](ctx context.Context, s *Store, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := s.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return t, nil
}
