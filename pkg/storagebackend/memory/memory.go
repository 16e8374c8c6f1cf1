// Package memory provides an in-memory wbrbcache.Storage implementation used
// for tests and local development. It never talks to a real backing store.
package memory

import (
	"context"
	"sync"

	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

// Backend is a trivial map-backed Storage[K, S], guarded by a mutex. Reads
// for a key never written return wbrbcache.ErrCacheElementFailedLoading so
// callers exercise the same not-found path a real backend would produce.
type Backend[K comparable, S any] struct {
	mu   sync.RWMutex
	data map[K]S

	// FailReads/FailWrites, when set, are consulted on every call so tests
	// can simulate transient or permanent backend outages.
	FailReads  func(key K) error
	FailWrites func(key K, value S) error
}

// New creates an empty Backend.
func New[K comparable, S any]() *Backend[K, S] {
	return &Backend[K, S]{data: make(map[K]S)}
}

// Read implements wbrbcache.Storage.
func (b *Backend[K, S]) Read(ctx context.Context, key K) (S, error) {
	var zero S
	if b.FailReads != nil {
		if err := b.FailReads(key); err != nil {
			return zero, err
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return zero, wbrbcache.ErrCacheElementFailedLoading
	}
	return v, nil
}

// Write implements wbrbcache.Storage.
func (b *Backend[K, S]) Write(ctx context.Context, key K, value S) error {
	if b.FailWrites != nil {
		if err := b.FailWrites(key, value); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

// Seed directly installs a value, bypassing Write/FailWrites — used by tests
// to set up pre-existing storage state.
func (b *Backend[K, S]) Seed(key K, value S) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
}

// Snapshot returns a copy of the current contents, for test assertions.
func (b *Backend[K, S]) Snapshot() map[K]S {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[K]S, len(b.data))
	for k, v := range b.data {
		out[k] = v
	}
	return out
}
