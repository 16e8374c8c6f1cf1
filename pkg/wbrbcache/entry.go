package wbrbcache

import "sync"

// CacheEntry is the per-key record (spec §3). It is owned exclusively by the
// key registry; queue items reference it but never outlive the registry's
// ownership of it. All mutation happens under Lock (write lock); read-only
// observation uses RLock. No two entries' locks are ever held simultaneously
// by one goroutine — this is a hard design invariant and must not be
// "optimised" into a lock-free structure (see DESIGN.md).
type CacheEntry[K comparable, C any, Uint any] struct {
	mu sync.RWMutex

	Key     K
	Status  EntryStatus
	Payload Payload[C, Uint]

	CreatedAtMs      int64
	LastReadAtMs     int64
	LastWriteAtMs    int64
	LastResyncAtMs   int64
	MainQueueDeadlineMs   int64
	ReturnQueueDeadlineMs int64

	ConsecutiveReadFailures       int
	ConsecutiveWriteFailures      int
	ConsecutiveFullCyclesNoWrite  int
	ResyncTooLateCount            int

	// RemovedRetryCount tracks how many times a worker has retried a
	// cache-side operation after observing RemovedFromCache for this exact
	// entry object (the counter resets once a fresh entry is admitted,
	// since it lives on the entry, not the key).
	RemovedRetryCount int

	// WriteAttemptCount is threaded through to the write-queue entry for
	// the currently in-flight write, if any.
	WriteAttemptCount int
}

// NewCacheEntry constructs a fresh entry in NotPresent state.
func NewCacheEntry[K comparable, C any, Uint any](key K, nowMs int64) *CacheEntry[K, C, Uint] {
	return &CacheEntry[K, C, Uint]{
		Key:         key,
		Status:      NotPresent,
		CreatedAtMs: nowMs,
	}
}

// Lock acquires the entry's write lock for a state transition or mutation.
func (e *CacheEntry[K, C, Uint]) Lock() { e.mu.Lock() }

// Unlock releases the write lock.
func (e *CacheEntry[K, C, Uint]) Unlock() { e.mu.Unlock() }

// RLock acquires the entry's read lock for observation only.
func (e *CacheEntry[K, C, Uint]) RLock() { e.mu.RLock() }

// RUnlock releases the read lock.
func (e *CacheEntry[K, C, Uint]) RUnlock() { e.mu.RUnlock() }

// ResetFailureCounters zeroes the consecutive-failure counters; called by
// the main queue processor on a successful full cycle, per the default
// counter-reset policy (SPI IsResetFailureCounts may override this).
func (e *CacheEntry[K, C, Uint]) ResetFailureCounters() {
	e.ConsecutiveReadFailures = 0
	e.ConsecutiveWriteFailures = 0
	e.ConsecutiveFullCyclesNoWrite = 0
}

// WriteQueueItem is the record the write queue carries for one in-flight
// write (spec §3): a snapshot of the cache value at the time the write was
// scheduled, plus the attempt count for retry accounting. It is owned by the
// write queue while in flight and releases payload data back to the entry on
// completion (the entry's Payload.PendingUpdates keeps accumulating updates
// that arrived after the snapshot was taken).
type WriteQueueItem[K comparable, C any] struct {
	Key               K
	Snapshot          C
	WriteAttemptCount int
}
