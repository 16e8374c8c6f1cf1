package wbrbcache

// This file implements the SPI decision surface (C9): a set of pluggable
// decision hooks an embedder may override, each wrapped by a guard that
// catches any panic, emits an SPI_EXCEPTION_<hook> event, and substitutes a
// safe default so a misbehaving policy never aborts a worker.

// ReadRetryDecision is returned by Policy.MakeReadRetryDecision.
type ReadRetryDecision int

const (
	ReadRetryRetry ReadRetryDecision = iota
	ReadRetryFinalFail
)

// WriteRetryDecision is returned by Policy.MakeWriteRetryDecision.
type WriteRetryDecision int

const (
	WriteRetryRetry WriteRetryDecision = iota
	WriteRetryFinalFail
)

// MainQueueDecision is returned by Policy.MakeMainQueueDecision (spec §4.5).
type MainQueueDecision int

const (
	MainQueueWrite MainQueueDecision = iota
	MainQueueResync
	MainQueueExpireFromCache
	MainQueueRemoveFromCache
	MainQueueRequeue
	MainQueueNonStandard
)

// ReturnQueueDecision is returned by Policy.MakeReturnQueueProcessingDecision
// (spec §4.7).
type ReturnQueueDecision int

const (
	ReturnQueueDoNothing ReturnQueueDecision = iota
	ReturnQueueExpire
	ReturnQueueRemove
	ReturnQueueRequeue
	ReturnQueueNonStandard
)

// MergeOutcome is returned by Policy.MakeMergeDecision when a resync read
// completes while updates were collected against an entry (spec §4.2's edge
// policy).
type MergeOutcome int

const (
	// MergeProceed means the embedder's Merge adapter should be invoked
	// normally.
	MergeProceed MergeOutcome = iota
	// MergeTooLate means the SPI has decided the merge is impossible or the
	// update buffer overflowed; the entry transitions to
	// ReadyResyncFailedFinal carrying a data-loss cause, and
	// RESYNC_IS_TOO_LATE is logged as EXTERNAL_DATA_LOSS.
	MergeTooLate
)

// Policy is the full SPI surface. DefaultPolicy below implements the
// spec-documented default behaviour; embedders may supply their own, or
// embed DefaultPolicy and override individual hooks.
type Policy[K comparable, C any, Uint any] interface {
	// MakeReadRetryDecision decides whether a failed storage read (initial
	// or resync) should be retried.
	MakeReadRetryDecision(err error, key K, entry *CacheEntry[K, C, Uint], attempt int, readRetryLimit int) ReadRetryDecision

	// MakeResyncFailedFinalDecision is consulted when a resync read has
	// exhausted its retries; it chooses the data-loss action (currently a
	// single supported action: mark ReadyResyncFailedFinal and keep serving
	// stale cached data, which is the only behaviour meaningful without a
	// second data-loss channel — retained as a hook for embedder overrides).
	MakeResyncFailedFinalDecision(key K, entry *CacheEntry[K, C, Uint])

	// MakeMergeDecision decides whether a resync's merge should proceed
	// given the number of updates collected while it was in flight.
	MakeMergeDecision(key K, entry *CacheEntry[K, C, Uint], pendingUpdateCount int, maxUpdatesPerElement int) MergeOutcome

	// MakeWriteRetryDecision decides whether a failed storage write should
	// be retried.
	MakeWriteRetryDecision(err error, key K, entry *CacheEntry[K, C, Uint], attempt int, writeRetryLimit int) WriteRetryDecision

	// MakeMainQueueDecision drives the lifecycle when an entry's main-queue
	// deadline elapses.
	MakeMainQueueDecision(key K, entry *CacheEntry[K, C, Uint], cfg *Config) MainQueueDecision

	// MakeReturnQueueProcessingDecision decides an entry's fate after a
	// write attempt completes (success or final failure) and its minimum
	// return-queue dwell time has elapsed.
	MakeReturnQueueProcessingDecision(key K, entry *CacheEntry[K, C, Uint], writeSucceeded bool, writeFinalFailure bool) ReturnQueueDecision

	// IsResetFailureCounts decides whether a successful cycle resets the
	// entry's consecutive-failure counters.
	IsResetFailureCounts(key K, entry *CacheEntry[K, C, Uint]) bool
}

// DefaultPolicy implements the spec's documented default behaviour for
// every hook (§4.4-§4.7, §4.9). Embedders can use it directly or embed it
// and override specific methods.
type DefaultPolicy[K comparable, C any, Uint any] struct{}

func (DefaultPolicy[K, C, Uint]) MakeReadRetryDecision(err error, key K, entry *CacheEntry[K, C, Uint], attempt int, readRetryLimit int) ReadRetryDecision {
	if attempt >= readRetryLimit {
		return ReadRetryFinalFail
	}
	return ReadRetryRetry
}

func (DefaultPolicy[K, C, Uint]) MakeResyncFailedFinalDecision(key K, entry *CacheEntry[K, C, Uint]) {
	// Default: leave Cached as-is (stale) and record the terminal state;
	// the caller (read processor) sets Status = ReadyResyncFailedFinal.
}

func (DefaultPolicy[K, C, Uint]) MakeMergeDecision(key K, entry *CacheEntry[K, C, Uint], pendingUpdateCount int, maxUpdatesPerElement int) MergeOutcome {
	if pendingUpdateCount > maxUpdatesPerElement {
		return MergeTooLate
	}
	return MergeProceed
}

func (DefaultPolicy[K, C, Uint]) MakeWriteRetryDecision(err error, key K, entry *CacheEntry[K, C, Uint], attempt int, writeRetryLimit int) WriteRetryDecision {
	if attempt >= writeRetryLimit {
		return WriteRetryFinalFail
	}
	return WriteRetryRetry
}

func (DefaultPolicy[K, C, Uint]) MakeMainQueueDecision(key K, entry *CacheEntry[K, C, Uint], cfg *Config) MainQueueDecision {
	switch entry.Status {
	case Ready:
		if entry.Payload.UpdateCount() > 0 {
			return MainQueueWrite
		}
		return MainQueueResync
	case ReadyResyncPending, WritePending, WritePendingResyncPending:
		// Prior stage hasn't completed yet: requeue with an extended
		// deadline rather than double-dispatch.
		return MainQueueRequeue
	case ReadyResyncFailedFinal:
		return MainQueueResync
	case WriteFailedFinal:
		if entry.ConsecutiveFullCyclesNoWrite >= cfg.MaxFullCyclesWithoutWriteSuccess {
			return MainQueueRemoveFromCache
		}
		return MainQueueWrite
	default:
		return MainQueueNonStandard
	}
}

func (DefaultPolicy[K, C, Uint]) MakeReturnQueueProcessingDecision(key K, entry *CacheEntry[K, C, Uint], writeSucceeded bool, writeFinalFailure bool) ReturnQueueDecision {
	if writeSucceeded {
		return ReturnQueueExpire
	}
	if writeFinalFailure {
		return ReturnQueueRemove
	}
	// Write still retrying: not yet a terminal outcome for this dwell.
	return ReturnQueueDoNothing
}

func (DefaultPolicy[K, C, Uint]) IsResetFailureCounts(key K, entry *CacheEntry[K, C, Uint]) bool {
	return true
}

// spiSink is the narrow logging surface the guard needs.
type spiSink interface {
	logSPIException(hookName string, key any, err error)
}

// guardedPolicy wraps a Policy so every hook call is protected: a panicking
// hook is recovered, logged via SPI_EXCEPTION_<hookName>, and replaced with
// the corresponding safe default (falling back to DefaultPolicy's own
// behaviour for that hook).
type guardedPolicy[K comparable, C any, Uint any] struct {
	inner   Policy[K, C, Uint]
	fallback DefaultPolicy[K, C, Uint]
	sink    spiSink
}

func newGuardedPolicy[K comparable, C any, Uint any](inner Policy[K, C, Uint], sink spiSink) *guardedPolicy[K, C, Uint] {
	return &guardedPolicy[K, C, Uint]{inner: inner, sink: sink}
}

func (g *guardedPolicy[K, C, Uint]) guard(hookName string, key any, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			if g.sink != nil {
				var err error
				if e, ok := r.(error); ok {
					err = e
				}
				g.sink.logSPIException(hookName, key, err)
			}
		}
	}()
	fn()
	return false
}

func (g *guardedPolicy[K, C, Uint]) MakeReadRetryDecision(err error, key K, entry *CacheEntry[K, C, Uint], attempt int, readRetryLimit int) ReadRetryDecision {
	var out ReadRetryDecision
	if g.guard("MakeReadRetryDecision", key, func() {
		out = g.inner.MakeReadRetryDecision(err, key, entry, attempt, readRetryLimit)
	}) {
		return g.fallback.MakeReadRetryDecision(err, key, entry, attempt, readRetryLimit)
	}
	return out
}

func (g *guardedPolicy[K, C, Uint]) MakeResyncFailedFinalDecision(key K, entry *CacheEntry[K, C, Uint]) {
	if g.guard("MakeResyncFailedFinalDecision", key, func() {
		g.inner.MakeResyncFailedFinalDecision(key, entry)
	}) {
		g.fallback.MakeResyncFailedFinalDecision(key, entry)
	}
}

func (g *guardedPolicy[K, C, Uint]) MakeMergeDecision(key K, entry *CacheEntry[K, C, Uint], pendingUpdateCount int, maxUpdatesPerElement int) MergeOutcome {
	var out MergeOutcome
	if g.guard("MakeMergeDecision", key, func() {
		out = g.inner.MakeMergeDecision(key, entry, pendingUpdateCount, maxUpdatesPerElement)
	}) {
		return g.fallback.MakeMergeDecision(key, entry, pendingUpdateCount, maxUpdatesPerElement)
	}
	return out
}

func (g *guardedPolicy[K, C, Uint]) MakeWriteRetryDecision(err error, key K, entry *CacheEntry[K, C, Uint], attempt int, writeRetryLimit int) WriteRetryDecision {
	var out WriteRetryDecision
	if g.guard("MakeWriteRetryDecision", key, func() {
		out = g.inner.MakeWriteRetryDecision(err, key, entry, attempt, writeRetryLimit)
	}) {
		return g.fallback.MakeWriteRetryDecision(err, key, entry, attempt, writeRetryLimit)
	}
	return out
}

func (g *guardedPolicy[K, C, Uint]) MakeMainQueueDecision(key K, entry *CacheEntry[K, C, Uint], cfg *Config) MainQueueDecision {
	var out MainQueueDecision
	if g.guard("MakeMainQueueDecision", key, func() {
		out = g.inner.MakeMainQueueDecision(key, entry, cfg)
	}) {
		return g.fallback.MakeMainQueueDecision(key, entry, cfg)
	}
	return out
}

func (g *guardedPolicy[K, C, Uint]) MakeReturnQueueProcessingDecision(key K, entry *CacheEntry[K, C, Uint], writeSucceeded bool, writeFinalFailure bool) ReturnQueueDecision {
	var out ReturnQueueDecision
	if g.guard("MakeReturnQueueProcessingDecision", key, func() {
		out = g.inner.MakeReturnQueueProcessingDecision(key, entry, writeSucceeded, writeFinalFailure)
	}) {
		return g.fallback.MakeReturnQueueProcessingDecision(key, entry, writeSucceeded, writeFinalFailure)
	}
	return out
}

func (g *guardedPolicy[K, C, Uint]) IsResetFailureCounts(key K, entry *CacheEntry[K, C, Uint]) bool {
	var out bool
	if g.guard("IsResetFailureCounts", key, func() {
		out = g.inner.IsResetFailureCounts(key, entry)
	}) {
		return g.fallback.IsResetFailureCounts(key, entry)
	}
	return out
}
