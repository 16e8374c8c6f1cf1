package wbrbcache

import (
	"context"
	"time"
)

// Read admits the entry for key if absent, then blocks (up to
// Config.ReadTimeout) until it reaches a readable state. On timeout it
// returns ErrCacheElementNotYetLoaded; on terminal read failure it returns
// ErrCacheElementFailedLoading; on a full cache it returns ErrCacheFull.
func (c *Cache[K, Uext, Uint, S, C, R]) Read(ctx context.Context, key K) (R, error) {
	var zero R
	if !c.IsUsable() {
		return zero, newErr(KindIllegalCacheState, key, "cache is not running", nil)
	}

	entry, err := c.admit(key)
	if err != nil {
		return zero, err
	}

	deadline := time.Now().Add(time.Duration(c.cfg.ReadTimeout) * time.Millisecond)
	reached := c.waitForEntry(ctx, entry, deadline, func() bool {
		return entry.Payload.HasCached || entry.Status == InitialReadFailedFinal
	})
	if !reached {
		return zero, newErr(KindCacheElementNotYetLoaded, key, "read timed out waiting for entry to load", nil)
	}

	entry.RLock()
	status := entry.Status
	hasCached := entry.Payload.HasCached
	cached := entry.Payload.Cached
	entry.RUnlock()

	if !hasCached {
		if status == InitialReadFailedFinal {
			return zero, newErr(KindCacheElementFailedLoading, key, "initial read exhausted retries", entry.Payload.LastReadError)
		}
		return zero, newErr(KindCacheElementNotYetLoaded, key, "entry not yet loaded", nil)
	}

	rv, cerr := c.adapters.ToReturnValue(key, cached)
	if cerr != nil {
		return zero, newErr(KindIllegalExternalState, key, "ToReturnValue adapter failed", cerr)
	}

	entry.Lock()
	entry.LastReadAtMs = c.nowMs()
	entry.Unlock()

	return rv, nil
}

// Write admits the entry for key if absent, converts ext via the embedder's
// ConvertUpdate adapter, and appends the resulting internal update to the
// entry's pending list.
func (c *Cache[K, Uext, Uint, S, C, R]) Write(ctx context.Context, key K, ext Uext) error {
	if !c.IsUsable() {
		return newErr(KindIllegalCacheState, key, "cache is not running", nil)
	}

	entry, err := c.admit(key)
	if err != nil {
		return err
	}

	uintUpd, cerr := c.adapters.ConvertUpdate(key, ext)
	if cerr != nil {
		return newErr(KindIllegalExternalState, key, "ConvertUpdate adapter failed", cerr)
	}

	entry.Lock()
	if entry.Status == WriteFailedFinal {
		entry.Unlock()
		return newErr(KindCacheElementFailedWrite, key, "entry is in WRITE_FAILED_FINAL", entry.Payload.LastWriteError)
	}
	if !entry.Payload.AppendUpdate(uintUpd, c.cfg.MaxUpdatesPerElement) {
		entry.Unlock()
		return newErr(KindCacheElementHasTooManyUpdates, key, "pending update buffer is full", nil)
	}
	entry.Unlock()

	c.notifyEntryChange()
	return nil
}

// Preload admits the entry for key if absent and returns immediately once it
// exists, without waiting for its data to load.
func (c *Cache[K, Uext, Uint, S, C, R]) Preload(ctx context.Context, key K) error {
	if !c.IsUsable() {
		return newErr(KindIllegalCacheState, key, "cache is not running", nil)
	}
	_, err := c.admit(key)
	return err
}

// admit is the shared registry-add-and-enqueue-initial-read logic used by
// Read/Write/Preload.
func (c *Cache[K, Uext, Uint, S, C, R]) admit(key K) (*CacheEntry[K, C, Uint], error) {
	entry, err := c.registry.add(key, c.nowMs())
	if err != nil {
		return nil, err
	}

	entry.Lock()
	needsRead := entry.Status == NotPresent
	if needsRead {
		entry.Status = InitialReadPending
	}
	entry.Unlock()

	if needsRead {
		c.readQueue.Push(readQueueItem[K, C, Uint]{Key: key, Entry: entry, Attempt: 0})
	}
	return entry, nil
}

// dirty reports whether an entry still has work outstanding that Flush /
// Shutdown must wait for: either storage I/O in flight, or unwritten
// updates sitting in Ready state.
func dirty[K comparable, C any, Uint any](entry *CacheEntry[K, C, Uint]) bool {
	entry.RLock()
	defer entry.RUnlock()
	switch entry.Status {
	case InitialReadPending, ReadyResyncPending, WritePending, WritePendingResyncPending:
		return true
	case Ready:
		return entry.Payload.UpdateCount() > 0
	default:
		return false
	}
}

// Flush requests all entries to be written back, blocking up to limitMs
// (virtual ms). It emits FLUSH_SPOOLDOWN_NOT_ACHIEVED if entries remain
// dirty once the deadline elapses.
func (c *Cache[K, Uext, Uint, S, C, R]) Flush(ctx context.Context, limitMs TimeInterval) error {
	c.ctrlMu.Lock()
	if c.ctrlState == Running {
		c.ctrlState = Flushing
	}
	c.ctrlMu.Unlock()

	c.forceWriteDirtyEntries()

	deadline := time.UnixMilli(c.addVirtual(c.nowMs(), limitMs))
	complete := c.waitUntilClean(ctx, deadline)

	c.ctrlMu.Lock()
	if c.ctrlState == Flushing {
		c.ctrlState = Running
	}
	c.ctrlMu.Unlock()

	if !complete {
		c.log.logFlushSpooldownNotAchieved()
		return newErr(KindIllegalCacheState, nil, "flush spooldown not achieved within limit", nil)
	}
	return nil
}

// Shutdown performs an orderly stop: like Flush, but on completion (or
// timeout) it stops the worker goroutines and transitions to Shutdown.
func (c *Cache[K, Uext, Uint, S, C, R]) Shutdown(ctx context.Context, limitMs TimeInterval) error {
	c.ctrlMu.Lock()
	c.ctrlState = ShutdownInProgress
	c.ctrlMu.Unlock()

	c.forceWriteDirtyEntries()

	deadline := time.UnixMilli(c.addVirtual(c.nowMs(), limitMs))
	complete := c.waitUntilClean(ctx, deadline)

	if c.cancel != nil {
		c.cancel()
	}
	c.readQueue.Close()
	c.writeQueue.Close()
	c.mainQueue.Close()
	c.returnQueue.Close()
	c.wg.Wait()

	c.ctrlMu.Lock()
	c.ctrlState = Shutdown
	c.ctrlMu.Unlock()

	if !complete {
		c.log.logShutdownSpooldownNotAchieved()
		return newErr(KindIllegalCacheState, nil, "shutdown spooldown not achieved within limit", nil)
	}
	c.log.logShutdownCompleted()
	return nil
}

// IsAlive reports whether the cache's worker goroutines are still running
// (the inverse of having completed Shutdown).
func (c *Cache[K, Uext, Uint, S, C, R]) IsAlive() bool {
	return c.ControlState() != Shutdown
}

func (c *Cache[K, Uext, Uint, S, C, R]) forceWriteDirtyEntries() {
	for _, key := range c.registry.keys() {
		entry, ok := c.registry.get(key)
		if !ok {
			continue
		}
		entry.Lock()
		if entry.Status == Ready && entry.Payload.UpdateCount() > 0 {
			merging := entry.Payload.BeginMerge()
			snapshot := entry.Payload.Cached
			var applyErr error
			for _, u := range merging {
				snapshot, applyErr = c.adapters.Apply(u, snapshot)
				if applyErr != nil {
					break
				}
			}
			if applyErr != nil {
				entry.Payload.LastWriteError = applyErr
				entry.Payload.EndMerge()
				entry.Status = WriteFailedFinal
				entry.ConsecutiveWriteFailures++
				entry.ConsecutiveFullCyclesNoWrite++
				entry.ReturnQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.ReturnQueueCacheTimeMinMs)
				deadline := entry.ReturnQueueDeadlineMs
				entry.Unlock()

				c.log.logApplyUpdateFail(key, applyErr)
				c.returnQueue.Push(deadline, returnQueueItem[K, C, Uint]{Key: key, Entry: entry, WriteFinalFailure: true})
				c.notifyEntryChange()
				continue
			}

			entry.Payload.Cached = snapshot
			entry.Status = WritePending
			entry.WriteAttemptCount = 0
			entry.Unlock()
			c.writeQueue.Push(&WriteQueueItem[K, C]{Key: key, Snapshot: snapshot})
			continue
		}
		entry.Unlock()
	}
}

func (c *Cache[K, Uext, Uint, S, C, R]) waitUntilClean(ctx context.Context, deadline time.Time) bool {
	const pollInterval = 5 * time.Millisecond
	for {
		anyDirty := false
		for _, key := range c.registry.keys() {
			entry, ok := c.registry.get(key)
			if !ok {
				continue
			}
			if dirty[K, C, Uint](entry) {
				anyDirty = true
				break
			}
		}
		if !anyDirty {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
}
