package wbrbcache

import (
	"context"
	"time"
)

// runReadProcessor is the C4 worker: the single long-lived goroutine that
// drains the read queue, dispatches each item to storage (optionally via the
// bounded read pool), and delivers the outcome back through
// apiStorageReadSuccess/apiStorageReadFail. Per spec §5, the worker never
// holds an entry lock while blocked in queue dequeue or storage I/O.
func (c *Cache[K, Uext, Uint, S, C, R]) runReadProcessor() {
	defer c.wg.Done()
	for {
		item, ok := c.readQueue.Pop(c.ctx)
		if !ok {
			if c.ctx.Err() != nil {
				return
			}
			continue
		}

		batch := []readQueueItem[K, C, Uint]{item}
		if c.cfg.ReadBatchDelayMs > 0 {
			time.Sleep(time.Duration(c.cfg.ReadBatchDelayMs) * time.Millisecond)
			batch = append(batch, c.readQueue.PopAll()...)
		}

		for _, it := range batch {
			it := it
			dispatch := func() {
				c.dispatchRead(it)
			}
			if c.readPool != nil {
				c.readPool.Go(func() error {
					c.safeRun("read-pool", dispatch)
					return nil
				})
			} else {
				c.safeRun("read-processor", dispatch)
			}
		}
	}
}

// safeRun executes fn, restarting (logging and continuing) on panic instead
// of letting the worker die — the Go analogue of the spec's "restart on
// InterruptedException-equivalent cancellations" rule: a worker never exits
// because one item's processing misbehaved.
func (c *Cache[K, Uext, Uint, S, C, R]) safeRun(worker string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			var err error
			if e, ok := r.(error); ok {
				err = e
			}
			c.log.logProcessorUnexpectedInterrupt(worker, err)
		}
	}()
	fn()
}

func (c *Cache[K, Uext, Uint, S, C, R]) dispatchRead(item readQueueItem[K, C, Uint]) {
	readCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	c.bumpStat(func(s *engineStats) { s.reads++ })

	value, storageErr, dedup := c.readGroup.Do(singleflightKey(item.Key), func() (any, error) {
		return c.storage.Read(readCtx, item.Key)
	})
	_ = dedup

	if storageErr != nil {
		c.apiStorageReadFail(item, storageErr)
		return
	}
	c.apiStorageReadSuccess(item, value.(S))
}

// apiStorageReadSuccess delivers a successful storage read back to the
// entry's state machine.
func (c *Cache[K, Uext, Uint, S, C, R]) apiStorageReadSuccess(item readQueueItem[K, C, Uint], storageValue S) {
	entry := item.Entry
	entry.Lock()
	status := entry.Status

	switch status {
	case InitialReadPending:
		cached, err := c.adapters.FromStorage(item.Key, storageValue)
		if err != nil {
			entry.Payload.LastReadError = err
			entry.Unlock()
			c.apiStorageReadFail(item, err)
			return
		}
		entry.Payload.Cached = cached
		entry.Payload.HasCached = true
		entry.Status = Ready
		entry.LastReadAtMs = c.nowMs()
		entry.MainQueueDeadlineMs = c.addVirtual(entry.LastReadAtMs, c.cfg.MainQueueCacheTimeMs)
		mqItem := mainQueueItem[K, C, Uint]{Key: item.Key, Entry: entry}
		entry.Unlock()
		c.mainQueue.Push(mqItem.Entry.MainQueueDeadlineMs, mqItem)

	case ReadyResyncPending:
		merging := entry.Payload.InFlightMerge
		outcome := c.policy.MakeMergeDecision(item.Key, entry, len(merging), c.cfg.MaxUpdatesPerElement)
		if outcome == MergeTooLate {
			entry.Status = ReadyResyncFailedFinal
			entry.ResyncTooLateCount++
			entry.Payload.EndMerge()
			entry.Unlock()
			c.log.logResyncIsTooLate(item.Key)
			return
		}

		merged, err := c.adapters.Merge(item.Key, entry.Payload.Cached, storageValue, merging)
		if err != nil {
			entry.Payload.LastReadError = err
			entry.Status = ReadyResyncFailedFinal
			entry.Payload.EndMerge()
			entry.Unlock()
			c.log.logResyncIsTooLate(item.Key)
			return
		}
		entry.Payload.Cached = merged
		entry.Payload.EndMerge()
		entry.Status = Ready
		entry.LastResyncAtMs = c.nowMs()
		if c.policy.IsResetFailureCounts(item.Key, entry) {
			entry.ResetFailureCounters()
		}
		entry.MainQueueDeadlineMs = c.addVirtual(entry.LastResyncAtMs, c.cfg.MainQueueCacheTimeMs)
		mqItem := mainQueueItem[K, C, Uint]{Key: item.Key, Entry: entry}
		deadline := entry.MainQueueDeadlineMs
		entry.Unlock()
		c.mainQueue.Push(deadline, mqItem)

	case RemovedFromCache:
		entry.Unlock()
		c.retryAfterRemoved(item)

	default:
		entry.Unlock()
		c.log.logUnexpectedCacheStateForReadMerge(item.Key, status)
	}

	c.notifyEntryChange()
}

// apiStorageReadFail delivers a failed storage read back to the entry's
// state machine, consulting the SPI retry decision.
func (c *Cache[K, Uext, Uint, S, C, R]) apiStorageReadFail(item readQueueItem[K, C, Uint], err error) {
	entry := item.Entry
	entry.Lock()
	status := entry.Status
	entry.Payload.LastReadError = err

	switch status {
	case InitialReadPending:
		entry.ConsecutiveReadFailures++
		decision := c.policy.MakeReadRetryDecision(err, item.Key, entry, item.Attempt, c.cfg.ReadRetryLimit)
		if decision == ReadRetryRetry {
			next := item
			next.Attempt++
			entry.Unlock()
			c.readQueue.Push(next)
			c.notifyEntryChange()
			return
		}
		entry.Status = InitialReadFailedFinal
		entry.Unlock()
		c.notifyEntryChange()

	case ReadyResyncPending:
		entry.ConsecutiveReadFailures++
		decision := c.policy.MakeReadRetryDecision(err, item.Key, entry, item.Attempt, c.cfg.ReadRetryLimit)
		if decision == ReadRetryRetry {
			next := item
			next.Attempt++
			entry.Unlock()
			c.readQueue.Push(next)
			c.notifyEntryChange()
			return
		}
		c.policy.MakeResyncFailedFinalDecision(item.Key, entry)
		entry.Status = ReadyResyncFailedFinal
		entry.Payload.EndMerge()
		entry.Unlock()
		c.notifyEntryChange()

	case RemovedFromCache:
		entry.Unlock()
		c.retryAfterRemoved(item)

	default:
		entry.Unlock()
		c.log.logUnexpectedCacheStateForReadMerge(item.Key, status)
	}
}

// retryAfterRemoved implements the bounded "observed REMOVED_FROM_CACHE,
// retry the whole cache-side operation" rule (spec §4.2's remove-from-cache
// retry edge policy): re-admit a fresh entry for the key and re-issue the
// read, up to Config.RemovedFromCacheRetryLimit times.
func (c *Cache[K, Uext, Uint, S, C, R]) retryAfterRemoved(item readQueueItem[K, C, Uint]) {
	item.Entry.Lock()
	item.Entry.RemovedRetryCount++
	count := item.Entry.RemovedRetryCount
	item.Entry.Unlock()

	if count > c.cfg.RemovedFromCacheRetryLimit {
		c.log.logTooManyRemovedFromCacheRetries(item.Key)
		return
	}

	fresh, err := c.registry.add(item.Key, c.nowMs())
	if err != nil {
		// Cache is full; nothing more to do for this background retry.
		return
	}
	fresh.Lock()
	if fresh.Status == NotPresent {
		fresh.Status = InitialReadPending
	}
	fresh.Unlock()
	c.readQueue.Push(readQueueItem[K, C, Uint]{Key: item.Key, Entry: fresh, Attempt: 0, IsResync: item.IsResync})
}

func singleflightKey[K comparable](k K) string {
	return anyToString(k)
}
