package wbrbcache

import (
	"context"
	"time"
)

// runWriteProcessor is the C5 worker: drains the write queue, splits each
// snapshot via the embedder's SplitForWrite adapter, dispatches the
// persisted half to storage (optionally via the bounded write pool), and
// delivers the outcome through apiStorageWriteSuccess/apiStorageWriteFail.
func (c *Cache[K, Uext, Uint, S, C, R]) runWriteProcessor() {
	defer c.wg.Done()
	for {
		item, ok := c.writeQueue.Pop(c.ctx)
		if !ok {
			if c.ctx.Err() != nil {
				return
			}
			continue
		}

		batch := []*WriteQueueItem[K, C]{item}
		if c.cfg.WriteBatchDelayMs > 0 {
			time.Sleep(time.Duration(c.cfg.WriteBatchDelayMs) * time.Millisecond)
			batch = append(batch, c.writeQueue.PopAll()...)
		}

		for _, it := range batch {
			it := it
			dispatch := func() { c.dispatchWrite(it) }
			if c.writePool != nil {
				c.writePool.Go(func() error {
					c.safeRun("write-pool", dispatch)
					return nil
				})
			} else {
				c.safeRun("write-processor", dispatch)
			}
		}
	}
}

func (c *Cache[K, Uext, Uint, S, C, R]) dispatchWrite(item *WriteQueueItem[K, C]) {
	cNext, toWrite, err := c.adapters.SplitForWrite(item.Snapshot)
	if err != nil {
		c.log.logSplitForWriteFail(item.Key, err)
		c.abandonWrite(item, cNext)
		return
	}

	writeCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	if werr := c.storage.Write(writeCtx, item.Key, toWrite); werr != nil {
		c.apiStorageWriteFail(item, werr)
		return
	}
	c.apiStorageWriteSuccess(item, cNext)
}

// abandonWrite handles a SplitForWrite failure: the write is abandoned
// (spec §4.6) and the entry is driven straight to its final-write-failure
// disposition, since there is no well-formed storage payload to retry with.
func (c *Cache[K, Uext, Uint, S, C, R]) abandonWrite(item *WriteQueueItem[K, C], cNext C) {
	entry, ok := c.registry.get(item.Key)
	if !ok {
		return
	}
	entry.Lock()
	entry.Payload.Cached = cNext
	entry.Payload.EndMerge()
	entry.Status = WriteFailedFinal
	entry.ConsecutiveWriteFailures++
	entry.ConsecutiveFullCyclesNoWrite++
	entry.ReturnQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.ReturnQueueCacheTimeMinMs)
	deadline := entry.ReturnQueueDeadlineMs
	entry.Unlock()

	c.returnQueue.Push(deadline, returnQueueItem[K, C, Uint]{Key: item.Key, Entry: entry, WriteFinalFailure: true})
	c.notifyEntryChange()
}

func (c *Cache[K, Uext, Uint, S, C, R]) apiStorageWriteSuccess(item *WriteQueueItem[K, C], cNext C) {
	entry, ok := c.registry.get(item.Key)
	if !ok {
		return
	}
	entry.Lock()
	entry.Payload.Cached = cNext
	entry.Payload.EndMerge()
	entry.LastWriteAtMs = c.nowMs()
	if c.policy.IsResetFailureCounts(item.Key, entry) {
		entry.ResetFailureCounters()
	}
	entry.WriteAttemptCount = 0

	switch entry.Status {
	case WritePendingResyncPending:
		entry.Status = ReadyResyncPending
	default:
		entry.Status = Ready
	}
	entry.ReturnQueueDeadlineMs = c.addVirtual(entry.LastWriteAtMs, c.cfg.ReturnQueueCacheTimeMinMs)
	deadline := entry.ReturnQueueDeadlineMs
	entry.Unlock()

	c.returnQueue.Push(deadline, returnQueueItem[K, C, Uint]{Key: item.Key, Entry: entry, WriteSucceeded: true})
	c.notifyEntryChange()
}

func (c *Cache[K, Uext, Uint, S, C, R]) apiStorageWriteFail(item *WriteQueueItem[K, C], err error) {
	entry, ok := c.registry.get(item.Key)
	if !ok {
		return
	}

	c.log.logStorageWriteFail(item.Key, err)

	entry.Lock()
	entry.Payload.LastWriteError = err
	entry.ConsecutiveWriteFailures++
	decision := c.policy.MakeWriteRetryDecision(err, item.Key, entry, item.WriteAttemptCount, c.cfg.WriteRetryLimit)

	if decision == WriteRetryRetry {
		item.WriteAttemptCount++
		entry.WriteAttemptCount = item.WriteAttemptCount
		entry.Unlock()
		c.writeQueue.Push(item)
		c.notifyEntryChange()
		return
	}

	entry.Payload.EndMerge()
	entry.Status = WriteFailedFinal
	entry.ConsecutiveFullCyclesNoWrite++
	entry.ReturnQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.ReturnQueueCacheTimeMinMs)
	deadline := entry.ReturnQueueDeadlineMs
	entry.Unlock()

	c.log.logStorageWriteFailFinal(item.Key, err)
	c.returnQueue.Push(deadline, returnQueueItem[K, C, Uint]{Key: item.Key, Entry: entry, WriteFinalFailure: true})
	c.notifyEntryChange()
}
