package wbrbcache

// runMainProcessor is the C6 worker: the lifecycle driver. It pops entries
// whose main-queue deadline has elapsed and asks the SPI what to do next.
func (c *Cache[K, Uext, Uint, S, C, R]) runMainProcessor() {
	defer c.wg.Done()
	for {
		item, ok := c.mainQueue.PopReady(c.ctx)
		if !ok {
			if c.ctx.Err() != nil {
				return
			}
			continue
		}
		c.safeRun("main-processor", func() { c.processMainQueueItem(item) })
	}
}

func (c *Cache[K, Uext, Uint, S, C, R]) processMainQueueItem(item mainQueueItem[K, C, Uint]) {
	entry := item.Entry
	entry.Lock()

	if entry.Status == RemovedFromCache {
		entry.Unlock()
		return
	}

	decision := c.policy.MakeMainQueueDecision(item.Key, entry, &c.cfg)

	switch decision {
	case MainQueueWrite:
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

			c.log.logApplyUpdateFail(item.Key, applyErr)
			c.returnQueue.Push(deadline, returnQueueItem[K, C, Uint]{Key: item.Key, Entry: entry, WriteFinalFailure: true})
			c.notifyEntryChange()
			return
		}

		entry.Payload.Cached = snapshot
		entry.Status = WritePending
		entry.WriteAttemptCount = 0
		entry.Unlock()

		c.writeQueue.Push(&WriteQueueItem[K, C]{Key: item.Key, Snapshot: snapshot, WriteAttemptCount: 0})
		c.bumpStat(func(s *engineStats) { s.writes++ })

	case MainQueueResync:
		entry.Status = ReadyResyncPending
		entry.Payload.BeginMerge()
		entry.Unlock()

		c.readQueue.Push(readQueueItem[K, C, Uint]{Key: item.Key, Entry: entry, Attempt: 0, IsResync: true})
		c.bumpStat(func(s *engineStats) { s.resyncs++ })

	case MainQueueExpireFromCache:
		entry.Unlock()
		c.registry.remove(item.Key, entry, c.log)
		c.bumpStat(func(s *engineStats) { s.disposExpired++ })

	case MainQueueRemoveFromCache:
		entry.Unlock()
		c.log.logWriteFailedFinalDataDiscarded(item.Key)
		c.registry.remove(item.Key, entry, c.log)
		c.bumpStat(func(s *engineStats) { s.disposRemoved++ })

	case MainQueueRequeue:
		entry.MainQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.MainQueueCacheTimeMs)
		deadline := entry.MainQueueDeadlineMs
		entry.Unlock()
		c.mainQueue.Push(deadline, item)
		c.bumpStat(func(s *engineStats) { s.disposRequeued++ })

	case MainQueueNonStandard:
		entry.MainQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.MainQueueCacheTimeMs)
		deadline := entry.MainQueueDeadlineMs
		entry.Unlock()
		c.log.logMainQueueNonStandard(item.Key)
		c.mainQueue.Push(deadline, item)

	default:
		entry.Unlock()
	}

	c.notifyEntryChange()
}

func (c *Cache[K, Uext, Uint, S, C, R]) bumpStat(fn func(*engineStats)) {
	c.stats.mu.Lock()
	fn(&c.stats)
	c.stats.mu.Unlock()
}
