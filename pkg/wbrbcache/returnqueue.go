package wbrbcache

// runReturnProcessor is the C7 worker: after a write completes and its
// minimum dwell time elapses, asks the SPI for the final disposition.
func (c *Cache[K, Uext, Uint, S, C, R]) runReturnProcessor() {
	defer c.wg.Done()
	for {
		item, ok := c.returnQueue.PopReady(c.ctx)
		if !ok {
			if c.ctx.Err() != nil {
				return
			}
			continue
		}
		c.safeRun("return-processor", func() { c.processReturnQueueItem(item) })
	}
}

func (c *Cache[K, Uext, Uint, S, C, R]) processReturnQueueItem(item returnQueueItem[K, C, Uint]) {
	entry := item.Entry
	entry.Lock()

	if entry.Status == RemovedFromCache {
		entry.Unlock()
		return
	}

	decision := c.policy.MakeReturnQueueProcessingDecision(item.Key, entry, item.WriteSucceeded, item.WriteFinalFailure)

	switch decision {
	case ReturnQueueExpire:
		entry.Unlock()
		c.registry.remove(item.Key, entry, c.log)
		c.bumpStat(func(s *engineStats) { s.disposExpired++ })

	case ReturnQueueRemove:
		entry.Unlock()
		c.registry.remove(item.Key, entry, c.log)
		c.bumpStat(func(s *engineStats) { s.disposRemoved++; s.writeFailures++ })

	case ReturnQueueRequeue:
		entry.ReturnQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.ReturnQueueCacheTimeMinMs)
		deadline := entry.ReturnQueueDeadlineMs
		entry.Unlock()
		c.returnQueue.Push(deadline, item)

	case ReturnQueueNonStandard:
		entry.ReturnQueueDeadlineMs = c.addVirtual(c.nowMs(), c.cfg.ReturnQueueCacheTimeMinMs)
		deadline := entry.ReturnQueueDeadlineMs
		entry.Unlock()
		c.log.logReturnQueueNonStandard(item.Key)
		c.returnQueue.Push(deadline, item)

	default: // ReturnQueueDoNothing
		entry.Unlock()
	}

	c.notifyEntryChange()
}
