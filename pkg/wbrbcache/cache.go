// Package wbrbcache implements a write-behind, resync-in-background cache:
// reads are served from memory once loaded, writes are absorbed in memory
// and written back asynchronously, and already-cached entries are
// periodically re-read from the backing store and merged with whatever
// updates accumulated in the meantime. See SPEC_FULL.md for the full design.
package wbrbcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/vtime"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrblog"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrbqueue"
)

// Cache is the public engine (C8 and the coordination point for C1-C7, C9).
// K, Uext, Uint, S, C, R are the six embedder-supplied types from spec §3.
type Cache[K comparable, Uext any, Uint any, S any, C any, R any] struct {
	cfg      Config
	storage  Storage[K, S]
	adapters Adapters[K, Uext, Uint, S, C, R]
	policy   *guardedPolicy[K, C, Uint]
	log      *engineLog
	core     *wbrblog.Core

	clock  vtime.Clock
	factor *vtime.Factor

	registry *registry[K, C, Uint]

	readQueue   *wbrbqueue.FIFO[readQueueItem[K, C, Uint]]
	writeQueue  *wbrbqueue.FIFO[*WriteQueueItem[K, C]]
	mainQueue   *wbrbqueue.DelayQueue[mainQueueItem[K, C, Uint]]
	returnQueue *wbrbqueue.DelayQueue[returnQueueItem[K, C, Uint]]

	readGroup singleflight.Group

	readPool  *errgroup.Group
	writePool *errgroup.Group

	ctrlMu    sync.Mutex
	ctrlState ControlState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// entryCond is broadcast by notifyEntryChange after the workers change
	// an entry. Nothing waits on it: Read and Flush poll instead.
	entryCond *sync.Cond
	entryMu   sync.Mutex

	stats engineStats
}

type engineStats struct {
	mu               sync.Mutex
	reads            int64
	resyncs          int64
	writes           int64
	writeFailures    int64
	disposExpired    int64
	disposRemoved    int64
	disposRequeued   int64
}

// New constructs a Cache using the real wall clock. policy may be nil, in
// which case DefaultPolicy is used. sink may be nil (events are counted
// internally but not forwarded).
func New[K comparable, Uext any, Uint any, S any, C any, R any](
	cfg Config,
	storage Storage[K, S],
	adapters Adapters[K, Uext, Uint, S, C, R],
	policy Policy[K, C, Uint],
	sink wbrblog.Sink,
) (*Cache[K, Uext, Uint, S, C, R], error) {
	return NewWithClock[K, Uext, Uint, S, C, R](cfg, storage, adapters, policy, sink, vtime.RealClock{})
}

// NewWithClock is New with an injectable vtime.Clock, letting tests drive the
// cache's notion of time deterministically via vtime.ManualClock instead of
// the wall clock.
func NewWithClock[K comparable, Uext any, Uint any, S any, C any, R any](
	cfg Config,
	storage Storage[K, S],
	adapters Adapters[K, Uext, Uint, S, C, R],
	policy Policy[K, C, Uint],
	sink wbrblog.Sink,
	clock vtime.Clock,
) (*Cache[K, Uext, Uint, S, C, R], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factor := vtime.NewFactor(cfg.TimeFactor)
	core := wbrblog.NewCore(clock, factor, int64(cfg.LogThrottleTimeInterval), cfg.LogThrottleMaxMessagesOfTypePerTimeInterval, sink)
	log := newEngineLog(core)

	if policy == nil {
		policy = DefaultPolicy[K, C, Uint]{}
	}

	c := &Cache[K, Uext, Uint, S, C, R]{
		cfg:      cfg,
		storage:  storage,
		adapters: adapters,
		policy:   newGuardedPolicy[K, C, Uint](policy, log),
		log:      log,
		core:     core,
		clock:    clock,
		factor:   factor,
		registry: newRegistry[K, C, Uint](cfg.MaxCacheElementsHardLimit),

		readQueue:   wbrbqueue.NewFIFO[readQueueItem[K, C, Uint]](),
		writeQueue:  wbrbqueue.NewFIFO[*WriteQueueItem[K, C]](),
		mainQueue:   wbrbqueue.NewDelayQueue[mainQueueItem[K, C, Uint]](clock.NowMs),
		returnQueue: wbrbqueue.NewDelayQueue[returnQueueItem[K, C, Uint]](clock.NowMs),

		ctrlState: NotStarted,
	}
	c.entryCond = sync.NewCond(&c.entryMu)

	if cfg.ReadWorkerPoolSize > 0 {
		c.readPool = &errgroup.Group{}
		c.readPool.SetLimit(cfg.ReadWorkerPoolSize)
	}
	if cfg.WriteWorkerPoolSize > 0 {
		c.writePool = &errgroup.Group{}
		c.writePool.SetLimit(cfg.WriteWorkerPoolSize)
	}

	return c, nil
}

// Start launches the four long-lived worker goroutines and transitions the
// control state to Running. Start is idempotent only from NotStarted; it
// panics if called twice (a programming error, not a runtime condition).
func (c *Cache[K, Uext, Uint, S, C, R]) Start(ctx context.Context) {
	c.ctrlMu.Lock()
	if c.ctrlState != NotStarted {
		c.ctrlMu.Unlock()
		panic("wbrbcache: Start called more than once")
	}
	c.ctrlState = Running
	c.ctrlMu.Unlock()

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(4)
	go c.runReadProcessor()
	go c.runWriteProcessor()
	go c.runMainProcessor()
	go c.runReturnProcessor()
}

// ControlState returns the current lifecycle control state.
func (c *Cache[K, Uext, Uint, S, C, R]) ControlState() ControlState {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()
	return c.ctrlState
}

// IsUsable reports whether the cache currently accepts Read/Write calls.
func (c *Cache[K, Uext, Uint, S, C, R]) IsUsable() bool {
	return c.ControlState().IsUsable()
}

func (c *Cache[K, Uext, Uint, S, C, R]) nowMs() int64 {
	return c.clock.NowMs()
}

func (c *Cache[K, Uext, Uint, S, C, R]) addVirtual(base int64, virtualMs TimeInterval) int64 {
	return vtime.AddVirtual(base, int64(virtualMs), c.factor.Get())
}

// notifyEntryChange broadcasts entryCond. No goroutine waits on it;
// waitForEntry and waitUntilClean poll.
func (c *Cache[K, Uext, Uint, S, C, R]) notifyEntryChange() {
	c.entryMu.Lock()
	c.entryCond.Broadcast()
	c.entryMu.Unlock()
}

// waitForEntry blocks until pred(entry) is true (checked under the entry's
// read lock) or the deadline/context elapses. Returns false on timeout. It
// polls on a short interval; it does not wait on entryCond.
func (c *Cache[K, Uext, Uint, S, C, R]) waitForEntry(ctx context.Context, entry *CacheEntry[K, C, Uint], deadline time.Time, pred func() bool) bool {
	const pollInterval = 5 * time.Millisecond

	check := func() bool {
		entry.RLock()
		defer entry.RUnlock()
		return pred()
	}

	if check() {
		return true
	}

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	for {
		if time.Now().After(deadline) {
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
		if check() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining < pollInterval {
			timer.Reset(remaining)
		} else {
			timer.Reset(pollInterval)
		}
	}
}
