package wbrbcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/memory"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/vtime"
)

func identityAdapters() wbrbcache.Adapters[string, string, string, string, string, string] {
	return wbrbcache.Adapters[string, string, string, string, string, string]{
		ConvertUpdate: func(key string, ext string) (string, error) { return ext, nil },
		FromStorage:   func(key string, s string) (string, error) { return s, nil },
		ToReturnValue: func(key string, c string) (string, error) { return c, nil },
		Merge: func(key string, cached string, storage string, pending []string) (string, error) {
			result := storage
			for _, u := range pending {
				result = u
			}
			return result, nil
		},
		Apply:         func(u string, c string) (string, error) { return u, nil },
		SplitForWrite: func(c string) (string, string, error) { return c, c, nil },
	}
}

// counterAdapters models a cache whose cached value is an accumulating sum
// and whose updates are signed deltas, so a correct Apply fold is observable:
// two writes must land in storage as one write carrying their combined sum,
// never just the latter of the two.
func counterAdapters() wbrbcache.Adapters[string, int, int, int, int, int] {
	return wbrbcache.Adapters[string, int, int, int, int, int]{
		ConvertUpdate: func(key string, ext int) (int, error) { return ext, nil },
		FromStorage:   func(key string, s int) (int, error) { return s, nil },
		ToReturnValue: func(key string, c int) (int, error) { return c, nil },
		Merge: func(key string, cached int, storage int, pending []int) (int, error) {
			sum := storage
			for _, u := range pending {
				sum += u
			}
			return sum, nil
		},
		Apply:         func(u int, c int) (int, error) { return c + u, nil },
		SplitForWrite: func(c int) (int, int, error) { return c, c, nil },
	}
}

func testConfig() wbrbcache.Config {
	cfg := wbrbcache.DefaultConfig()
	cfg.ReadTimeout = wbrbcache.TimeInterval(2000)
	cfg.MainQueueCacheTimeMs = wbrbcache.TimeInterval(5000)
	cfg.ReturnQueueCacheTimeMinMs = wbrbcache.TimeInterval(100)
	return cfg
}

func newTestCache(t *testing.T, storage wbrbcache.Storage[string, string]) (*wbrbcache.Cache[string, string, string, string, string, string], *vtime.ManualClock) {
	t.Helper()
	// Flush/Shutdown deadlines are computed as time.UnixMilli(clock.NowMs() +
	// limitMs) but checked against the real wall clock in waitUntilClean, so
	// the manual clock must be seeded near the real epoch or those deadlines
	// would land in the past and time out instantly.
	clock := vtime.NewManualClock(time.Now().UnixMilli())
	cache, err := wbrbcache.NewWithClock[string, string, string, string, string, string](
		testConfig(), storage, identityAdapters(), nil, nil, clock,
	)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	return cache, clock
}

func newCounterTestCache(t *testing.T, storage wbrbcache.Storage[string, int]) (*wbrbcache.Cache[string, int, int, int, int, int], *vtime.ManualClock) {
	t.Helper()
	clock := vtime.NewManualClock(time.Now().UnixMilli())
	cache, err := wbrbcache.NewWithClock[string, int, int, int, int, int](
		testConfig(), storage, counterAdapters(), nil, nil, clock,
	)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	return cache, clock
}

func TestWritesAreFoldedIntoOneStorageWrite(t *testing.T) {
	storage := memory.New[string, int]()
	storage.Seed("k1", 0)

	cache, _ := newCounterTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)
	defer cache.Shutdown(context.Background(), wbrbcache.TimeInterval(1000))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	if _, err := cache.Read(readCtx, "k1"); err != nil {
		t.Fatalf("initial Read: %v", err)
	}

	if err := cache.Write(context.Background(), "k1", 1); err != nil {
		t.Fatalf("Write(+1): %v", err)
	}
	if err := cache.Write(context.Background(), "k1", 2); err != nil {
		t.Fatalf("Write(+2): %v", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer flushCancel()
	if err := cache.Flush(flushCtx, wbrbcache.TimeInterval(3000)); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	snap := storage.Snapshot()
	if snap["k1"] != 3 {
		t.Fatalf("storage[k1] = %d after two writes, want %d (both updates folded)", snap["k1"], 3)
	}
}

func TestReadPopulatesFromStorage(t *testing.T) {
	storage := memory.New[string, string]()
	storage.Seed("k1", "v1")

	cache, _ := newTestCache(t, storage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache.Start(ctx)
	defer cache.Shutdown(context.Background(), wbrbcache.TimeInterval(1000))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()

	got, err := cache.Read(readCtx, "k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v1" {
		t.Fatalf("Read() = %q, want %q", got, "v1")
	}
}

func TestReadMissingKeyFailsFinal(t *testing.T) {
	storage := memory.New[string, string]()
	cache, _ := newTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)
	defer cache.Shutdown(context.Background(), wbrbcache.TimeInterval(1000))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()

	_, err := cache.Read(readCtx, "missing")
	if err == nil {
		t.Fatal("Read() of a key storage never had should fail")
	}
}

func TestWriteThenReadReturnsNewValue(t *testing.T) {
	storage := memory.New[string, string]()
	storage.Seed("k1", "v1")

	cache, _ := newTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)
	defer cache.Shutdown(context.Background(), wbrbcache.TimeInterval(1000))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()

	if _, err := cache.Read(readCtx, "k1"); err != nil {
		t.Fatalf("initial Read: %v", err)
	}

	if err := cache.Write(context.Background(), "k1", "v2"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := cache.Read(readCtx, "k1")
	if err != nil {
		t.Fatalf("Read after write: %v", err)
	}
	if got != "v2" {
		t.Fatalf("Read() after write = %q, want %q", got, "v2")
	}
}

func TestFlushPersistsDirtyEntries(t *testing.T) {
	storage := memory.New[string, string]()
	storage.Seed("k1", "v1")

	cache, _ := newTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)
	defer cache.Shutdown(context.Background(), wbrbcache.TimeInterval(1000))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	if _, err := cache.Read(readCtx, "k1"); err != nil {
		t.Fatalf("initial Read: %v", err)
	}

	if err := cache.Write(context.Background(), "k1", "v2"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer flushCancel()
	if err := cache.Flush(flushCtx, wbrbcache.TimeInterval(3000)); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	snap := storage.Snapshot()
	if snap["k1"] != "v2" {
		t.Fatalf("storage[k1] = %q after flush, want %q", snap["k1"], "v2")
	}
}

func TestShutdownDrainsPendingWrites(t *testing.T) {
	storage := memory.New[string, string]()
	storage.Seed("k1", "v1")

	cache, _ := newTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	if _, err := cache.Read(readCtx, "k1"); err != nil {
		t.Fatalf("initial Read: %v", err)
	}
	if err := cache.Write(context.Background(), "k1", "v3"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := cache.Shutdown(shutdownCtx, wbrbcache.TimeInterval(3000)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if cache.IsAlive() {
		t.Fatal("IsAlive() should be false after Shutdown")
	}

	snap := storage.Snapshot()
	if snap["k1"] != "v3" {
		t.Fatalf("storage[k1] = %q after shutdown, want %q", snap["k1"], "v3")
	}
}

func TestWriteRejectedAfterShutdown(t *testing.T) {
	storage := memory.New[string, string]()
	cache, _ := newTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := cache.Shutdown(shutdownCtx, wbrbcache.TimeInterval(1000)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if err := cache.Write(context.Background(), "k1", "v1"); err == nil {
		t.Fatal("Write() after Shutdown should fail")
	}
	if _, err := cache.Read(context.Background(), "k1"); err == nil {
		t.Fatal("Read() after Shutdown should fail")
	}
}

func TestMetricsSnapshotReflectsActivity(t *testing.T) {
	storage := memory.New[string, string]()
	storage.Seed("k1", "v1")

	cache, _ := newTestCache(t, storage)
	ctx := context.Background()
	cache.Start(ctx)
	defer cache.Shutdown(context.Background(), wbrbcache.TimeInterval(1000))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	if _, err := cache.Read(readCtx, "k1"); err != nil {
		t.Fatalf("Read: %v", err)
	}

	snap := cache.MetricsSnapshot()
	if snap.Reads == 0 {
		t.Error("MetricsSnapshot().Reads should be > 0 after a read")
	}
	if snap.RegistrySize == 0 {
		t.Error("MetricsSnapshot().RegistrySize should be > 0 after admitting a key")
	}
	if snap.ControlState != "RUNNING" {
		t.Errorf("MetricsSnapshot().ControlState = %q, want %q", snap.ControlState, "RUNNING")
	}
}
