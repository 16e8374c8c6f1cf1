package wbrbcache

import "github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrblog"

// EngineStatsSnapshot is the public, metrics-friendly view of the cache's
// internal counters (see wbrbmetrics.EngineStats, which mirrors this
// field-for-field so callers don't need to import the engine package just to
// read a struct literal).
type EngineStatsSnapshot struct {
	Reads          int64
	Resyncs        int64
	Writes         int64
	WriteFailures  int64
	DisposExpired  int64
	DisposRemoved  int64
	DisposRequeued int64
	RegistrySize   int
	ControlState   string
}

// MetricsSnapshot returns a consistent-enough point-in-time view of the
// engine's counters, for wbrbmetrics.Collector.ObserveEngine or any other
// consumer that wants to poll rather than subscribe.
func (c *Cache[K, Uext, Uint, S, C, R]) MetricsSnapshot() EngineStatsSnapshot {
	c.stats.mu.Lock()
	s := EngineStatsSnapshot{
		Reads:          c.stats.reads,
		Resyncs:        c.stats.resyncs,
		Writes:         c.stats.writes,
		WriteFailures:  c.stats.writeFailures,
		DisposExpired:  c.stats.disposExpired,
		DisposRemoved:  c.stats.disposRemoved,
		DisposRequeued: c.stats.disposRequeued,
	}
	c.stats.mu.Unlock()

	s.RegistrySize = c.registry.size()
	s.ControlState = c.ControlState().String()
	return s
}

// LogStatus returns the logging core's severity-count snapshot (see
// wbrblog.Core.Status), for wbrbmetrics.Collector.ObserveLog or the admin
// status HTTP surface.
func (c *Cache[K, Uext, Uint, S, C, R]) LogStatus(maxAgeVirtualMs int64) wbrblog.Status {
	return c.core.Status(maxAgeVirtualMs)
}
