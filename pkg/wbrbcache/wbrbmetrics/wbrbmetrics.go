// Package wbrbmetrics exposes a wbrbcache engine's internal counters as
// Prometheus metrics, following the teacher's promauto-based construction
// style (see pkg/metrics.NewHTTPMetricsWithNamespace).
package wbrbmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrblog"
)

// EngineStats is the metrics-facing mirror of wbrbcache.EngineStatsSnapshot.
// Collector doesn't import the engine package directly (cmd/wbrbd passes the
// fields across), keeping wbrbmetrics usable by any cache instance without a
// hard dependency cycle.
type EngineStats struct {
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

// Collector registers and keeps up to date the Prometheus series for one
// cache instance.
type Collector struct {
	reads          prometheus.Counter
	resyncs        prometheus.Counter
	writes         prometheus.Counter
	writeFailures  prometheus.Counter
	disposExpired  prometheus.Counter
	disposRemoved  prometheus.Counter
	disposRequeued prometheus.Counter
	registrySize   prometheus.Gauge
	controlState   *prometheus.GaugeVec

	logSeverityCount *prometheus.GaugeVec
	logGuardFailures prometheus.Gauge

	lastReads, lastResyncs, lastWrites                              int64
	lastWriteFailures, lastDisposExpired, lastDisposRemoved          int64
	lastDisposRequeued                                               int64
}

// NewCollector registers a full set of <namespace>_cache_* series (e.g.
// "wbrbd_cache_reads_total"), using namespace and subsystem "cache".
func NewCollector(namespace string) *Collector {
	const subsystem = "cache"
	return &Collector{
		reads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "reads_total",
			Help: "Total number of main-queue resync reads and initial reads dispatched.",
		}),
		resyncs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "resyncs_total",
			Help: "Total number of background resync reads scheduled by the main queue.",
		}),
		writes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "writes_total",
			Help: "Total number of write-behind writes scheduled by the main queue.",
		}),
		writeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "write_failures_total",
			Help: "Total number of writes that reached WRITE_FAILED_FINAL.",
		}),
		disposExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "entries_expired_total",
			Help: "Total number of entries expired from cache (clean disposal).",
		}),
		disposRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "entries_removed_total",
			Help: "Total number of entries removed from cache after unrecoverable failure.",
		}),
		disposRequeued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "entries_requeued_total",
			Help: "Total number of main-queue requeue decisions (deadline extended in place).",
		}),
		registrySize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "registry_size",
			Help: "Current number of live entries held by the key registry.",
		}),
		controlState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "control_state",
			Help: "1 for the cache's current lifecycle control state, 0 for all others.",
		}, []string{"state"}),
		logSeverityCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "log_events_total",
			Help: "Cumulative count of logged events observed by the throttled stats core, by severity.",
		}, []string{"severity"}),
		logGuardFailures: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "spi_guard_failures",
			Help: "Number of times the logging core guarded against its own failure (a panicking Sink or a re-entrant forward).",
		}),
	}
}

// ObserveEngine updates the gauges/counters from a fresh snapshot. Counters
// are monotonic in EngineStats, so ObserveEngine adds only the delta since
// the previous call.
func (c *Collector) ObserveEngine(s EngineStats) {
	c.reads.Add(float64(s.Reads - c.lastReads))
	c.resyncs.Add(float64(s.Resyncs - c.lastResyncs))
	c.writes.Add(float64(s.Writes - c.lastWrites))
	c.writeFailures.Add(float64(s.WriteFailures - c.lastWriteFailures))
	c.disposExpired.Add(float64(s.DisposExpired - c.lastDisposExpired))
	c.disposRemoved.Add(float64(s.DisposRemoved - c.lastDisposRemoved))
	c.disposRequeued.Add(float64(s.DisposRequeued - c.lastDisposRequeued))

	c.lastReads, c.lastResyncs, c.lastWrites = s.Reads, s.Resyncs, s.Writes
	c.lastWriteFailures = s.WriteFailures
	c.lastDisposExpired, c.lastDisposRemoved, c.lastDisposRequeued = s.DisposExpired, s.DisposRemoved, s.DisposRequeued

	c.registrySize.Set(float64(s.RegistrySize))

	for _, state := range []string{"NOT_STARTED", "RUNNING", "FLUSHING", "SHUTDOWN_IN_PROGRESS", "SHUTDOWN"} {
		v := 0.0
		if state == s.ControlState {
			v = 1.0
		}
		c.controlState.WithLabelValues(state).Set(v)
	}
}

// ObserveLog updates the per-severity event gauges from a wbrblog.Status
// snapshot.
func (c *Collector) ObserveLog(status wbrblog.Status) {
	for i := 0; i < wbrblog.NumSeverities; i++ {
		sev := wbrblog.Severity(i)
		c.logSeverityCount.WithLabelValues(sev.String()).Set(float64(status.Counts[i]))
	}
	c.logGuardFailures.Set(float64(status.GuardFailures))
}
