package wbrblog

import (
	"sync"
	"sync/atomic"

	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/vtime"
)

// Sink receives every event that survives throttling, so an embedder can
// forward it to structured logging (log/slog) and/or Prometheus. Sink
// implementations must not block the caller for long or panic; Log guards
// the call but a slow Sink still slows the emitting worker.
type Sink interface {
	Log(ev Event)
}

// Event is one emitted (non-throttled) log event.
type Event struct {
	Severity   Severity
	Name       string
	Classifier string // set for non-standard messages, empty for ordinals
	Key        any    // the cache key, if applicable
	Err        error
	Text       string
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Log implements Sink.
func (f SinkFunc) Log(ev Event) { f(ev) }

// perSeverity holds the atomics backing one severity's stats row. The
// timestamp and text fields are intentionally not mutually atomic — per the
// spec's design notes, the two parallel arrays are allowed to drift, and no
// attempt is made to synchronize them under one lock (that would reintroduce
// a point of contention every worker goroutine shares).
type perSeverity struct {
	count       atomic.Int64
	lastTsMs    atomic.Int64
	lastText    atomic.Pointer[string]
}

// Core is the cache's logging/monitoring core (C1): it classifies events,
// throttles floods of identical ones, counts them regardless of throttling,
// and serves a cached status snapshot. A Core must never let an internal
// failure propagate to its caller; the Sink is called only from forward,
// which recovers from a panicking Sink and counts it instead.
type Core struct {
	clock     vtime.Clock
	factor    *vtime.Factor
	throttler *Throttler
	sink      Sink

	stats [numSeverities]perSeverity

	snapMu      sync.Mutex
	snapAt      int64
	snap        Status
	haveSnap    bool

	recursionGuard atomic.Bool
	guardFailures  atomic.Int64
}

// NewCore builds a logging core. sink may be nil (events are counted but not
// forwarded anywhere, which is a valid and sometimes-desired configuration).
func NewCore(clock vtime.Clock, factor *vtime.Factor, throttleIntervalMs int64, throttleMaxPerInterval int, sink Sink) *Core {
	return &Core{
		clock:     clock,
		factor:    factor,
		throttler: NewThrottler(clock, factor, throttleIntervalMs, throttleMaxPerInterval),
		sink:      sink,
	}
}

// LogOrdinal emits a built-in message, key optionally identifying the
// affected cache key, subject to throttling on (ordinal).
func (c *Core) LogOrdinal(o Ordinal, key any, err error, text string) {
	m, ok := Lookup(o)
	if !ok {
		// Programming error: unknown ordinal. Still must not crash the
		// caller; log it as an internal ERROR under a synthetic ordinal.
		c.record(ERROR, "UNKNOWN_ORDINAL", "", key, err, text)
		return
	}
	c.emit(m.Severity, m.Name, "", m.Throttleable, ThrottleKey{IsOrdinal: true, Ordinal: o}, key, err, text)
}

// LogNonStandard emits a deprecated-shape "non-standard" message: a
// classifier string stands in for the ordinal, both for the event name and
// for the throttling key. This is the single entry point the design notes
// call for, replacing the source's per-message deprecated enum variants.
func (c *Core) LogNonStandard(severity Severity, classifier string, err error, text string) {
	tk := ThrottleKey{IsOrdinal: false, Classifier: classifier, Severity: severity}
	c.emit(severity, classifier, classifier, true, tk, nil, err, text)
}

func (c *Core) emit(severity Severity, name, classifier string, throttleable bool, tk ThrottleKey, key any, err error, text string) {
	if !throttleable {
		c.record(severity, name, classifier, key, err, text)
		c.forward(Event{Severity: severity, Name: name, Classifier: classifier, Key: key, Err: err, Text: text})
		return
	}

	d := c.throttler.Allow(tk)
	c.record(severity, name, classifier, key, err, text)
	if d.Allowed {
		c.forward(Event{Severity: severity, Name: name, Classifier: classifier, Key: key, Err: err, Text: text})
	}
	if d.EmitMaySkip {
		c.emitControlEvent(WARN, "MESSAGES_MAY_BE_SKIPPED", name)
	}
	if d.EmitRollover {
		c.emitControlEvent(WARN, "PREVIOUS_MESSAGES_SKIPPED", name+" count="+itoa(d.RolloverCount))
	}
}

// emitControlEvent emits a throttle-control event directly, bypassing
// Allow entirely: these events are hard-invariant non-throttleable.
func (c *Core) emitControlEvent(severity Severity, name, text string) {
	c.record(severity, name, "", nil, nil, text)
	c.forward(Event{Severity: severity, Name: name, Text: text})
}

// record updates the per-severity counters/timestamp/text. This happens
// whether or not the event was allowed through by throttling — counters
// reflect attempts, not emissions (testable property #6: counters are
// monotone non-decreasing for the cache's lifetime).
func (c *Core) record(severity Severity, name, classifier string, key any, err error, text string) {
	if severity < 0 || int(severity) >= len(c.stats) {
		return
	}
	row := &c.stats[severity]
	row.count.Add(1)
	row.lastTsMs.Store(c.clock.NowMs())
	full := name
	if classifier != "" && classifier != name {
		full = name + ":" + classifier
	}
	if text != "" {
		full = full + " " + text
	}
	row.lastText.Store(&full)
}

// forward hands the event to the Sink under a panic guard: a failure of the
// logging subsystem itself must never propagate to the emitting worker. A
// recursion guard additionally prevents a Sink whose own logging triggers
// this Core from looping forever.
func (c *Core) forward(ev Event) {
	if c.sink == nil {
		return
	}
	if !c.recursionGuard.CompareAndSwap(false, true) {
		// Already inside a forward call on this goroutine's call chain
		// re-entering via the same Core: drop and count, never recurse.
		c.guardFailures.Add(1)
		return
	}
	defer c.recursionGuard.Store(false)

	defer func() {
		if r := recover(); r != nil {
			c.guardFailures.Add(1)
		}
	}()
	c.sink.Log(ev)
}

// GuardFailures returns the number of times the logging subsystem guarded
// against its own failure (Sink panic or re-entrant forward).
func (c *Core) GuardFailures() int64 {
	return c.guardFailures.Load()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
