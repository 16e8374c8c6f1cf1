package wbrblog

import (
	"strconv"
	"sync"

	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/vtime"
)

// ThrottleKey identifies one throttling bucket: either a built-in Ordinal, or
// a free-form Classifier paired with a Severity for non-standard messages.
// Exactly one of Ordinal/Classifier is meaningful per the IsOrdinal flag.
type ThrottleKey struct {
	IsOrdinal  bool
	Ordinal    Ordinal
	Classifier string
	Severity   Severity
}

func (k ThrottleKey) mapKey() string {
	if k.IsOrdinal {
		return "o:" + strconv.Itoa(int(k.Ordinal))
	}
	return "c:" + strconv.Itoa(int(k.Severity)) + ":" + k.Classifier
}

// window is the fixed-window throttling state for one ThrottleKey.
type window struct {
	startMs       int64
	count         int
	skipped       int
	skipEventSent bool
}

// Throttler enforces the cache's fixed-window throttling contract: at most N
// messages of a given key within a fixed window of T virtual ms; beyond N,
// attempts are counted and dropped; exactly once per full window a "messages
// may be skipped" event fires, and on rollover (if anything was skipped) a
// "previous messages skipped: count" event fires. Throttle-control events
// (the two above) are never themselves subject to throttling — callers of
// Allow must never pass a ThrottleKey built from
// OrdinalMessagesMaySkipped/OrdinalPreviousMessagesSkipped.
type Throttler struct {
	mu            sync.Mutex
	windows       map[string]*window
	clock         vtime.Clock
	factor        *vtime.Factor
	intervalMs    int64 // T, in virtual ms
	maxPerWindow  int   // N; 0 disables throttling (unlimited)
}

// NewThrottler builds a Throttler. intervalMs is T; maxPerWindow is N (0
// disables throttling entirely, per the spec's configuration option
// logThrottleMaxMessagesOfTypePerTimeInterval).
func NewThrottler(clock vtime.Clock, factor *vtime.Factor, intervalMs int64, maxPerWindow int) *Throttler {
	return &Throttler{
		windows:      make(map[string]*window),
		clock:        clock,
		factor:       factor,
		intervalMs:   intervalMs,
		maxPerWindow: maxPerWindow,
	}
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed bool
	// EmitMaySkip is true exactly once per window, the first time Allow
	// drops a message in that window.
	EmitMaySkip bool
	// EmitRollover is true when a new window starts and the prior window
	// had at least one dropped message; RolloverCount is that count.
	EmitRollover  bool
	RolloverCount int
}

// Allow records one attempt to emit a message under key and returns whether
// it is allowed through, plus any throttle-control events that must be
// emitted alongside it (never fewer, never more than the spec's "exactly
// once" guarantees).
func (t *Throttler) Allow(key ThrottleKey) Decision {
	if t.maxPerWindow <= 0 {
		return Decision{Allowed: true}
	}

	nowReal := t.clock.NowMs()
	mk := key.mapKey()

	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[mk]
	if !ok {
		w = &window{startMs: nowReal}
		t.windows[mk] = w
	}

	factor := 1.0
	if t.factor != nil {
		factor = t.factor.Get()
	}
	elapsedVirtual := vtime.GapVirtual(w.startMs, nowReal, factor)
	if w.startMs == nowReal {
		elapsedVirtual = 0
	}

	var d Decision
	if elapsedVirtual >= t.intervalMs {
		// Window rolled over.
		if w.skipped > 0 {
			d.EmitRollover = true
			d.RolloverCount = w.skipped
		}
		w.startMs = nowReal
		w.count = 0
		w.skipped = 0
		w.skipEventSent = false
	}

	if w.count < t.maxPerWindow {
		w.count++
		d.Allowed = true
		return d
	}

	w.skipped++
	if !w.skipEventSent {
		w.skipEventSent = true
		d.EmitMaySkip = true
	}
	return d
}

// Reset drops all throttling state; used by tests and by config hot-reload
// of throttle parameters.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows = make(map[string]*window)
}
