// Package vtime provides the cache's virtual-time helpers: a single real-clock
// accessor plus a scaling factor that lets tests compress (or stretch) every
// interval the cache waits on.
package vtime

import (
	"math"
	"sync/atomic"
	"time"
)

// Clock is the single now() accessor used throughout the cache. Production
// code uses RealClock; tests substitute ManualClock to get
// deterministic, fast-forwardable time.
type Clock interface {
	NowMs() int64
}

// RealClock reads the wall clock.
type RealClock struct{}

// NowMs returns the current wall-clock time in milliseconds since epoch.
func (RealClock) NowMs() int64 {
	return time.Now().UnixMilli()
}

// ManualClock is a test clock advanced explicitly by calls to Advance. It
// never reads the wall clock, so tests using it are fully deterministic.
type ManualClock struct {
	ms atomic.Int64
}

// NewManualClock creates a ManualClock starting at the given virtual ms.
func NewManualClock(startMs int64) *ManualClock {
	c := &ManualClock{}
	c.ms.Store(startMs)
	return c
}

// NowMs returns the clock's current value.
func (c *ManualClock) NowMs() int64 {
	return c.ms.Load()
}

// Advance moves the clock forward by deltaMs (must be non-negative).
func (c *ManualClock) Advance(deltaMs int64) {
	c.ms.Add(deltaMs)
}

// Factor holds the timeFactor multiplier that scales every virtual-ms
// interval used by the cache. A factor of 1.0 means virtual ms equal real ms;
// a factor of 10.0 means the cache perceives time as passing ten times
// faster than the real clock (used to accelerate tests), and a factor below
// 1.0 slows it down.
type Factor struct {
	value atomic.Uint64 // math.Float64bits
}

// NewFactor creates a Factor initialised to f (must be > 0).
func NewFactor(f float64) *Factor {
	if f <= 0 {
		f = 1.0
	}
	factor := &Factor{}
	factor.value.Store(math.Float64bits(f))
	return factor
}

// Get returns the current factor value.
func (f *Factor) Get() float64 {
	return math.Float64frombits(f.value.Load())
}

// Set updates the factor value (must be > 0; zero/negative values are
// ignored so a misconfigured reload can't freeze or invert time).
func (f *Factor) Set(v float64) {
	if v <= 0 {
		return
	}
	f.value.Store(math.Float64bits(v))
}

// GapVirtual computes the virtual-ms gap between two real timestamps (a
// before b), scaled by factor. Per the cache's time contract this never
// returns zero unless b-a is itself zero.
func GapVirtual(a, b int64, factor float64) int64 {
	delta := b - a
	if delta == 0 {
		return 0
	}
	scaled := math.Ceil(float64(delta) * factor)
	if scaled == 0 {
		if delta > 0 {
			return 1
		}
		return -1
	}
	return int64(scaled)
}

// AddVirtual adds a virtual-ms interval i to a real timestamp t, translating
// i back into a real-ms delta via factor. Never returns t unchanged unless i
// is zero.
func AddVirtual(t int64, i int64, factor float64) int64 {
	if i == 0 {
		return t
	}
	real := math.Ceil(float64(i) / factor)
	if real == 0 {
		if i > 0 {
			real = 1
		} else {
			real = -1
		}
	}
	return t + int64(real)
}
