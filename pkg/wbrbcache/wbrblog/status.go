package wbrblog

// Status is the C1 status snapshot: per-severity counters, last-emitted
// timestamps and text. Snapshots are cached and reused within a caller-given
// maxAgeVirtualMs, per the spec's "consistency scoped to a single builder
// critical section" rule — the Status itself is internally consistent (built
// under one lock acquisition) but the two parallel per-severity arrays
// (timestamp, text) are not mutually atomic with each other at the moment
// they're read from the live Core.
type Status struct {
	Counts       [NumSeverities]int64
	LastTsMs     [NumSeverities]int64
	LastText     [NumSeverities]string
	GuardFailures int64
}

// Status returns a snapshot of the logging core's stats, reusing a cached
// snapshot if one was built within maxAgeVirtualMs (the snapshot's real-time
// age is converted to virtual ms via the core's time factor for the check).
func (c *Core) Status(maxAgeVirtualMs int64) Status {
	nowReal := c.clock.NowMs()

	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	if c.haveSnap && maxAgeVirtualMs > 0 {
		factor := 1.0
		if c.factor != nil {
			factor = c.factor.Get()
		}
		ageVirtual := ageInVirtualMs(c.snapAt, nowReal, factor)
		if ageVirtual < maxAgeVirtualMs {
			return c.snap
		}
	}

	var snap Status
	for i := range c.stats {
		row := &c.stats[i]
		snap.Counts[i] = row.count.Load()
		snap.LastTsMs[i] = row.lastTsMs.Load()
		if p := row.lastText.Load(); p != nil {
			snap.LastText[i] = *p
		}
	}
	snap.GuardFailures = c.guardFailures.Load()

	c.snap = snap
	c.snapAt = nowReal
	c.haveSnap = true
	return snap
}

func ageInVirtualMs(then, now int64, factor float64) int64 {
	if now <= then {
		return 0
	}
	delta := now - then
	scaled := float64(delta) * factor
	return int64(scaled)
}
