package wbrbcache

// Payload holds the value material of an entry (spec §3). It is always
// accessed under the owning CacheEntry's lock; Payload itself has no locking
// of its own.
type Payload[C any, Uint any] struct {
	// Cached is present once the initial read succeeds; absent before that
	// and, by convention, left at its zero value after the entry is
	// admitted but before INITIAL_READ_PENDING completes.
	Cached   C
	HasCached bool

	// PendingUpdates accumulates updates applied while a resync read is in
	// flight or while queued for write. Bounded by Config.MaxUpdatesPerElement.
	PendingUpdates []Uint

	// InFlightMerge holds the update set handed to a currently-executing
	// merge, kept separate so updates arriving concurrently land in
	// PendingUpdates instead of racing the in-progress merge.
	InFlightMerge    []Uint
	HasInFlightMerge bool

	// LastReadError / LastWriteError record the most recent cause for
	// diagnostics and for SPI retry decisions.
	LastReadError  error
	LastWriteError error
}

// AppendUpdate adds u to PendingUpdates if the configured bound allows it.
// Returns false if the buffer is already at maxUpdates (caller must then
// fail the write with CacheElementHasTooManyUpdates without mutating the
// buffer — this method never partially applies an over-limit update).
func (p *Payload[C, Uint]) AppendUpdate(u Uint, maxUpdates int) bool {
	if len(p.PendingUpdates) >= maxUpdates {
		return false
	}
	p.PendingUpdates = append(p.PendingUpdates, u)
	return true
}

// BeginMerge moves PendingUpdates into InFlightMerge and clears
// PendingUpdates, so updates arriving during the merge accumulate separately.
func (p *Payload[C, Uint]) BeginMerge() []Uint {
	merging := p.PendingUpdates
	p.PendingUpdates = nil
	p.InFlightMerge = merging
	p.HasInFlightMerge = true
	return merging
}

// EndMerge clears the in-flight merge set after it has been folded into
// Cached (by the caller, via the embedder's merge adapter).
func (p *Payload[C, Uint]) EndMerge() {
	p.InFlightMerge = nil
	p.HasInFlightMerge = false
}

// UpdateCount returns the number of updates currently buffered, counting
// both pending and in-flight-merge updates (both represent data not yet
// durably written).
func (p *Payload[C, Uint]) UpdateCount() int {
	return len(p.PendingUpdates) + len(p.InFlightMerge)
}
