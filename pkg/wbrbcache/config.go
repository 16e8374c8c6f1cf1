package wbrbcache

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds every option the cache engine itself recognises (spec §6).
// It intentionally has zero external dependencies (no viper, no validator
// struct tags) so the engine stays embeddable in any host application; the
// demonstration daemon builds one from the WBRB section of its own
// internal/config.Config (see cmd/wbrbd/engineconfig.go).
type Config struct {
	// CommonNamingPrefix prefixes metric/log names so multiple caches in one
	// process don't collide.
	CommonNamingPrefix string

	// LogThrottleTimeInterval is T for the C1 throttling window. Positive.
	LogThrottleTimeInterval TimeInterval
	// LogThrottleMaxMessagesOfTypePerTimeInterval is N. Zero disables
	// throttling (unlimited messages per window).
	LogThrottleMaxMessagesOfTypePerTimeInterval int

	// MainQueueCacheTimeMs is the deadline offset placed on an entry when it
	// first reaches READY. Positive.
	MainQueueCacheTimeMs TimeInterval
	// ReturnQueueCacheTimeMinMs is the minimum dwell time in the return
	// queue after a write completes. Non-negative.
	ReturnQueueCacheTimeMinMs TimeInterval

	// MainQueueMaxTargetSize must be positive; Validate checks that, but no
	// processor reads it, so the main queue applies no backpressure from it.
	MainQueueMaxTargetSize int
	// MaxCacheElementsHardLimit is the hard admission ceiling. Positive.
	MaxCacheElementsHardLimit int
	// MaxUpdatesPerElement bounds the pending-update buffer per entry.
	// Positive.
	MaxUpdatesPerElement int

	// ReadRetryLimit / WriteRetryLimit bound retries before a read/write is
	// treated as a final failure by the default policy.
	ReadRetryLimit  int
	WriteRetryLimit int

	// MaxFullCyclesWithoutWriteSuccess bounds how many main-queue cycles an
	// entry may go through without a successful write before the default
	// policy discards it (WRITE_FAILED_FINAL_DATA_DISCARDED).
	MaxFullCyclesWithoutWriteSuccess int

	// ReadBatchDelayMs / WriteBatchDelayMs let the read/write processors
	// coalesce several queued items into one dispatch pass.
	ReadBatchDelayMs  TimeInterval
	WriteBatchDelayMs TimeInterval

	// ReadTimeout bounds how long Cache.Read blocks for an entry to become
	// readable before returning CacheElementNotYetLoaded.
	ReadTimeout TimeInterval

	// TimeFactor scales every virtual-ms interval above; see vtime.Factor.
	// Defaults to 1.0 (virtual ms == real ms) when zero.
	TimeFactor float64

	// RemovedFromCacheRetryLimit is compared with an entry's
	// RemovedRetryCount when a background read finds that entry
	// REMOVED_FROM_CACHE: over the limit, the read is dropped and
	// TOO_MANY_REMOVED_FROM_CACHE_STATE_RETRIES is logged; otherwise the key
	// is re-admitted and read again. No API call is failed with it.
	RemovedFromCacheRetryLimit int

	// ReadWorkerPoolSize / WriteWorkerPoolSize bound the optional parallel
	// storage I/O pools (0 disables pooling — the single long-lived
	// processor goroutine issues storage calls itself).
	ReadWorkerPoolSize  int
	WriteWorkerPoolSize int
}

// DefaultConfig returns a Config with conservative, generally-safe defaults
// matching the spec's stated defaults where given (logThrottleTimeInterval
// default 10s) and reasonable values elsewhere.
func DefaultConfig() Config {
	return Config{
		CommonNamingPrefix:                           "wbrb",
		LogThrottleTimeInterval:                       TimeInterval(10 * 1000),
		LogThrottleMaxMessagesOfTypePerTimeInterval:   100,
		MainQueueCacheTimeMs:                          TimeInterval(60 * 1000),
		ReturnQueueCacheTimeMinMs:                      TimeInterval(1000),
		MainQueueMaxTargetSize:                        10000,
		MaxCacheElementsHardLimit:                     100000,
		MaxUpdatesPerElement:                          100,
		ReadRetryLimit:                                3,
		WriteRetryLimit:                               3,
		MaxFullCyclesWithoutWriteSuccess:              5,
		ReadBatchDelayMs:                               TimeInterval(10),
		WriteBatchDelayMs:                              TimeInterval(10),
		ReadTimeout:                                    TimeInterval(5000),
		TimeFactor:                                     1.0,
		RemovedFromCacheRetryLimit:                    5,
		ReadWorkerPoolSize:                             0,
		WriteWorkerPoolSize:                            0,
	}
}

// Validate checks every invariant the spec places on configuration options:
// time intervals positive/non-negative as specified, sizes positive.
func (c *Config) Validate() error {
	if c.LogThrottleTimeInterval <= 0 {
		return fmt.Errorf("logThrottleTimeInterval must be positive")
	}
	if c.LogThrottleMaxMessagesOfTypePerTimeInterval < 0 {
		return fmt.Errorf("logThrottleMaxMessagesOfTypePerTimeInterval must be non-negative")
	}
	if c.MainQueueCacheTimeMs <= 0 {
		return fmt.Errorf("mainQueueCacheTimeMs must be positive")
	}
	if c.ReturnQueueCacheTimeMinMs < 0 {
		return fmt.Errorf("returnQueueCacheTimeMinMs must be non-negative")
	}
	if c.MainQueueMaxTargetSize <= 0 {
		return fmt.Errorf("mainQueueMaxTargetSize must be positive")
	}
	if c.MaxCacheElementsHardLimit <= 0 {
		return fmt.Errorf("maxCacheElementsHardLimit must be positive")
	}
	if c.MaxUpdatesPerElement <= 0 {
		return fmt.Errorf("maxUpdatesPerElement must be positive")
	}
	if c.ReadRetryLimit < 0 {
		return fmt.Errorf("readRetryLimit must be non-negative")
	}
	if c.WriteRetryLimit < 0 {
		return fmt.Errorf("writeRetryLimit must be non-negative")
	}
	if c.MaxFullCyclesWithoutWriteSuccess <= 0 {
		return fmt.Errorf("maxFullCyclesWithoutWriteSuccess must be positive")
	}
	if c.ReadBatchDelayMs < 0 {
		return fmt.Errorf("readBatchDelayMs must be non-negative")
	}
	if c.WriteBatchDelayMs < 0 {
		return fmt.Errorf("writeBatchDelayMs must be non-negative")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("readTimeout must be positive")
	}
	if c.RemovedFromCacheRetryLimit <= 0 {
		return fmt.Errorf("removedFromCacheRetryLimit must be positive")
	}
	if c.ReadWorkerPoolSize < 0 || c.WriteWorkerPoolSize < 0 {
		return fmt.Errorf("worker pool sizes must be non-negative")
	}
	return nil
}

// TimeInterval is a duration expressed in milliseconds, as parsed from the
// spec's "<N>{ms|s|m|h|d}" configuration string format.
type TimeInterval int64

// ParseTimeInterval parses a string of the form "<N>{ms|s|m|h|d}" into
// milliseconds. Per spec §8: parse("35ms")==35, parse("35s")==35_000,
// parse("35m")==2_100_000, parse("35h")==126_000_000,
// parse("35d")==3_024_000_000. The value must be non-negative.
func ParseTimeInterval(s string) (TimeInterval, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time interval")
	}

	unit := ""
	numPart := s
	for _, u := range []string{"ms", "s", "m", "h", "d"} {
		if strings.HasSuffix(s, u) {
			// "ms" must be checked before "s" since "s" is a suffix of "ms";
			// the loop order above guarantees that.
			unit = u
			numPart = strings.TrimSuffix(s, u)
			break
		}
	}
	if unit == "" {
		return 0, fmt.Errorf("time interval %q has no recognised unit (ms|s|m|h|d)", s)
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("time interval %q has invalid numeric part: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("time interval %q must be non-negative", s)
	}

	var multiplier int64
	switch unit {
	case "ms":
		multiplier = 1
	case "s":
		multiplier = 1000
	case "m":
		multiplier = 60 * 1000
	case "h":
		multiplier = 60 * 60 * 1000
	case "d":
		multiplier = 24 * 60 * 60 * 1000
	}

	return TimeInterval(n * multiplier), nil
}

// ParseKeyValuePairs parses the "k1:v1;k2:v2" encoding used by a handful of
// string-valued configuration options into a map. An empty value
// ("k:") yields an empty string, not an absent key.
func ParseKeyValuePairs(s string) (map[string]string, error) {
	result := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return result, nil
	}
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("key/value pair %q is missing ':'", pair)
		}
		k := pair[:idx]
		v := pair[idx+1:]
		if k == "" {
			return nil, fmt.Errorf("key/value pair %q has an empty key", pair)
		}
		result[k] = v
	}
	return result, nil
}
