package main

import (
	"fmt"

	"github.com/vitaliisemenov/wbrbcache/internal/config"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

// buildEngineConfig translates the daemon's string-typed WBRBConfig section
// into the engine's own wbrbcache.Config, parsing every time-interval string
// through wbrbcache.ParseTimeInterval. The engine package never sees viper or
// mapstructure; this is the only place the two configuration worlds meet.
func buildEngineConfig(c config.WBRBConfig) (wbrbcache.Config, error) {
	var cfg wbrbcache.Config
	var err error

	cfg.CommonNamingPrefix = c.CommonNamingPrefix
	cfg.LogThrottleMaxMessagesOfTypePerTimeInterval = c.LogThrottleMaxMessagesOfTypePerTimeInterval
	cfg.MainQueueMaxTargetSize = c.MainQueueMaxTargetSize
	cfg.MaxCacheElementsHardLimit = c.MaxCacheElementsHardLimit
	cfg.MaxUpdatesPerElement = c.MaxUpdatesPerElement
	cfg.ReadRetryLimit = c.ReadRetryLimit
	cfg.WriteRetryLimit = c.WriteRetryLimit
	cfg.MaxFullCyclesWithoutWriteSuccess = c.MaxFullCyclesWithoutWriteSuccess
	cfg.TimeFactor = c.TimeFactor
	cfg.RemovedFromCacheRetryLimit = c.RemovedFromCacheRetryLimit
	cfg.ReadWorkerPoolSize = c.ReadWorkerPoolSize
	cfg.WriteWorkerPoolSize = c.WriteWorkerPoolSize

	if cfg.LogThrottleTimeInterval, err = wbrbcache.ParseTimeInterval(c.LogThrottleTimeInterval); err != nil {
		return cfg, fmt.Errorf("wbrb.log_throttle_time_interval: %w", err)
	}
	if cfg.MainQueueCacheTimeMs, err = wbrbcache.ParseTimeInterval(c.MainQueueCacheTime); err != nil {
		return cfg, fmt.Errorf("wbrb.main_queue_cache_time: %w", err)
	}
	if cfg.ReturnQueueCacheTimeMinMs, err = wbrbcache.ParseTimeInterval(c.ReturnQueueCacheTimeMin); err != nil {
		return cfg, fmt.Errorf("wbrb.return_queue_cache_time_min: %w", err)
	}
	if cfg.ReadBatchDelayMs, err = wbrbcache.ParseTimeInterval(c.ReadBatchDelay); err != nil {
		return cfg, fmt.Errorf("wbrb.read_batch_delay: %w", err)
	}
	if cfg.WriteBatchDelayMs, err = wbrbcache.ParseTimeInterval(c.WriteBatchDelay); err != nil {
		return cfg, fmt.Errorf("wbrb.write_batch_delay: %w", err)
	}
	if cfg.ReadTimeout, err = wbrbcache.ParseTimeInterval(c.ReadTimeout); err != nil {
		return cfg, fmt.Errorf("wbrb.read_timeout: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}
