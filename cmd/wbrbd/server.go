package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitaliisemenov/wbrbcache/internal/config"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache/wbrbmetrics"
)

// stringCache is the concrete instantiation cmd/wbrbd runs.
type stringCache = wbrbcache.Cache[string, string, string, string, string, string]

// newRouter builds the admin/status HTTP surface: health, a JSON snapshot of
// engine counters and the log core's guard-failure count, the sanitized
// config, and (when enabled) the Prometheus
// scrape endpoint. Route naming and the healthz/metrics split follow the
// teacher's cmd/server entry point.
func newRouter(cache *stringCache, configSvc config.ConfigService, metricsCfg config.MetricsConfig, healthCheck func(ctx context.Context) error) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !cache.IsAlive() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutdown"))
			return
		}
		if healthCheck != nil {
			if err := healthCheck(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("storage pool unhealthy: " + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		snap := cache.MetricsSnapshot()
		logStatus := cache.LogStatus(0)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"control_state": snap.ControlState,
			"registry_size": snap.RegistrySize,
			"reads":         snap.Reads,
			"resyncs":       snap.Resyncs,
			"writes":        snap.Writes,
			"write_failures": snap.WriteFailures,
			"disposed": map[string]int64{
				"expired":  snap.DisposExpired,
				"removed":  snap.DisposRemoved,
				"requeued": snap.DisposRequeued,
			},
			"log_guard_failures": logStatus.GuardFailures,
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/config", func(w http.ResponseWriter, req *http.Request) {
		resp, err := configSvc.GetConfig(req.Context(), config.GetConfigOptions{Format: "json", Sanitize: true})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	if metricsCfg.Enabled {
		r.Handle(metricsCfg.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	return r
}

// pollMetrics periodically feeds the cache's counters into the Prometheus
// collector until stop is closed. The engine itself has no Prometheus
// dependency (see wbrbmetrics' package doc), so something external has to
// poll it.
func pollMetrics(cache *stringCache, collector *wbrbmetrics.Collector, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	observe := func() {
		collector.ObserveEngine(toCollectorStats(cache.MetricsSnapshot()))
		collector.ObserveLog(cache.LogStatus(0))
	}

	observe()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			observe()
		}
	}
}

func toCollectorStats(s wbrbcache.EngineStatsSnapshot) wbrbmetrics.EngineStats {
	return wbrbmetrics.EngineStats{
		Reads:          s.Reads,
		Resyncs:        s.Resyncs,
		Writes:         s.Writes,
		WriteFailures:  s.WriteFailures,
		DisposExpired:  s.DisposExpired,
		DisposRemoved:  s.DisposRemoved,
		DisposRequeued: s.DisposRequeued,
		RegistrySize:   s.RegistrySize,
		ControlState:   s.ControlState,
	}
}
