// Package metrics provides centralized metrics management for wbrbd's
// ambient (non-engine) Prometheus series.
//
// This package covers infrastructure metrics: database connection pools,
// storage-backend cache behavior, and repository-style query timing. The
// write-behind engine's own counters (reads, writes, resyncs, control
// state) live in pkg/wbrbcache/wbrbmetrics instead, since that package
// must stay free of a direct dependency on this one's global registry.
//
// All metrics follow the naming convention:
// <namespace>_infra_<subsystem>_<metric_name>_<unit>
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Infra().DB.ConnectionsActive.Set(42)
package metrics

import (
	"sync"
)

// MetricCategory represents the category of a metric.
type MetricCategory string

const (
	// CategoryTechnical represents technical metrics (HTTP, middleware).
	CategoryTechnical MetricCategory = "technical"

	// CategoryInfra represents infrastructure metrics (database, cache, repositories).
	CategoryInfra MetricCategory = "infra"
)

// MetricsRegistry is the central registry for all ambient Prometheus
// metrics. Provides organized access to metrics by category (Infra).
//
// This is a simplified registry design (vs. full validation/map approach)
// for better maintainability and performance.
//
// Usage:
//
//	registry := metrics.DefaultRegistry()
//	registry.Infra().DB.ConnectionsActive.Set(42)
//
// Thread-safe: All Prometheus metrics are thread-safe by design.
// Singleton: Use DefaultRegistry() to get the global instance.
type MetricsRegistry struct {
	namespace string

	// Category managers (lazy-initialized)
	infra *InfraMetrics

	// Separate sync.Once for each category for true lazy initialization
	infraOnce sync.Once
}

var (
	// Global singleton registry instance
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry.
// Safe for concurrent use. Initialized once on first call.
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Infra().DB.ConnectionsActive.Set(10)
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("wbrbd")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a new MetricsRegistry with the specified namespace.
// For most use cases, use DefaultRegistry() instead of calling this directly.
//
// Parameters:
//   - namespace: The Prometheus namespace for all metrics (typically "wbrbd")
//
// Returns:
//   - *MetricsRegistry: A new registry instance
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "wbrbd"
	}

	return &MetricsRegistry{
		namespace: namespace,
	}
}

// Infra returns the Infrastructure metrics manager.
// Lazy-initialized on first access.
//
// Infrastructure metrics include:
//   - Database (connections, queries, errors) — fed by the postgres pool's
//     PrometheusExporter.
//   - Cache (hits, misses, evictions) — available for a storage backend to
//     report its own cache-adjacent behavior, distinct from the engine's
//     own wbrbmetrics counters.
//   - Repository (query duration, errors, results) — available for a
//     storage backend's Read/Write calls.
//
// Example:
//
//	registry.Infra().DB.ConnectionsActive.Set(42)
//	registry.Infra().Repository.QueryDurationSeconds.WithLabelValues("Write", "success").Observe(0.05)
func (r *MetricsRegistry) Infra() *InfraMetrics {
	r.infraOnce.Do(func() {
		r.infra = NewInfraMetrics(r.namespace)
	})
	return r.infra
}

// Namespace returns the configured namespace for this registry.
//
// Returns:
//   - string: The Prometheus namespace (e.g., "wbrbd")
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}

// ValidateMetricName validates a metric name against naming conventions.
// Currently a placeholder for future validation logic.
//
// Naming convention:
// <namespace>_<category>_<subsystem>_<metric_name>_<unit>
//
// Examples:
// ✅ wbrbd_infra_db_connections_active
// ✅ wbrbd_technical_http_request_duration_seconds
// ❌ connections_active (missing namespace)
// ❌ wbrbd_connections_active (missing category/subsystem)
//
// Parameters:
//   - name: The metric name to validate
//
// Returns:
//   - error: nil if valid, error describing the problem otherwise
//
// TODO: Implement validation logic (regex, taxonomy check)
func (r *MetricsRegistry) ValidateMetricName(name string) error {
	// Placeholder for future validation
	// Could check:
	// 1. Starts with namespace
	// 2. Contains category (technical/infra)
	// 3. Follows snake_case
	// 4. Has appropriate unit suffix (_total, _seconds, etc.)
	return nil
}
