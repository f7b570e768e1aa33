// Package metrics exports the store's prometheus metric families.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmoura/lsmkv/pkg/lsm"
)

// NewRegistry creates a registry with every metric family initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initHTTPMetrics()
	r.initStorageMetrics()
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordStorageOperation records one engine operation.
func (r *Registry) RecordStorageOperation(operation, status string, duration time.Duration) {
	r.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	r.StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFlush counts one memtable flush.
func (r *Registry) RecordFlush() {
	r.FlushesTotal.Inc()
}

// UpdateEngineStats publishes an engine snapshot to the gauges.
func (r *Registry) UpdateEngineStats(s lsm.Stats) {
	r.MemtableBytes.Set(float64(s.MemtableBytes))
	r.MemtableRecords.Set(float64(s.MemtableRecords))
	r.SSTablesTotal.Set(float64(s.SSTableCount))
	r.SSTableBytes.Set(float64(s.SSTableBytes))
	r.WALBytes.Set(float64(s.WALBytes))
	r.BlockCacheEntries.Set(float64(s.Cache.Len))
	r.BlockCacheHitsTotal.Set(float64(s.Cache.Hits))
	r.BlockCacheMissesTotal.Set(float64(s.Cache.Misses))
}
