package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric family the store exports, backed by its own
// prometheus registry so multiple engines in one process never collide.
type Registry struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	FlushesTotal             prometheus.Counter
	MemtableBytes            prometheus.Gauge
	MemtableRecords          prometheus.Gauge
	SSTablesTotal            prometheus.Gauge
	SSTableBytes             prometheus.Gauge
	WALBytes                 prometheus.Gauge
	BlockCacheEntries        prometheus.Gauge
	BlockCacheHitsTotal      prometheus.Gauge
	BlockCacheMissesTotal    prometheus.Gauge
}
