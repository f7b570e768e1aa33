package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.StorageOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsmkv_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	r.StorageOperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsmkv_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	r.FlushesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "lsmkv_storage_flushes_total",
			Help: "Total number of memtable flushes",
		},
	)

	r.MemtableBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_memtable_bytes",
			Help: "Approximate encoded size of the memtable in bytes",
		},
	)

	r.MemtableRecords = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_memtable_records",
			Help: "Number of records currently in the memtable",
		},
	)

	r.SSTablesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_sstables_total",
			Help: "Number of SSTable files",
		},
	)

	r.SSTableBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_sstable_bytes",
			Help: "Total size of all SSTable files in bytes",
		},
	)

	r.WALBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_wal_bytes",
			Help: "Current write-ahead log size in bytes",
		},
	)

	r.BlockCacheEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_block_cache_entries",
			Help: "Decompressed blocks currently cached",
		},
	)

	r.BlockCacheHitsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_block_cache_hits_total",
			Help: "Block cache hits since engine open",
		},
	)

	r.BlockCacheMissesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "lsmkv_block_cache_misses_total",
			Help: "Block cache misses since engine open",
		},
	)
}
