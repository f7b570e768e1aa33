package lsm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pmoura/lsmkv/pkg/logging"
	"github.com/pmoura/lsmkv/pkg/wal"
)

// MetricsRecorder receives storage operation observations. The metrics
// package's Registry implements it; a nil recorder disables instrumentation.
type MetricsRecorder interface {
	RecordStorageOperation(operation, status string, duration time.Duration)
	RecordFlush()
}

// Engine composes the MemTable, the WAL, and the SSTable readers into the
// full storage engine. It is safe for concurrent use by many request
// handlers: the memtable is guarded by a reader-writer lock, the WAL
// serializes internally, and the reader list changes only under its own
// write lock during flush.
type Engine struct {
	mu       sync.RWMutex // guards memtable
	memtable *MemTable

	wal wal.Log

	readersMu sync.RWMutex
	readers   []*SSTableReader // newest first

	cache   *GlobalBlockCache
	cfg     Config
	logger  logging.Logger
	metrics MetricsRecorder
	closed  atomic.Bool
}

// KeyValue is one live key with its value, as returned by Scan and Search.
type KeyValue struct {
	Key   string
	Value []byte
}

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	MemtableRecords int
	MemtableBytes   int
	SSTableCount    int
	SSTableRecords  uint64
	SSTableBytes    int64
	WALBytes        int64
	Cache           CacheStats
}
