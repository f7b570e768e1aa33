// Package lsm implements an embeddable ordered key-value store built on the
// log-structured merge-tree discipline: an in-memory write buffer ahead of
// immutable, block-compressed sorted files, with a write-ahead log for
// durability and a shared cache of decompressed blocks for reads.
package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pmoura/lsmkv/pkg/logging"
	"github.com/pmoura/lsmkv/pkg/wal"
)

const sstableSuffix = ".sst"

// Open validates cfg, creates the data directory if missing, opens a reader
// for every discovered SSTable, and replays the WAL into a fresh memtable.
// A single unreadable SSTable is logged and skipped; mid-file WAL damage is
// fatal.
func Open(cfg Config, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	e := &Engine{
		memtable: NewMemTable(),
		cache:    NewGlobalBlockCache(cfg.BlockCacheSizeMiB, cfg.BlockSize),
		cfg:      cfg,
		logger:   logger,
	}

	if err := e.openReaders(); err != nil {
		return nil, err
	}

	log, err := wal.Open(wal.Options{
		Dir:           cfg.DataDir,
		SyncMode:      wal.SyncMode(cfg.WALSyncMode),
		MaxRecordSize: cfg.MaxWALRecordSize,
		Compression:   cfg.WALCompression,
	})
	if err != nil {
		e.closeReaders()
		return nil, err
	}
	e.wal = log

	if err := e.replayWAL(); err != nil {
		e.closeReaders()
		log.Close()
		return nil, err
	}

	e.logger.Info("engine opened",
		logging.String("data_dir", cfg.DataDir),
		logging.Int("sstables", len(e.readers)),
		logging.Int("memtable_records", e.memtable.Len()))
	return e, nil
}

// openReaders scans the data directory and opens every SSTable it can,
// newest first. Files that fail to open are logged and skipped so one bad
// table cannot block recovery.
func (e *Engine) openReaders() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sstableSuffix) {
			continue
		}
		path := filepath.Join(e.cfg.DataDir, entry.Name())
		reader, err := OpenSSTable(path, e.cache)
		if err != nil {
			e.logger.Warn("skipping unreadable sstable",
				logging.String("path", path), logging.Error(err))
			continue
		}
		e.readers = append(e.readers, reader)
	}

	sort.Slice(e.readers, func(i, j int) bool {
		return e.readers[i].Metadata().Timestamp > e.readers[j].Metadata().Timestamp
	})
	return nil
}

// replayWAL reconstructs the memtable from the log. An undecodable final
// frame is tolerated as a torn tail; an undecodable frame with more frames
// after it means media damage.
func (e *Engine) replayWAL() error {
	frames, err := e.wal.Recover()
	if err != nil {
		return err
	}
	for i, frame := range frames {
		rec, n, err := DecodeRecord(frame)
		if err != nil || n != len(frame) {
			if i == len(frames)-1 {
				e.logger.Warn("dropping torn record at wal tail", logging.Int("frame", i))
				break
			}
			return fmt.Errorf("%w: undecodable record at frame %d", wal.ErrCorrupt, i)
		}
		e.memtable.Insert(rec)
	}
	return nil
}

// SetMetrics installs a recorder for storage operation metrics. Call before
// sharing the engine across goroutines; a nil recorder leaves the engine
// uninstrumented.
func (e *Engine) SetMetrics(recorder MetricsRecorder) {
	e.metrics = recorder
}

// recordOperation records one storage operation's outcome and latency.
func (e *Engine) recordOperation(operation, status string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordStorageOperation(operation, status, time.Since(start))
	}
}

// Put durably stores value under key: WAL append first, then the memtable.
// Crossing the memtable threshold triggers a flush.
func (e *Engine) Put(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return e.write("put", NewRecord(key, value))
}

// Delete durably stores a tombstone for key. The key reads as absent until
// a subsequent Put.
func (e *Engine) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return e.write("delete", NewTombstone(key))
}

func (e *Engine) write(operation string, rec Record) error {
	if e.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	if err := e.wal.Append(EncodeRecord(rec)); err != nil {
		e.recordOperation(operation, "error", start)
		return err
	}

	e.mu.Lock()
	e.memtable.Insert(rec)
	needFlush := e.memtable.ApproximateSize() >= e.cfg.MemtableMaxSize
	e.mu.Unlock()
	e.recordOperation(operation, "success", start)

	if needFlush {
		return e.Flush()
	}
	return nil
}

// Get returns the value stored under key, or found=false when the key is
// absent or tombstoned. The memtable answers first; otherwise readers are
// consulted newest to oldest and the first hit wins.
func (e *Engine) Get(key string) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrClosed
	}
	start := time.Now()
	value, found, err := e.lookup(key)
	if err != nil {
		e.recordOperation("get", "error", start)
	} else {
		e.recordOperation("get", "success", start)
	}
	return value, found, err
}

func (e *Engine) lookup(key string) ([]byte, bool, error) {
	e.mu.RLock()
	rec, ok := e.memtable.Get(key)
	e.mu.RUnlock()
	if ok {
		if rec.Tombstone {
			return nil, false, nil
		}
		return rec.Value, true, nil
	}

	e.readersMu.RLock()
	defer e.readersMu.RUnlock()
	for _, reader := range e.readers {
		rec, found, err := reader.Get(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			if rec.Tombstone {
				return nil, false, nil
			}
			return rec.Value, true, nil
		}
	}
	return nil, false, nil
}

// Flush drains the memtable into a new SSTable, installs a reader for it at
// the head of the reader list, and truncates the WAL. An empty memtable is
// a no-op. On failure the partial file is removed and the memtable and WAL
// are left as they were.
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	flushed, err := e.flush()
	if err != nil {
		e.recordOperation("flush", "error", start)
		return err
	}
	if flushed {
		e.recordOperation("flush", "success", start)
		if e.metrics != nil {
			e.metrics.RecordFlush()
		}
	}
	return nil
}

// flush does the work under the memtable write lock and reports whether an
// SSTable was actually written.
func (e *Engine) flush() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.memtable.Len() == 0 {
		return false, nil
	}

	records := e.memtable.DrainSorted()
	restore := func() {
		for _, rec := range records {
			e.memtable.Insert(rec)
		}
	}

	timestamp := uint64(time.Now().UnixNano())
	path := filepath.Join(e.cfg.DataDir, fmt.Sprintf("%d%s", timestamp, sstableSuffix))

	writer, err := NewSSTableWriter(path, e.cfg, timestamp)
	if err != nil {
		restore()
		return false, err
	}
	for _, rec := range records {
		if err := writer.Add(rec); err != nil {
			restore()
			return false, err
		}
	}
	if _, err := writer.Finish(); err != nil {
		restore()
		return false, err
	}

	reader, err := OpenSSTable(path, e.cache)
	if err != nil {
		os.Remove(path)
		restore()
		return false, fmt.Errorf("reopen flushed sstable: %w", err)
	}

	e.readersMu.Lock()
	e.readers = append([]*SSTableReader{reader}, e.readers...)
	e.readersMu.Unlock()

	// The SSTable is durable; if the process dies before this truncate the
	// WAL replays the same records on restart and timestamp resolution
	// absorbs the duplicates.
	if err := e.wal.Truncate(); err != nil {
		return false, fmt.Errorf("truncate wal after flush: %w", err)
	}

	e.logger.Info("memtable flushed",
		logging.String("sstable", path),
		logging.Int("records", len(records)))
	return true, nil
}

// Scan merges the memtable with every SSTable, newest first. For each
// distinct key the newest record wins, tombstones suppress the key, and the
// result is sorted ascending.
func (e *Engine) Scan() ([]KeyValue, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	merged := make(map[string]Record)
	e.mu.RLock()
	for _, rec := range e.memtable.SortedRecords() {
		merged[rec.Key] = rec
	}
	e.mu.RUnlock()

	e.readersMu.RLock()
	readers := append([]*SSTableReader(nil), e.readers...)
	e.readersMu.RUnlock()

	for _, reader := range readers {
		records, err := reader.Scan()
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if _, seen := merged[rec.Key]; !seen {
				merged[rec.Key] = rec
			}
		}
	}

	result := make([]KeyValue, 0, len(merged))
	for _, rec := range merged {
		if rec.Tombstone {
			continue
		}
		result = append(result, KeyValue{Key: rec.Key, Value: rec.Value})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// SetBatch stores each pair in order, stopping at the first failure and
// returning the number of pairs stored.
func (e *Engine) SetBatch(items []KeyValue) (int, error) {
	for i, item := range items {
		if err := e.Put(item.Key, item.Value); err != nil {
			return i, err
		}
	}
	return len(items), nil
}

// DeleteBatch tombstones each key in order, stopping at the first failure
// and returning the number of keys deleted.
func (e *Engine) DeleteBatch(keys []string) (int, error) {
	for i, key := range keys {
		if err := e.Delete(key); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// Search returns live pairs whose key contains pattern, or starts with it
// when prefix is true.
func (e *Engine) Search(pattern string, prefix bool) ([]KeyValue, error) {
	all, err := e.Scan()
	if err != nil {
		return nil, err
	}
	matched := make([]KeyValue, 0)
	for _, kv := range all {
		if prefix && strings.HasPrefix(kv.Key, pattern) {
			matched = append(matched, kv)
		} else if !prefix && strings.Contains(kv.Key, pattern) {
			matched = append(matched, kv)
		}
	}
	return matched, nil
}

// Keys returns every live key in ascending order.
func (e *Engine) Keys() ([]string, error) {
	all, err := e.Scan()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, kv := range all {
		keys = append(keys, kv.Key)
	}
	return keys, nil
}

// Count returns the number of live keys.
func (e *Engine) Count() (int, error) {
	all, err := e.Scan()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// SyncWAL forces buffered WAL frames to disk; useful under the manual and
// every_second sync modes.
func (e *Engine) SyncWAL() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.wal.Sync()
}

// Stats gathers a snapshot of memtable, SSTable, WAL, and cache state.
func (e *Engine) Stats() Stats {
	var s Stats

	e.mu.RLock()
	s.MemtableRecords = e.memtable.Len()
	s.MemtableBytes = e.memtable.ApproximateSize()
	e.mu.RUnlock()

	e.readersMu.RLock()
	s.SSTableCount = len(e.readers)
	for _, reader := range e.readers {
		s.SSTableRecords += reader.RecordCount()
		if info, err := os.Stat(reader.Path()); err == nil {
			s.SSTableBytes += info.Size()
		}
	}
	e.readersMu.RUnlock()

	if e.wal != nil {
		if size, err := e.wal.Size(); err == nil {
			s.WALBytes = size
		}
	}
	s.Cache = e.cache.Stats()
	return s
}

// Config returns the engine's immutable configuration snapshot.
func (e *Engine) Config() Config {
	return e.cfg
}

// Close releases the WAL and every reader. Further operations fail with
// ErrClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	err := e.wal.Close()
	e.closeReaders()
	return err
}

func (e *Engine) closeReaders() {
	e.readersMu.Lock()
	defer e.readersMu.Unlock()
	for _, reader := range e.readers {
		reader.Close()
	}
	e.readers = nil
}
