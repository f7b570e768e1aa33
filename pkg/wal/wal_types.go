package wal

// SyncMode controls when appends reach stable storage.
type SyncMode string

const (
	// SyncAlways fsyncs after every append; the only mode that guarantees
	// per-write durability.
	SyncAlways SyncMode = "always"
	// SyncEverySecond fsyncs at most once per second, bounding loss to
	// roughly the last second of appends.
	SyncEverySecond SyncMode = "every_second"
	// SyncManual leaves syncing to explicit Sync calls.
	SyncManual SyncMode = "manual"
)

// Options configures a write-ahead log.
type Options struct {
	// Dir is the directory holding the log file.
	Dir string
	// SyncMode selects the fsync policy; defaults to SyncAlways.
	SyncMode SyncMode
	// MaxRecordSize refuses appends of larger payloads.
	MaxRecordSize int
	// Compression snappy-compresses each frame's payload. Off by default;
	// the uncompressed layout is the documented wire format.
	Compression bool
}

// Log is the capability set the engine needs from a write-ahead log.
type Log interface {
	// Append writes one framed payload, syncing per policy.
	Append(payload []byte) error
	// Recover returns every complete frame in write order, tolerating a
	// torn tail.
	Recover() ([][]byte, error)
	// Truncate atomically replaces the log with an empty one.
	Truncate() error
	// Sync forces buffered frames to stable storage.
	Sync() error
	// Size reports the current file size in bytes.
	Size() (int64, error)
	// Close releases the file after a final sync.
	Close() error
}
