// Package wal implements the append-only, durably-synced write-ahead log.
//
// The file is a sequence of frames, each a little-endian u32 length followed
// by that many payload bytes. There is no global header and no trailer. A
// partial trailing frame (torn write from a crash) is tolerated on recovery;
// damage in the middle of the file is not.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// FileName is the fixed name of the log file inside the data directory.
const FileName = "wal.log"

var (
	// ErrCorrupt marks damage in the middle of the log: a frame that cannot
	// be valid even though more data follows it. A torn tail is not an
	// error.
	ErrCorrupt = errors.New("wal corruption detected")
	// ErrRecordTooLarge marks an append whose payload exceeds the
	// configured maximum.
	ErrRecordTooLarge = errors.New("record exceeds maximum wal record size")
)

const frameHeaderSize = 4

// WAL is a single-writer write-ahead log. Appends serialize on an internal
// mutex around the write and sync syscalls.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	w        *bufio.Writer
	path     string
	opts     Options
	lastSync time.Time
}

var _ Log = (*WAL)(nil)

// Open opens or creates the log file in opts.Dir for appending.
func Open(opts Options) (*WAL, error) {
	if opts.SyncMode == "" {
		opts.SyncMode = SyncAlways
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}
	path := filepath.Join(opts.Dir, FileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal file: %w", err)
	}
	return &WAL{
		file: file,
		w:    bufio.NewWriter(file),
		path: path,
		opts: opts,
	}, nil
}

// Append frames payload and writes it, flushing and syncing per the
// configured policy. Fails with ErrRecordTooLarge before touching the file
// when the payload exceeds the configured maximum.
func (w *WAL) Append(payload []byte) error {
	if w.opts.MaxRecordSize > 0 && len(payload) > w.opts.MaxRecordSize {
		return fmt.Errorf("%w: %d bytes (maximum %d)", ErrRecordTooLarge, len(payload), w.opts.MaxRecordSize)
	}
	if w.opts.Compression {
		payload = snappy.Encode(nil, payload)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("write wal frame header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write wal frame: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush wal: %w", err)
	}

	switch w.opts.SyncMode {
	case SyncAlways:
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("sync wal: %w", err)
		}
		w.lastSync = time.Now()
	case SyncEverySecond:
		if time.Since(w.lastSync) >= time.Second {
			if err := w.file.Sync(); err != nil {
				return fmt.Errorf("sync wal: %w", err)
			}
			w.lastSync = time.Now()
		}
	}
	return nil
}

// Sync flushes buffered frames and fsyncs the file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}
	w.lastSync = time.Now()
	return nil
}

// Recover reads the log from the start and returns every complete frame in
// write order. Recovery stops silently at the first torn frame at the tail;
// an impossible frame in the middle of the file fails with ErrCorrupt, since
// it indicates media damage rather than a crash mid-write.
func (w *WAL) Recover() ([][]byte, error) {
	file, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open wal for recovery: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat wal: %w", err)
	}
	total := info.Size()

	reader := bufio.NewReader(file)
	var payloads [][]byte
	var consumed int64

	for consumed < total {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			// Torn length field at the tail.
			break
		}
		length := int64(binary.LittleEndian.Uint32(header[:]))
		remaining := total - consumed - frameHeaderSize

		if length == 0 || (w.opts.MaxRecordSize > 0 && length > int64(maxFramedSize(w.opts.MaxRecordSize))) {
			if remaining >= length && length > 0 {
				return nil, fmt.Errorf("%w: implausible frame of %d bytes mid-file", ErrCorrupt, length)
			}
			if length == 0 && remaining > 0 {
				return nil, fmt.Errorf("%w: zero-length frame followed by %d bytes", ErrCorrupt, remaining)
			}
			break
		}
		if remaining < length {
			// Torn payload at the tail.
			break
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			break
		}
		if w.opts.Compression {
			decoded, err := snappy.Decode(nil, payload)
			if err != nil {
				if consumed+frameHeaderSize+length < total {
					return nil, fmt.Errorf("%w: undecodable frame mid-file: %v", ErrCorrupt, err)
				}
				break
			}
			payload = decoded
		}
		payloads = append(payloads, payload)
		consumed += frameHeaderSize + length
	}

	return payloads, nil
}

// maxFramedSize is the largest on-disk payload a record of maxRecord bytes
// can produce; snappy can expand incompressible input slightly.
func maxFramedSize(maxRecord int) int {
	return snappy.MaxEncodedLen(maxRecord)
}

// Truncate empties the log. The caller sequences this after the flush that
// made the logged records durable elsewhere.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush wal before truncate: %w", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync truncated wal: %w", err)
	}
	w.w = bufio.NewWriter(w.file)
	return nil
}

// Size reports the current log file size.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		return 0, err
	}
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close syncs and releases the file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
