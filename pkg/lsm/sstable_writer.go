package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// SSTableWriter streams sorted records into an immutable on-disk run. Callers
// must deliver records in strictly ascending key order; the sparse index
// depends on it, and a violation would silently produce an unreadable file.
type SSTableWriter struct {
	path      string
	file      *os.File
	w         *bufio.Writer
	cfg       Config
	timestamp uint64

	current   *Block
	metas     []BlockMeta
	bloomKeys []string

	minKey  string
	lastKey string
	started bool
	count   uint64
	offset  uint64
}

// NewSSTableWriter creates the output file and writes the magic tag.
func NewSSTableWriter(path string, cfg Config, timestamp uint64) (*SSTableWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create sstable %s: %w", path, err)
	}
	w := bufio.NewWriter(file)
	if _, err := w.WriteString(sstableMagic); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write sstable magic: %w", err)
	}

	return &SSTableWriter{
		path:      path,
		file:      file,
		w:         w,
		cfg:       cfg,
		timestamp: timestamp,
		current:   NewBlock(cfg.BlockSize),
		offset:    magicSize,
	}, nil
}

// Add appends one record. Records must arrive in strictly ascending key
// order; Add fails with ErrOutOfOrder otherwise. When the current block is
// full it is sealed and a new one started; a record larger than the block
// target always gets a block of its own.
func (sw *SSTableWriter) Add(rec Record) error {
	if sw.started && rec.Key <= sw.lastKey {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, rec.Key, sw.lastKey)
	}
	if !sw.started {
		sw.minKey = rec.Key
		sw.started = true
	}
	sw.lastKey = rec.Key

	encoded := EncodeRecord(rec)
	if err := sw.current.Append(encoded); err != nil {
		if err := sw.sealBlock(); err != nil {
			return err
		}
		// A fresh block accepts any record, regardless of size.
		if err := sw.current.Append(encoded); err != nil {
			return sw.abort(err)
		}
	}

	sw.bloomKeys = append(sw.bloomKeys, rec.Key)
	sw.count++
	return nil
}

// sealBlock encodes, compresses, and writes the current block, records its
// BlockMeta, and starts a new block.
func (sw *SSTableWriter) sealBlock() error {
	if sw.current.Len() == 0 {
		return nil
	}
	firstKey, _ := sw.current.FirstKey()
	encoded := sw.current.Encode()

	stored, err := compressFrame(encoded)
	if err != nil {
		return sw.abort(fmt.Errorf("compress block: %w", err))
	}
	if _, err := sw.w.Write(stored); err != nil {
		return sw.abort(fmt.Errorf("write block: %w", err))
	}

	sw.metas = append(sw.metas, BlockMeta{
		FirstKey:         firstKey,
		Offset:           sw.offset,
		Size:             uint32(len(stored)),
		UncompressedSize: uint32(len(encoded)),
	})
	sw.offset += uint64(len(stored))
	sw.current = NewBlock(sw.cfg.BlockSize)
	return nil
}

// Finish seals the last block, writes the MetaBlock and footer, fsyncs, and
// returns the final path. It fails with ErrEmptyTable when no records were
// added. On any I/O error the partial file is removed; Finish is
// all-or-nothing from the engine's perspective.
func (sw *SSTableWriter) Finish() (string, error) {
	if err := sw.sealBlock(); err != nil {
		return "", err
	}
	if len(sw.metas) == 0 {
		return "", sw.abort(ErrEmptyTable)
	}

	bloom := NewBloomFilter(len(sw.bloomKeys), sw.cfg.BloomFalsePositiveRate)
	for _, key := range sw.bloomKeys {
		bloom.Add([]byte(key))
	}

	meta := MetaBlock{
		Blocks:      sw.metas,
		BloomData:   bloom.Serialize(),
		MinKey:      sw.minKey,
		MaxKey:      sw.lastKey,
		RecordCount: sw.count,
		Timestamp:   sw.timestamp,
	}

	encoded := encodeMetaBlock(meta)
	stored, err := compressFrame(encoded)
	if err != nil {
		return "", sw.abort(fmt.Errorf("compress metablock: %w", err))
	}

	metaOffset := sw.offset
	var frame [4]byte
	binary.LittleEndian.PutUint32(frame[:], uint32(len(encoded)))
	if _, err := sw.w.Write(frame[:]); err != nil {
		return "", sw.abort(fmt.Errorf("write metablock frame: %w", err))
	}
	if _, err := sw.w.Write(stored); err != nil {
		return "", sw.abort(fmt.Errorf("write metablock: %w", err))
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint64(footer[:], metaOffset)
	if _, err := sw.w.Write(footer[:]); err != nil {
		return "", sw.abort(fmt.Errorf("write footer: %w", err))
	}

	if err := sw.w.Flush(); err != nil {
		return "", sw.abort(fmt.Errorf("flush sstable: %w", err))
	}
	if err := sw.file.Sync(); err != nil {
		return "", sw.abort(fmt.Errorf("sync sstable: %w", err))
	}
	if err := sw.file.Close(); err != nil {
		os.Remove(sw.path)
		return "", fmt.Errorf("close sstable: %w", err)
	}
	return sw.path, nil
}

// abort closes and removes the partial file, returning the causing error.
func (sw *SSTableWriter) abort(cause error) error {
	sw.file.Close()
	os.Remove(sw.path)
	return cause
}
