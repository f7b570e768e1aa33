package lsm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// SSTableReader serves point reads and scans from one immutable SSTable.
// Opening loads only the magic, the footer, and the MetaBlock; data blocks
// are read lazily through the shared block cache. The bloom filter and
// sparse index stay resident, so a Get touches the disk only on a cache
// miss. Safe for concurrent use: the file descriptor mutex is held only
// around the positional read of a missed block.
type SSTableReader struct {
	path   string
	file   *os.File
	fileMu sync.Mutex
	meta   MetaBlock
	bloom  *BloomFilter
	cache  *GlobalBlockCache
}

// OpenSSTable opens path, verifies the magic tag, and loads the MetaBlock
// and bloom filter. Unknown magic fails with ErrInvalidSSTableFormat.
func OpenSSTable(path string, cache *GlobalBlockCache) (*SSTableReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sstable %s: %w", path, err)
	}

	r := &SSTableReader{path: path, file: file, cache: cache}
	if err := r.loadMeta(); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

func (r *SSTableReader) loadMeta() error {
	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("stat sstable: %w", err)
	}
	size := info.Size()
	if size < magicSize+footerSize {
		return formatErr("file too small (%d bytes)", size)
	}

	var magic [magicSize]byte
	if _, err := io.ReadFull(r.file, magic[:]); err != nil {
		return fmt.Errorf("read sstable magic: %w", err)
	}
	if string(magic[:]) != sstableMagic {
		return formatErr("unknown magic %q", magic)
	}

	var footer [footerSize]byte
	if _, err := r.file.ReadAt(footer[:], size-footerSize); err != nil {
		return fmt.Errorf("read sstable footer: %w", err)
	}
	metaOffset := binary.LittleEndian.Uint64(footer[:])
	if metaOffset < magicSize || metaOffset > uint64(size-footerSize-4) {
		return formatErr("impossible meta offset %d in %d-byte file", metaOffset, size)
	}

	frame := make([]byte, size-footerSize-int64(metaOffset))
	if _, err := r.file.ReadAt(frame, int64(metaOffset)); err != nil {
		return fmt.Errorf("read metablock: %w", err)
	}
	uncompressedSize := int(binary.LittleEndian.Uint32(frame))
	if uncompressedSize > maxMetaBlockSize {
		return corruptionErr("metablock claims %d bytes", uncompressedSize)
	}
	payload, err := decompressFrame(frame[4:], uncompressedSize)
	if err != nil {
		return err
	}
	meta, err := decodeMetaBlock(payload)
	if err != nil {
		return err
	}
	bloom, err := DeserializeBloomFilter(meta.BloomData)
	if err != nil {
		return err
	}

	r.meta = meta
	r.bloom = bloom
	return nil
}

// MightContain runs the bloom pre-check. No false negatives.
func (r *SSTableReader) MightContain(key string) bool {
	return r.bloom.MightContain([]byte(key))
}

// Get returns the record stored for key, if any. Tombstones are returned as
// records; the engine interprets the flag.
func (r *SSTableReader) Get(key string) (Record, bool, error) {
	if !r.bloom.MightContain([]byte(key)) {
		return Record{}, false, nil
	}

	bm, ok := r.candidateBlock(key)
	if !ok {
		return Record{}, false, nil
	}

	block, err := r.readBlock(bm)
	if err != nil {
		return Record{}, false, err
	}
	return block.Search(key)
}

// candidateBlock binary-searches the sparse index: the candidate is the last
// block whose first key is not greater than key.
func (r *SSTableReader) candidateBlock(key string) (BlockMeta, bool) {
	blocks := r.meta.Blocks
	idx := sort.Search(len(blocks), func(i int) bool {
		return blocks[i].FirstKey > key
	})
	if idx == 0 {
		return BlockMeta{}, false
	}
	return blocks[idx-1], true
}

// readBlock fetches one block through the cache. On a miss the file mutex is
// held only around the positional read; decompression and decoding happen
// outside it.
func (r *SSTableReader) readBlock(bm BlockMeta) (*Block, error) {
	key := NewCacheKey(r.path, bm.Offset)
	if cached, ok := r.cache.Get(key); ok {
		return DecodeBlock(cached)
	}

	stored := make([]byte, bm.Size)
	r.fileMu.Lock()
	_, err := r.file.ReadAt(stored, int64(bm.Offset))
	r.fileMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read block at offset %d: %w", bm.Offset, err)
	}

	payload, err := decompressFrame(stored, int(bm.UncompressedSize))
	if err != nil {
		return nil, err
	}

	block, err := DecodeBlock(payload)
	if err != nil {
		return nil, err
	}
	r.cache.Put(key, payload)
	return block, nil
}

// Scan yields every record in file order, which is ascending key order.
func (r *SSTableReader) Scan() ([]Record, error) {
	records := make([]Record, 0, r.meta.RecordCount)
	for _, bm := range r.meta.Blocks {
		block, err := r.readBlock(bm)
		if err != nil {
			return nil, err
		}
		blockRecords, err := block.Records()
		if err != nil {
			return nil, err
		}
		records = append(records, blockRecords...)
	}
	return records, nil
}

// Metadata returns the loaded MetaBlock.
func (r *SSTableReader) Metadata() MetaBlock { return r.meta }

// Path returns the underlying file path.
func (r *SSTableReader) Path() string { return r.path }

// MinKey returns the smallest key in the table.
func (r *SSTableReader) MinKey() string { return r.meta.MinKey }

// MaxKey returns the largest key in the table.
func (r *SSTableReader) MaxKey() string { return r.meta.MaxKey }

// RecordCount returns the number of records, tombstones included.
func (r *SSTableReader) RecordCount() uint64 { return r.meta.RecordCount }

// Close releases the file descriptor.
func (r *SSTableReader) Close() error {
	return r.file.Close()
}
