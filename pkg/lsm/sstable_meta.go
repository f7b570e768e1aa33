package lsm

import (
	"encoding/binary"
)

// SSTable file layout, all integers little-endian:
//
//	[magic:8 ASCII]
//	[compressed block 0]
//	...
//	[compressed block N-1]
//	[metablock frame: uncompressed_size:u32 | payload]
//	[meta_offset:u64]
//
// The magic tag declares the writer version; readers refuse files whose
// magic they do not understand. The final 8 bytes locate the MetaBlock.
const (
	sstableMagic = "LSMSST02"
	magicSize    = 8
	footerSize   = 8

	// maxMetaBlockSize bounds the decompression buffer for a MetaBlock; a
	// larger claim can only come from a corrupt footer region.
	maxMetaBlockSize = 256 * 1024 * 1024
)

// BlockMeta describes one data block: its first key, absolute file offset,
// stored (possibly compressed) size, and uncompressed size. Equal sizes mark
// a block stored raw.
type BlockMeta struct {
	FirstKey         string
	Offset           uint64
	Size             uint32
	UncompressedSize uint32
}

// MetaBlock is the SSTable trailer descriptor: the sparse index (one
// BlockMeta per block, in file order), the serialized bloom filter, the key
// range, the record count including tombstones, and the creation timestamp.
type MetaBlock struct {
	Blocks      []BlockMeta
	BloomData   []byte
	MinKey      string
	MaxKey      string
	RecordCount uint64
	Timestamp   uint64
}

// encodeMetaBlock serializes the MetaBlock:
//
//	[num_blocks:u32]
//	per block: [first_key_len:u32][first_key][offset:u64][size:u32][uncompressed_size:u32]
//	[bloom_len:u32][bloom_data]
//	[min_key_len:u32][min_key][max_key_len:u32][max_key]
//	[record_count:u64][timestamp:u128]
func encodeMetaBlock(meta MetaBlock) []byte {
	buf := make([]byte, 0, 64+len(meta.BloomData))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(meta.Blocks)))
	for _, bm := range meta.Blocks {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bm.FirstKey)))
		buf = append(buf, bm.FirstKey...)
		buf = binary.LittleEndian.AppendUint64(buf, bm.Offset)
		buf = binary.LittleEndian.AppendUint32(buf, bm.Size)
		buf = binary.LittleEndian.AppendUint32(buf, bm.UncompressedSize)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(meta.BloomData)))
	buf = append(buf, meta.BloomData...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(meta.MinKey)))
	buf = append(buf, meta.MinKey...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(meta.MaxKey)))
	buf = append(buf, meta.MaxKey...)
	buf = binary.LittleEndian.AppendUint64(buf, meta.RecordCount)
	buf = binary.LittleEndian.AppendUint64(buf, meta.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // timestamp high word
	return buf
}

type metaDecoder struct {
	buf []byte
	pos int
	err error
}

func (d *metaDecoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.buf)-d.pos < 4 {
		d.err = corruptionErr("metablock truncated at offset %d", d.pos)
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

func (d *metaDecoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	if len(d.buf)-d.pos < 8 {
		d.err = corruptionErr("metablock truncated at offset %d", d.pos)
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v
}

func (d *metaDecoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.pos < n {
		d.err = corruptionErr("metablock truncated at offset %d", d.pos)
		return nil
	}
	v := d.buf[d.pos : d.pos+n]
	d.pos += n
	return v
}

// decodeMetaBlock deserializes a MetaBlock, failing with ErrCorruption on
// any truncation or implausible field.
func decodeMetaBlock(buf []byte) (MetaBlock, error) {
	d := &metaDecoder{buf: buf}

	numBlocks := d.uint32()
	if d.err == nil && int(numBlocks) > len(buf)/(4+8+4+4) {
		return MetaBlock{}, corruptionErr("implausible block count %d", numBlocks)
	}

	meta := MetaBlock{Blocks: make([]BlockMeta, 0, numBlocks)}
	for i := uint32(0); i < numBlocks && d.err == nil; i++ {
		keyLen := d.uint32()
		firstKey := string(d.bytes(int(keyLen)))
		bm := BlockMeta{
			FirstKey:         firstKey,
			Offset:           d.uint64(),
			Size:             d.uint32(),
			UncompressedSize: d.uint32(),
		}
		meta.Blocks = append(meta.Blocks, bm)
	}

	meta.BloomData = append([]byte(nil), d.bytes(int(d.uint32()))...)
	meta.MinKey = string(d.bytes(int(d.uint32())))
	meta.MaxKey = string(d.bytes(int(d.uint32())))
	meta.RecordCount = d.uint64()
	meta.Timestamp = d.uint64()
	if high := d.uint64(); d.err == nil && high != 0 {
		return MetaBlock{}, corruptionErr("nonzero timestamp high word %d", high)
	}

	if d.err != nil {
		return MetaBlock{}, d.err
	}
	if d.pos != len(buf) {
		return MetaBlock{}, corruptionErr("%d trailing bytes after metablock", len(buf)-d.pos)
	}
	return meta, nil
}
