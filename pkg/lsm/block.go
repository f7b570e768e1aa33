package lsm

import (
	"encoding/binary"
	"math"
)

// Block packs a sorted batch of encoded records into a single byte region:
//
//	[record_0][record_1]...[record_N-1][offset_0:u32]...[offset_N-1:u32][count:u32]
//
// Offsets are absolute within the payload and deliberately 32 bits wide so a
// block can address payloads up to ~4 GiB; the configured block size cap must
// never exceed what the offset width can address.
type Block struct {
	data       []byte
	offsets    []uint32
	targetSize int
}

const blockOffsetWidth = 4

// NewBlock creates an empty block with the given target encoded size.
func NewBlock(targetSize int) *Block {
	return &Block{targetSize: targetSize}
}

// encodedSize is the current wire size: payload plus offset table plus count.
func (b *Block) encodedSize() int {
	return len(b.data) + len(b.offsets)*blockOffsetWidth + blockOffsetWidth
}

// Append pushes one encoded record into the block. It fails with ErrBlockFull
// when adding the record would exceed the target size and the block already
// holds at least one record; a record larger than the target is always
// accepted into an otherwise-empty block.
func (b *Block) Append(encoded []byte) error {
	needed := b.encodedSize() + len(encoded) + blockOffsetWidth
	if needed > b.targetSize && len(b.offsets) > 0 {
		return ErrBlockFull
	}
	if len(b.data) > math.MaxUint32 {
		return ErrBlockFull
	}
	b.offsets = append(b.offsets, uint32(len(b.data)))
	b.data = append(b.data, encoded...)
	return nil
}

// Len returns the number of records in the block.
func (b *Block) Len() int {
	return len(b.offsets)
}

// DataSize returns the payload size in bytes, excluding the offset table.
func (b *Block) DataSize() int {
	return len(b.data)
}

// Encode produces the block's uncompressed wire form.
func (b *Block) Encode() []byte {
	encoded := make([]byte, 0, b.encodedSize())
	encoded = append(encoded, b.data...)
	for _, offset := range b.offsets {
		encoded = binary.LittleEndian.AppendUint32(encoded, offset)
	}
	encoded = binary.LittleEndian.AppendUint32(encoded, uint32(len(b.offsets)))
	return encoded
}

// DecodeBlock parses a block from its wire form, validating that the offset
// table is well-formed and that every offset points at a decodable record.
func DecodeBlock(data []byte) (*Block, error) {
	if len(data) < blockOffsetWidth {
		return nil, corruptionErr("block shorter than its count field (%d bytes)", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[len(data)-blockOffsetWidth:]))
	tableSize := count*blockOffsetWidth + blockOffsetWidth
	if tableSize > len(data) {
		return nil, corruptionErr("block offset table overruns block (%d entries, %d bytes)", count, len(data))
	}

	payload := data[:len(data)-tableSize]
	offsets := make([]uint32, count)
	pos := len(data) - tableSize
	for i := 0; i < count; i++ {
		offsets[i] = binary.LittleEndian.Uint32(data[pos:])
		pos += blockOffsetWidth
	}

	prev := -1
	for i, offset := range offsets {
		if int(offset) >= len(payload) {
			return nil, corruptionErr("offset %d out of payload range", offset)
		}
		if int(offset) <= prev {
			return nil, corruptionErr("offset table not strictly ascending at entry %d", i)
		}
		prev = int(offset)
		if _, _, err := DecodeRecord(payload[offset:]); err != nil {
			return nil, corruptionErr("record at offset %d: %v", offset, err)
		}
	}

	b := &Block{
		data:    append([]byte(nil), payload...),
		offsets: offsets,
	}
	return b, nil
}

// Search linearly scans the block for key. Blocks are small, so a linear walk
// over the offset table beats binary search over variable-length records.
func (b *Block) Search(key string) (Record, bool, error) {
	for _, offset := range b.offsets {
		rec, _, err := DecodeRecord(b.data[offset:])
		if err != nil {
			return Record{}, false, corruptionErr("record at offset %d: %v", offset, err)
		}
		if rec.Key == key {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// Records decodes every record in the block in offset order.
func (b *Block) Records() ([]Record, error) {
	records := make([]Record, 0, len(b.offsets))
	for _, offset := range b.offsets {
		rec, _, err := DecodeRecord(b.data[offset:])
		if err != nil {
			return nil, corruptionErr("record at offset %d: %v", offset, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// FirstKey returns the key of the first record, or false for an empty block.
func (b *Block) FirstKey() (string, bool) {
	if len(b.offsets) == 0 {
		return "", false
	}
	rec, _, err := DecodeRecord(b.data[b.offsets[0]:])
	if err != nil {
		return "", false
	}
	return rec.Key, true
}
