package lsm

import (
	"encoding/binary"
	"unicode/utf8"
)

// Record wire format, all integers little-endian:
//
//	[key_len:u32][key:key_len][value_len:u32][value:value_len][timestamp:u128][tombstone:u8]
//
// The timestamp occupies 16 bytes on disk; the high word is always zero and
// a nonzero high word is rejected as a bad frame. Widths and endianness are
// contractual: they define file compatibility for the WAL and SSTables.

const recordOverhead = 4 + 4 + 16 + 1

// EncodedSize returns the exact number of bytes EncodeRecord produces.
func (r Record) EncodedSize() int {
	return recordOverhead + len(r.Key) + len(r.Value)
}

// EncodeRecord serializes a record into its length-prefixed wire frame.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, 0, r.EncodedSize())
	return AppendRecord(buf, r)
}

// AppendRecord appends the wire frame of r to dst and returns the result.
func AppendRecord(dst []byte, r Record) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(r.Key)))
	dst = append(dst, r.Key...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(r.Value)))
	dst = append(dst, r.Value...)
	dst = binary.LittleEndian.AppendUint64(dst, r.Timestamp)
	dst = binary.LittleEndian.AppendUint64(dst, 0) // timestamp high word
	if r.Tombstone {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	return dst
}

// DecodeRecord deserializes a record from the start of buf and returns it
// together with the number of bytes consumed. Fails with ErrBadFrame on
// truncation, ErrBadUtf8 on a malformed key, and ErrBadFlag on an
// out-of-range tombstone byte.
func DecodeRecord(buf []byte) (Record, int, error) {
	if len(buf) < 4 {
		return Record{}, 0, ErrBadFrame
	}
	keyLen := int(binary.LittleEndian.Uint32(buf))
	pos := 4
	if len(buf)-pos < keyLen {
		return Record{}, 0, ErrBadFrame
	}
	key := buf[pos : pos+keyLen]
	pos += keyLen

	if len(buf)-pos < 4 {
		return Record{}, 0, ErrBadFrame
	}
	valueLen := int(binary.LittleEndian.Uint32(buf[pos:]))
	pos += 4
	if len(buf)-pos < valueLen {
		return Record{}, 0, ErrBadFrame
	}
	value := buf[pos : pos+valueLen]
	pos += valueLen

	if len(buf)-pos < 17 {
		return Record{}, 0, ErrBadFrame
	}
	ts := binary.LittleEndian.Uint64(buf[pos:])
	tsHigh := binary.LittleEndian.Uint64(buf[pos+8:])
	if tsHigh != 0 {
		return Record{}, 0, ErrBadFrame
	}
	pos += 16

	flag := buf[pos]
	pos++
	if flag > 1 {
		return Record{}, 0, ErrBadFlag
	}
	if !utf8.Valid(key) {
		return Record{}, 0, ErrBadUtf8
	}

	rec := Record{
		Key:       string(key),
		Timestamp: ts,
		Tombstone: flag == 1,
	}
	if valueLen > 0 {
		rec.Value = make([]byte, valueLen)
		copy(rec.Value, value)
	} else if flag == 0 {
		// An empty value is legal and distinct from absent; keep it non-nil
		// so round-trips preserve the distinction.
		rec.Value = []byte{}
	}
	return rec, pos, nil
}
