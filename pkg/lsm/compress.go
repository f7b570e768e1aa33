package lsm

import (
	"github.com/pierrec/lz4/v4"
)

// Sealed frames use LZ4 block mode. A frame whose compressed form would not
// shrink is stored raw; the surrounding metadata (BlockMeta sizes, or the
// MetaBlock's explicit size prefix) disambiguates the two cases, so no
// per-frame header is needed.

// compressFrame compresses src, returning the bytes to store. When LZ4
// cannot shrink the input the original bytes are returned unchanged and the
// stored size equals the uncompressed size.
func compressFrame(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(src) {
		return src, nil
	}
	return dst[:n], nil
}

// decompressFrame restores a frame stored by compressFrame. stored and
// uncompressedSize come from the frame's metadata; equal sizes mark the
// stored-raw case.
func decompressFrame(stored []byte, uncompressedSize int) ([]byte, error) {
	if len(stored) == uncompressedSize {
		return stored, nil
	}
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(stored, dst)
	if err != nil {
		return nil, corruptionErr("lz4 decompression failed: %v", err)
	}
	if n != uncompressedSize {
		return nil, corruptionErr("decompressed size mismatch: expected %d, got %d", uncompressedSize, n)
	}
	return dst, nil
}
