package lsm

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// BloomFilter is a probabilistic set over keys. False positives are possible;
// false negatives are not. The serialized form is embedded in each SSTable's
// MetaBlock, so the layout below is part of the on-disk contract:
//
//	[nbits:u64][hash_count:u64][words:u64 x ceil(nbits/64)]
type BloomFilter struct {
	words     []uint64
	nbits     uint64
	hashCount int
}

const maxBloomBits = 1 << 33 // ~1 GiB of bitmap, well past any sane table

// NewBloomFilter sizes a filter for the given item count and false positive
// rate using the standard formulas m = -n·ln(p)/ln(2)² and k = (m/n)·ln(2).
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	nbits := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if nbits < 64 {
		nbits = 64
	}
	if nbits > maxBloomBits {
		nbits = maxBloomBits
	}

	hashCount := int(math.Round(float64(nbits) / float64(expectedItems) * math.Ln2))
	if hashCount < 1 {
		hashCount = 1
	}
	if hashCount > 30 {
		hashCount = 30
	}

	return &BloomFilter{
		words:     make([]uint64, (nbits+63)/64),
		nbits:     nbits,
		hashCount: hashCount,
	}
}

// hashPair derives two independent 64-bit hashes of key; probe positions are
// the Kirsch-Mitzenmacher combination h1 + i*h2.
func hashPair(key []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(key)
	h1 := h.Sum64()
	h.Write([]byte{0xff})
	h2 := h.Sum64() | 1
	return h1, h2
}

// Add inserts a key into the filter.
func (bf *BloomFilter) Add(key []byte) {
	h1, h2 := hashPair(key)
	for i := 0; i < bf.hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % bf.nbits
		bf.words[bit/64] |= 1 << (bit % 64)
	}
}

// MightContain reports whether key may be in the set. A false result is
// definitive; a true result may be a false positive.
func (bf *BloomFilter) MightContain(key []byte) bool {
	h1, h2 := hashPair(key)
	for i := 0; i < bf.hashCount; i++ {
		bit := (h1 + uint64(i)*h2) % bf.nbits
		if bf.words[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// Serialize produces the filter's wire form.
func (bf *BloomFilter) Serialize() []byte {
	buf := make([]byte, 0, 16+len(bf.words)*8)
	buf = binary.LittleEndian.AppendUint64(buf, bf.nbits)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(bf.hashCount))
	for _, word := range bf.words {
		buf = binary.LittleEndian.AppendUint64(buf, word)
	}
	return buf
}

// DeserializeBloomFilter reconstructs a filter from its wire form.
func DeserializeBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 16 {
		return nil, corruptionErr("bloom filter data too short (%d bytes)", len(data))
	}
	nbits := binary.LittleEndian.Uint64(data)
	hashCount := binary.LittleEndian.Uint64(data[8:])
	if nbits == 0 || nbits > maxBloomBits || hashCount == 0 || hashCount > 64 {
		return nil, corruptionErr("implausible bloom filter header (nbits=%d, hashes=%d)", nbits, hashCount)
	}
	wordCount := int((nbits + 63) / 64)
	if len(data) != 16+wordCount*8 {
		return nil, corruptionErr("bloom filter bitmap size mismatch (%d bytes for %d bits)", len(data)-16, nbits)
	}
	words := make([]uint64, wordCount)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[16+i*8:])
	}
	return &BloomFilter{
		words:     words,
		nbits:     nbits,
		hashCount: int(hashCount),
	}, nil
}
