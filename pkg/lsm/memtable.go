package lsm

import "sort"

// MemTable is the in-memory write buffer: an ordered map from key to the
// latest record for that key, with byte accounting used to decide when to
// flush. It is not internally synchronized; the engine guards it with its
// reader-writer lock.
type MemTable struct {
	data   map[string]Record
	keys   []string
	sorted bool
	size   int
}

// NewMemTable creates an empty MemTable.
func NewMemTable() *MemTable {
	return &MemTable{
		data:   make(map[string]Record),
		sorted: true,
	}
}

// Insert stores rec under its key, replacing any previous record and
// adjusting the byte accounting by the delta of the encoded sizes.
func (mt *MemTable) Insert(rec Record) {
	if old, exists := mt.data[rec.Key]; exists {
		mt.size -= old.EncodedSize()
	} else {
		mt.keys = append(mt.keys, rec.Key)
		mt.sorted = false
	}
	mt.size += rec.EncodedSize()
	mt.data[rec.Key] = rec
}

// Get returns the stored record for key. The record may be a tombstone;
// callers interpret the flag.
func (mt *MemTable) Get(key string) (Record, bool) {
	rec, ok := mt.data[key]
	return rec, ok
}

// Len returns the number of distinct keys.
func (mt *MemTable) Len() int {
	return len(mt.data)
}

// ApproximateSize returns the sum of encoded record sizes currently held.
func (mt *MemTable) ApproximateSize() int {
	return mt.size
}

// SortedRecords returns the records in ascending key order without draining.
func (mt *MemTable) SortedRecords() []Record {
	if !mt.sorted {
		sort.Strings(mt.keys)
		mt.sorted = true
	}
	records := make([]Record, 0, len(mt.keys))
	for _, key := range mt.keys {
		records = append(records, mt.data[key])
	}
	return records
}

// DrainSorted returns all records in ascending key order and resets the
// table to empty, including its byte accounting.
func (mt *MemTable) DrainSorted() []Record {
	records := mt.SortedRecords()
	mt.data = make(map[string]Record)
	mt.keys = nil
	mt.sorted = true
	mt.size = 0
	return records
}
