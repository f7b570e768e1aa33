package lsm

import (
	"bytes"
	"sort"
	"testing"
)

// TestMemTable_BasicOperations tests insert and get
func TestMemTable_BasicOperations(t *testing.T) {
	mt := NewMemTable()

	mt.Insert(Record{Key: "testkey", Value: []byte("testvalue"), Timestamp: 1})

	rec, found := mt.Get("testkey")
	if !found {
		t.Fatal("expected to find key")
	}
	if !bytes.Equal(rec.Value, []byte("testvalue")) {
		t.Errorf("expected value testvalue, got %s", rec.Value)
	}

	if _, found := mt.Get("missing"); found {
		t.Error("found a key that was never inserted")
	}
}

// TestMemTable_TombstoneVisible tests that deletions are stored, not erased
func TestMemTable_TombstoneVisible(t *testing.T) {
	mt := NewMemTable()
	mt.Insert(Record{Key: "k", Value: []byte("v"), Timestamp: 1})
	mt.Insert(Record{Key: "k", Timestamp: 2, Tombstone: true})

	rec, found := mt.Get("k")
	if !found {
		t.Fatal("tombstone should be retrievable")
	}
	if !rec.Tombstone {
		t.Error("expected a tombstone record")
	}
	if mt.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", mt.Len())
	}
}

// TestMemTable_SizeAccounting tests the encoded-size deltas
func TestMemTable_SizeAccounting(t *testing.T) {
	mt := NewMemTable()
	if mt.ApproximateSize() != 0 {
		t.Fatalf("fresh table has size %d", mt.ApproximateSize())
	}

	first := Record{Key: "key", Value: []byte("short"), Timestamp: 1}
	mt.Insert(first)
	if mt.ApproximateSize() != first.EncodedSize() {
		t.Errorf("size %d != encoded size %d", mt.ApproximateSize(), first.EncodedSize())
	}

	second := Record{Key: "key", Value: []byte("a much longer replacement value"), Timestamp: 2}
	mt.Insert(second)
	if mt.ApproximateSize() != second.EncodedSize() {
		t.Errorf("size %d != encoded size %d after replacement", mt.ApproximateSize(), second.EncodedSize())
	}
}

// TestMemTable_DrainSorted tests ordering and the reset
func TestMemTable_DrainSorted(t *testing.T) {
	mt := NewMemTable()
	keys := []string{"delta", "alpha", "charlie", "bravo", "echo"}
	for i, key := range keys {
		mt.Insert(Record{Key: key, Value: []byte(key), Timestamp: uint64(i)})
	}

	records := mt.DrainSorted()
	if len(records) != len(keys) {
		t.Fatalf("expected %d records, got %d", len(keys), len(records))
	}
	if !sort.SliceIsSorted(records, func(i, j int) bool { return records[i].Key < records[j].Key }) {
		t.Error("drained records not in ascending key order")
	}

	if mt.Len() != 0 || mt.ApproximateSize() != 0 {
		t.Errorf("drain did not reset: %d records, %d bytes", mt.Len(), mt.ApproximateSize())
	}
}

// TestMemTable_LatestWriteWins tests duplicate-key replacement
func TestMemTable_LatestWriteWins(t *testing.T) {
	mt := NewMemTable()
	mt.Insert(Record{Key: "x", Value: []byte("v1"), Timestamp: 1})
	mt.Insert(Record{Key: "x", Value: []byte("v2"), Timestamp: 2})

	rec, _ := mt.Get("x")
	if !bytes.Equal(rec.Value, []byte("v2")) {
		t.Errorf("expected v2, got %s", rec.Value)
	}

	records := mt.SortedRecords()
	if len(records) != 1 {
		t.Errorf("duplicate key produced %d records", len(records))
	}
}
