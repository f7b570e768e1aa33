package lsm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

func testConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	return cfg
}

func writeTestTable(t *testing.T, dir string, cfg Config, records []Record) (string, *GlobalBlockCache) {
	t.Helper()
	path := filepath.Join(dir, "test.sst")
	writer, err := NewSSTableWriter(path, cfg, 123)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	for _, rec := range records {
		if err := writer.Add(rec); err != nil {
			t.Fatalf("add %q: %v", rec.Key, err)
		}
	}
	if _, err := writer.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return path, NewGlobalBlockCache(cfg.BlockCacheSizeMiB, cfg.BlockSize)
}

// TestSSTable_RoundTrip tests write-then-read of a small table
func TestSSTable_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	records := []Record{
		{Key: "key1", Value: []byte("value1"), Timestamp: 1},
		{Key: "key2", Value: []byte("value2"), Timestamp: 2},
		{Key: "key3", Value: []byte("value3"), Timestamp: 3},
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	for _, want := range records {
		got, found, err := reader.Get(want.Key)
		if err != nil {
			t.Fatalf("get %q: %v", want.Key, err)
		}
		if !found {
			t.Fatalf("key %q not found", want.Key)
		}
		if !bytes.Equal(got.Value, want.Value) {
			t.Errorf("%q: value %s != %s", want.Key, got.Value, want.Value)
		}
	}

	if _, found, _ := reader.Get("key4"); found {
		t.Error("found a key that was never written")
	}

	if reader.MinKey() != "key1" || reader.MaxKey() != "key3" {
		t.Errorf("key range %q..%q", reader.MinKey(), reader.MaxKey())
	}
	if reader.RecordCount() != 3 {
		t.Errorf("record count %d", reader.RecordCount())
	}
}

// TestSSTable_MultipleBlocks tests a table spanning many blocks
func TestSSTable_MultipleBlocks(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BlockSize = 256

	var records []Record
	for i := 0; i < 50; i++ {
		records = append(records, Record{
			Key:       fmt.Sprintf("key_%03d", i),
			Value:     bytes.Repeat([]byte("x"), 20),
			Timestamp: uint64(i),
		})
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	if len(reader.Metadata().Blocks) < 2 {
		t.Fatalf("expected multiple blocks, got %d", len(reader.Metadata().Blocks))
	}
	for _, want := range records {
		_, found, err := reader.Get(want.Key)
		if err != nil || !found {
			t.Fatalf("key %q: found=%v err=%v", want.Key, found, err)
		}
	}
}

// TestSSTable_ScanAscending tests global key ordering across blocks
func TestSSTable_ScanAscending(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BlockSize = 256

	var records []Record
	for i := 0; i < 200; i++ {
		records = append(records, Record{Key: fmt.Sprintf("k%05d", i), Value: []byte("v"), Timestamp: 1})
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	scanned, err := reader.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != len(records) {
		t.Fatalf("scan returned %d of %d records", len(scanned), len(records))
	}
	for i := 1; i < len(scanned); i++ {
		if scanned[i].Key <= scanned[i-1].Key {
			t.Fatalf("scan not strictly ascending at %d: %q after %q", i, scanned[i].Key, scanned[i-1].Key)
		}
	}
}

// TestSSTable_BoundaryKeys tests lookups at and beyond the key range
func TestSSTable_BoundaryKeys(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BlockSize = 256

	var records []Record
	for i := 10; i < 60; i++ {
		records = append(records, Record{Key: fmt.Sprintf("key_%03d", i), Value: []byte("v"), Timestamp: 1})
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	// First key of the first block
	if _, found, _ := reader.Get("key_010"); !found {
		t.Error("first key not found")
	}
	// First key of a later block
	blocks := reader.Metadata().Blocks
	if len(blocks) > 1 {
		if _, found, _ := reader.Get(blocks[1].FirstKey); !found {
			t.Errorf("block boundary key %q not found", blocks[1].FirstKey)
		}
	}
	// Before all keys
	if _, found, _ := reader.Get("key_000"); found {
		t.Error("found a key before the table's range")
	}
	// After all keys
	if _, found, _ := reader.Get("zzz"); found {
		t.Error("found a key after the table's range")
	}
}

// TestSSTable_BloomSoundness tests that every written key passes the filter
func TestSSTable_BloomSoundness(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	var records []Record
	for i := 0; i < 500; i++ {
		records = append(records, Record{Key: fmt.Sprintf("bloom_%04d", i), Value: []byte("v"), Timestamp: 1})
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	for _, rec := range records {
		if !reader.MightContain(rec.Key) {
			t.Fatalf("bloom false negative for %q", rec.Key)
		}
	}
}

// TestSSTable_Tombstones tests that tombstones survive the round trip
func TestSSTable_Tombstones(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	records := []Record{
		{Key: "alive", Value: []byte("v"), Timestamp: 1},
		{Key: "dead", Timestamp: 2, Tombstone: true},
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	rec, found, err := reader.Get("dead")
	if err != nil || !found {
		t.Fatalf("tombstone lookup: found=%v err=%v", found, err)
	}
	if !rec.Tombstone {
		t.Error("tombstone flag lost across the round trip")
	}
	if reader.RecordCount() != 2 {
		t.Errorf("record count %d should include tombstones", reader.RecordCount())
	}
}

// TestSSTableWriter_OutOfOrder tests rejection of non-ascending keys
func TestSSTableWriter_OutOfOrder(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewSSTableWriter(filepath.Join(dir, "ooo.sst"), testConfig(dir), 1)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if err := writer.Add(Record{Key: "b", Value: []byte("v"), Timestamp: 1}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := writer.Add(Record{Key: "a", Value: []byte("v"), Timestamp: 2}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}
	if err := writer.Add(Record{Key: "b", Value: []byte("v"), Timestamp: 3}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("duplicate key: expected ErrOutOfOrder, got %v", err)
	}
}

// TestSSTableWriter_EmptyTable tests that finishing with no records fails
func TestSSTableWriter_EmptyTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.sst")
	writer, err := NewSSTableWriter(path, testConfig(dir), 1)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if _, err := writer.Finish(); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("partial file left behind after failed finish")
	}
}

// TestSSTableReader_BadMagic tests rejection of unknown file formats
func TestSSTableReader_BadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sst")
	if err := os.WriteFile(path, []byte("NOTMAGIC-and-some-padding-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenSSTable(path, NewGlobalBlockCache(1, 4096))
	if !errors.Is(err, ErrInvalidSSTableFormat) {
		t.Errorf("expected ErrInvalidSSTableFormat, got %v", err)
	}
}

// TestSSTableReader_TruncatedFooter tests rejection of short files
func TestSSTableReader_TruncatedFooter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.sst")
	if err := os.WriteFile(path, []byte(sstableMagic), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := OpenSSTable(path, NewGlobalBlockCache(1, 4096))
	if !errors.Is(err, ErrInvalidSSTableFormat) {
		t.Errorf("expected ErrInvalidSSTableFormat, got %v", err)
	}
}

// TestSSTableReader_ImpossibleMetaOffset tests footer sanity checking
func TestSSTableReader_ImpossibleMetaOffset(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	path, cache := writeTestTable(t, dir, cfg, []Record{{Key: "k", Value: []byte("v"), Timestamp: 1}})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Point the footer far past the end of the file
	for i := 0; i < footerSize; i++ {
		raw[len(raw)-footerSize+i] = 0xff
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenSSTable(path, cache); !errors.Is(err, ErrInvalidSSTableFormat) {
		t.Errorf("expected ErrInvalidSSTableFormat, got %v", err)
	}
}

// TestSSTableReader_CorruptBlock tests size validation on decompression
func TestSSTableReader_CorruptBlock(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BlockSize = 256

	var records []Record
	for i := 0; i < 50; i++ {
		records = append(records, Record{Key: fmt.Sprintf("key_%03d", i), Value: bytes.Repeat([]byte("abc"), 10), Timestamp: 1})
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first := reader.Metadata().Blocks[0]
	reader.Close()

	// Scribble over the first block's stored bytes
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	garbage := bytes.Repeat([]byte{0x5a}, int(first.Size))
	if _, err := file.WriteAt(garbage, int64(first.Offset)); err != nil {
		t.Fatal(err)
	}
	file.Close()

	reader, err = OpenSSTable(path, NewGlobalBlockCache(cfg.BlockCacheSizeMiB, cfg.BlockSize))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reader.Close()

	_, _, err = reader.Get("key_000")
	if !errors.Is(err, ErrCorruption) {
		t.Errorf("expected ErrCorruption, got %v", err)
	}
}

// TestSSTableReader_ConcurrentGets tests thread safety of a shared reader
func TestSSTableReader_ConcurrentGets(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BlockSize = 512

	var records []Record
	expected := make(map[string][]byte)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key_%05d", i)
		value := []byte(fmt.Sprintf("value_%05d", i))
		records = append(records, Record{Key: key, Value: value, Timestamp: uint64(i)})
		expected[key] = value
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				idx := (seed*2017 + i*131) % 1000
				key := fmt.Sprintf("key_%05d", idx)
				rec, found, err := reader.Get(key)
				if err != nil {
					errCh <- fmt.Errorf("get %q: %w", key, err)
					return
				}
				if !found {
					errCh <- fmt.Errorf("key %q missing", key)
					return
				}
				if !bytes.Equal(rec.Value, expected[key]) {
					errCh <- fmt.Errorf("key %q: corrupted value %q", key, rec.Value)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

// TestSSTable_SortedScanMatchesInput tests scan against the written set
func TestSSTable_SortedScanMatchesInput(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BlockSize = 300

	keys := []string{"a", "aa", "ab", "b", "ba", "z", "za", "zb", "zz", "zzz"}
	sort.Strings(keys)
	var records []Record
	for i, key := range keys {
		records = append(records, Record{Key: key, Value: []byte(key), Timestamp: uint64(i)})
	}
	path, cache := writeTestTable(t, dir, cfg, records)

	reader, err := OpenSSTable(path, cache)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	scanned, err := reader.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != len(keys) {
		t.Fatalf("scan returned %d of %d", len(scanned), len(keys))
	}
	for i, rec := range scanned {
		if rec.Key != keys[i] {
			t.Errorf("position %d: %q != %q", i, rec.Key, keys[i])
		}
	}
}
