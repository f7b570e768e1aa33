package lsm

import "time"

// Record is the unit of storage: a key, an opaque value, a wall-clock
// nanosecond timestamp, and a tombstone flag marking deletion. Timestamps
// break ties between duplicate keys; the newest record wins.
type Record struct {
	Key       string
	Value     []byte
	Timestamp uint64 // wall-clock nanoseconds
	Tombstone bool
}

// NewRecord creates a live record stamped with the current wall clock.
func NewRecord(key string, value []byte) Record {
	return Record{
		Key:       key,
		Value:     value,
		Timestamp: uint64(time.Now().UnixNano()),
	}
}

// NewTombstone creates a deletion marker for key. The value is empty; readers
// ignore a tombstone's value.
func NewTombstone(key string) Record {
	return Record{
		Key:       key,
		Timestamp: uint64(time.Now().UnixNano()),
		Tombstone: true,
	}
}
