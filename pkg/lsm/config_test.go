package lsm

import (
	"errors"
	"testing"
)

// TestConfig_DefaultIsValid tests the shipped defaults
func TestConfig_DefaultIsValid(t *testing.T) {
	if err := DefaultConfig(t.TempDir()).Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

// TestConfig_Validation tests that every bad parameter maps to its sentinel
func TestConfig_Validation(t *testing.T) {
	base := DefaultConfig("/tmp/lsmkv-test")

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"zero memtable", func(c *Config) { c.MemtableMaxSize = 0 }, ErrInvalidMemtableSize},
		{"tiny memtable", func(c *Config) { c.MemtableMaxSize = 512 }, ErrInvalidMemtableSize},
		{"huge memtable", func(c *Config) { c.MemtableMaxSize = 2 * 1024 * 1024 * 1024 }, ErrInvalidMemtableSize},
		{"zero block", func(c *Config) { c.BlockSize = 0 }, ErrInvalidBlockSize},
		{"tiny block", func(c *Config) { c.BlockSize = 128 }, ErrInvalidBlockSize},
		{"huge block", func(c *Config) { c.BlockSize = 2 * 1024 * 1024 }, ErrInvalidBlockSize},
		{"zero cache", func(c *Config) { c.BlockCacheSizeMiB = 0 }, ErrInvalidCacheSize},
		{"zero interval", func(c *Config) { c.SparseIndexInterval = 0 }, ErrInvalidIndexInterval},
		{"zero bloom rate", func(c *Config) { c.BloomFalsePositiveRate = 0 }, ErrInvalidBloomRate},
		{"bloom rate of one", func(c *Config) { c.BloomFalsePositiveRate = 1 }, ErrInvalidBloomRate},
		{"negative bloom rate", func(c *Config) { c.BloomFalsePositiveRate = -0.5 }, ErrInvalidBloomRate},
	}

	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

// TestConfig_BadSyncMode tests rejection of unknown sync modes
func TestConfig_BadSyncMode(t *testing.T) {
	cfg := DefaultConfig("/tmp/lsmkv-test")
	cfg.WALSyncMode = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown sync mode")
	}
}
