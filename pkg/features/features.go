// Package features stores dynamic feature flags inside the engine itself,
// under a single reserved key, with a short-lived read cache so hot checks
// do not hit the storage layer on every call.
package features

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlagsKey is the reserved engine key holding the serialized flag set.
const FlagsKey = "feature:all"

// Store is the slice of the engine the feature client needs.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// Flag is one feature switch.
type Flag struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// Set is the full flag set with a version bumped on every change.
type Set struct {
	Version uint64          `json:"version"`
	Flags   map[string]Flag `json:"flags"`
}

// Client reads and mutates the flag set.
type Client struct {
	store    Store
	cacheTTL time.Duration

	mu       sync.RWMutex
	cached   *Set
	cachedAt time.Time
}

// NewClient creates a feature client over store. cacheTTL bounds how stale
// an IsEnabled answer may be; zero disables caching.
func NewClient(store Store, cacheTTL time.Duration) *Client {
	return &Client{store: store, cacheTTL: cacheTTL}
}

func (c *Client) load() (Set, error) {
	if c.cacheTTL > 0 {
		c.mu.RLock()
		if c.cached != nil && time.Since(c.cachedAt) < c.cacheTTL {
			set := *c.cached
			c.mu.RUnlock()
			return set, nil
		}
		c.mu.RUnlock()
	}

	raw, found, err := c.store.Get(FlagsKey)
	if err != nil {
		return Set{}, fmt.Errorf("load feature flags: %w", err)
	}
	if !found {
		set := Set{Flags: make(map[string]Flag)}
		if err := c.save(set); err != nil {
			return Set{}, err
		}
		return set, nil
	}

	var set Set
	if err := json.Unmarshal(raw, &set); err != nil {
		return Set{}, fmt.Errorf("decode feature flags: %w", err)
	}
	if set.Flags == nil {
		set.Flags = make(map[string]Flag)
	}

	c.mu.Lock()
	c.cached = &set
	c.cachedAt = time.Now()
	c.mu.Unlock()
	return set, nil
}

func (c *Client) save(set Set) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode feature flags: %w", err)
	}
	if err := c.store.Put(FlagsKey, raw); err != nil {
		return fmt.Errorf("save feature flags: %w", err)
	}
	c.mu.Lock()
	c.cached = &set
	c.cachedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// IsEnabled reports whether flag name is on. Unknown flags are off.
func (c *Client) IsEnabled(name string) (bool, error) {
	set, err := c.load()
	if err != nil {
		return false, err
	}
	flag, ok := set.Flags[name]
	return ok && flag.Enabled, nil
}

// SetFlag creates or updates a flag and bumps the set version.
func (c *Client) SetFlag(name string, enabled bool, description string) error {
	set, err := c.load()
	if err != nil {
		return err
	}
	set.Flags[name] = Flag{Enabled: enabled, Description: description}
	set.Version++
	return c.save(set)
}

// DeleteFlag removes a flag; removing an unknown flag is a no-op.
func (c *Client) DeleteFlag(name string) error {
	set, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := set.Flags[name]; !ok {
		return nil
	}
	delete(set.Flags, name)
	set.Version++
	return c.save(set)
}

// List returns the current flag set.
func (c *Client) List() (Set, error) {
	return c.load()
}

// Invalidate drops the read cache, forcing the next call to reload.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
