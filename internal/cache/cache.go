// Package cache provides a TTL cache on top of a kv.Store.
// Entries are stored as {"value": ..., "ts": <epoch-ms>} and expire a fixed
// duration after they were written. Expired entries are removed lazily on read.
package cache

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/maauso/videogen/internal/kv"
)

// DefaultTTL is how long a cached value stays valid after it was written.
const DefaultTTL = 7 * 24 * time.Hour

// entry is the persisted shape of a cached value.
type entry struct {
	Value json.RawMessage `json:"value"`
	TS    int64           `json:"ts"`
}

// Cache is a key-value cache with a fixed time-to-live per entry.
// All operations are total: storage failures are logged and malformed stored
// data is treated as absent.
type Cache struct {
	store  kv.Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cache over store.
func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Set stores value under key stamped with the current time.
// Any existing entry is overwritten.
func (c *Cache) Set(key, value string) {
	SetValue(c, key, value)
}

// Get returns the string stored under key. It reports false when the key was
// never set, the stored data is unparsable or empty, or the entry has expired.
// An expired entry is also removed from the store.
func (c *Cache) Get(key string) (string, bool) {
	return GetValue[string](c, key)
}

// Remove deletes key. It never fails, even if key is absent.
func (c *Cache) Remove(key string) {
	if err := c.store.Remove(key); err != nil {
		c.logger.Warn("cache remove failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// SetValue stores an arbitrary JSON-encodable value under key.
func SetValue[T any](c *Cache, key string, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	data, err := json.Marshal(entry{Value: raw, TS: c.now().UnixMilli()})
	if err != nil {
		return
	}
	if err := c.store.Set(key, string(data)); err != nil {
		c.logger.Warn("cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// GetValue returns the value stored under key decoded as T.
// Values that do not decode as T, and zero-valued values, are reported absent.
func GetValue[T any](c *Cache, key string) (T, bool) {
	var zero T

	raw, ok := c.lookup(key)
	if !ok {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	if isZero(v) {
		return zero, false
	}
	return v, true
}

// lookup returns the raw value of a live entry, purging it when expired.
func (c *Cache) lookup(key string) (json.RawMessage, bool) {
	raw, ok := c.store.Get(key)
	if !ok || raw == "" {
		return nil, false
	}

	var e *entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e == nil {
		return nil, false
	}

	storedAt := time.UnixMilli(e.TS)
	if c.now().Sub(storedAt) > c.ttl {
		c.Remove(key)
		return nil, false
	}

	if len(e.Value) == 0 || string(e.Value) == "null" {
		return nil, false
	}
	return e.Value, true
}

func isZero[T any](v T) bool {
	switch x := any(v).(type) {
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	default:
		return false
	}
}
