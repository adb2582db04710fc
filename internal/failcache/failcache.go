// Package failcache remembers recent conversion failures so a broken source is
// not downloaded and rendered again on every request.
package failcache

import (
	"time"

	"github.com/patrickmn/go-cache"

	"stickerbridge/internal/sticker"
)

// Failure is the remembered reason for a failed conversion.
type Failure struct {
	Reason   string
	FailedAt time.Time
}

// Cache is a TTL map of keys that recently failed. The zero TTL disables it.
type Cache struct {
	ttl     time.Duration
	entries *cache.Cache
}

// New builds a Cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{}
	}
	return &Cache{
		ttl:     ttl,
		entries: cache.New(ttl, 2*ttl),
	}
}

// Remember records a failure for key.
func (c *Cache) Remember(key sticker.Key, reason string) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Set(string(key), Failure{Reason: reason, FailedAt: time.Now()}, cache.DefaultExpiration)
}

// Lookup returns the failure recorded for key, if it has not expired.
func (c *Cache) Lookup(key sticker.Key) (Failure, bool) {
	if c == nil || c.entries == nil {
		return Failure{}, false
	}
	value, ok := c.entries.Get(string(key))
	if !ok {
		return Failure{}, false
	}
	failure, ok := value.(Failure)
	return failure, ok
}

// Forget clears any failure recorded for key.
func (c *Cache) Forget(key sticker.Key) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Delete(string(key))
}

// Len returns the number of remembered failures, including expired entries
// not yet collected.
func (c *Cache) Len() int {
	if c == nil || c.entries == nil {
		return 0
	}
	return c.entries.ItemCount()
}

// TTL returns how long failures are remembered.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}
