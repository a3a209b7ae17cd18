// Package cache provides a TTL cache and the cache-aside helper used in
// front of the detector read API.
package cache

import "time"

// Cache stores values with a time-to-live.
type Cache interface {
	// Get returns (value, true) when key is cached and not expired.
	Get(key string) (any, bool)

	// Set stores value under key for ttl. Writes may be applied asynchronously
	// and may be rejected under memory pressure.
	Set(key string, value any, ttl time.Duration) bool

	Delete(key string)

	// Clear drops every entry.
	Clear()

	Close()
}
