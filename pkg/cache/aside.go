package cache

import (
	"time"
)

// Aside memoizes read accessors for a fixed TTL. Misses call the loader and
// store its result; loader errors are returned and never cached.
type Aside struct {
	cache Cache
	ttl   time.Duration
}

// NewAside wraps c. A non-positive ttl disables caching.
func NewAside(c Cache, ttl time.Duration) *Aside {
	return &Aside{cache: c, ttl: ttl}
}

// Load returns the cached value for key or the result of load.
func Load[T any](a *Aside, key string, load func() (T, error)) (T, error) {
	if a == nil || a.cache == nil || a.ttl <= 0 {
		return load()
	}

	if cached, ok := a.cache.Get(key); ok {
		if v, ok := cached.(T); ok {
			return v, nil
		}
	}

	v, err := load()
	if err != nil {
		CacheLoadErrorsTotal.Inc()
		return v, err
	}
	a.cache.Set(key, v, a.ttl)

	return v, nil
}

// Invalidate drops every memoized value.
func (a *Aside) Invalidate() {
	if a == nil || a.cache == nil {
		return
	}
	a.cache.Clear()
}
