package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache applies writes synchronously, unlike Ristretto.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]any
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]any)}
}

func (m *mapCache) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.entries[key]
	return v, ok
}

func (m *mapCache) Set(key string, value any, _ time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = value
	return true
}

func (m *mapCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
}

func (m *mapCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]any)
}

func (m *mapCache) Close() {}

func TestLoad_MemoizesUntilInvalidated(t *testing.T) {
	aside := NewAside(newMapCache(), time.Minute)
	calls := 0
	load := func() ([]int, error) {
		calls++
		return []int{calls}, nil
	}

	first, err := Load(aside, "k", load)
	require.NoError(t, err)
	second, err := Load(aside, "k", load)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	aside.Invalidate()
	third, err := Load(aside, "k", load)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, third)
}

func TestLoad_ErrorsAreNotCached(t *testing.T) {
	aside := NewAside(newMapCache(), time.Minute)
	fail := true
	calls := 0
	load := func() (string, error) {
		calls++
		if fail {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	_, err := Load(aside, "k", load)
	require.Error(t, err)

	fail = false
	v, err := Load(aside, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestLoad_TypeMismatchReloads(t *testing.T) {
	c := newMapCache()
	c.Set("k", 42, time.Minute)
	aside := NewAside(c, time.Minute)

	v, err := Load(aside, "k", func() (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestLoad_Disabled(t *testing.T) {
	calls := 0
	load := func() (int, error) {
		calls++
		return calls, nil
	}

	for _, aside := range []*Aside{nil, NewAside(nil, time.Minute), NewAside(newMapCache(), 0)} {
		_, err := Load(aside, "k", load)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
	NewAside(nil, 0).Invalidate()
}

func TestLoad_WithRistretto(t *testing.T) {
	c := newTestRistretto(t)
	aside := NewAside(c, time.Minute)
	calls := 0
	load := func() (string, error) {
		calls++
		return "v", nil
	}

	_, err := Load(aside, "k", load)
	require.NoError(t, err)
	c.Wait()
	_, err = Load(aside, "k", load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
