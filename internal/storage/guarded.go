package storage

import (
	"context"
	"time"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/circuitbreaker"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
)

// GuardedStorage routes every call through a circuit breaker so an
// unreachable backend fails fast instead of stalling its callers.
type GuardedStorage struct {
	next    Storage
	breaker *circuitbreaker.Breaker
}

// NewGuardedStorage wraps next with breaker.
func NewGuardedStorage(next Storage, breaker *circuitbreaker.Breaker) *GuardedStorage {
	return &GuardedStorage{next: next, breaker: breaker}
}

// LoadSettings loads settings through the breaker.
func (g *GuardedStorage) LoadSettings(ctx context.Context) (*settings.Settings, error) {
	return circuitbreaker.Call(g.breaker, func() (*settings.Settings, error) {
		return g.next.LoadSettings(ctx)
	})
}

// SaveSettings saves settings through the breaker.
func (g *GuardedStorage) SaveSettings(ctx context.Context, s *settings.Settings) error {
	return g.breaker.Execute(func() error {
		return g.next.SaveSettings(ctx, s)
	})
}

// StoreArbitrage stores an ended arbitrage through the breaker.
func (g *GuardedStorage) StoreArbitrage(ctx context.Context, arb *arbitrage.Arbitrage) error {
	return g.breaker.Execute(func() error {
		return g.next.StoreArbitrage(ctx, arb)
	})
}

// InsertHistory inserts a matrix snapshot through the breaker.
func (g *GuardedStorage) InsertHistory(ctx context.Context, m *matrix.Matrix) error {
	return g.breaker.Execute(func() error {
		return g.next.InsertHistory(ctx, m)
	})
}

// GetHistory reads a matrix snapshot through the breaker.
func (g *GuardedStorage) GetHistory(ctx context.Context, assetPair string, at time.Time) (*matrix.Matrix, error) {
	return circuitbreaker.Call(g.breaker, func() (*matrix.Matrix, error) {
		return g.next.GetHistory(ctx, assetPair, at)
	})
}

// DeleteHistory deletes a matrix snapshot through the breaker.
func (g *GuardedStorage) DeleteHistory(ctx context.Context, assetPair string, at time.Time) (bool, error) {
	return circuitbreaker.Call(g.breaker, func() (bool, error) {
		return g.next.DeleteHistory(ctx, assetPair, at)
	})
}

// GetDateTimes lists snapshot times through the breaker.
func (g *GuardedStorage) GetDateTimes(ctx context.Context, assetPair string, from, to time.Time) ([]time.Time, error) {
	return circuitbreaker.Call(g.breaker, func() ([]time.Time, error) {
		return g.next.GetDateTimes(ctx, assetPair, from, to)
	})
}

// Close closes the wrapped storage.
func (g *GuardedStorage) Close() error {
	return g.next.Close()
}
