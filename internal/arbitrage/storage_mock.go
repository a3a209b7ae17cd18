package arbitrage

import (
	"context"
	"sync"
)

// MockStorage is an in-memory storage implementation for testing the detector.
// This mock lives in the arbitrage package to avoid import cycles.
type MockStorage struct {
	Arbitrages []*Arbitrage
	Err        error
	mu         sync.Mutex
}

// NewMockStorage creates a new mock storage for arbitrage tests.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Arbitrages: make([]*Arbitrage, 0),
	}
}

// StoreArbitrage records an ended arbitrage in memory.
func (m *MockStorage) StoreArbitrage(_ context.Context, arb *Arbitrage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.Arbitrages = append(m.Arbitrages, arb)

	return nil
}

// GetArbitrages returns all stored arbitrages.
func (m *MockStorage) GetArbitrages() []*Arbitrage {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Arbitrage, len(m.Arbitrages))
	copy(result, m.Arbitrages)

	return result
}
