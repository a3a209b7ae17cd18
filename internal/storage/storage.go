// Package storage persists settings, ended arbitrages and matrix snapshots.
// Persistence mirrors in-memory state and is never on the detection path.
package storage

import (
	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
)

// Storage is the interface every backend implements.
type Storage interface {
	settings.Repository
	arbitrage.Storage
	matrix.HistoryRepository

	// Close closes the storage connection.
	Close() error
}
