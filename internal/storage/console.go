package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
// Settings go to an optional YAML file; matrix history is not retained.
type ConsoleStorage struct {
	out      io.Writer
	settings *FileSettings
	logger   *zap.Logger
}

// NewConsoleStorage creates a new console storage. An empty settingsPath
// disables settings persistence.
func NewConsoleStorage(logger *zap.Logger, settingsPath string) *ConsoleStorage {
	c := &ConsoleStorage{
		out:    os.Stdout,
		logger: logger,
	}
	if settingsPath != "" {
		c.settings = NewFileSettings(settingsPath)
	}

	logger.Info("console-storage-initialized", zap.String("settings-file", settingsPath))

	return c
}

// LoadSettings reads the settings file, or returns nil when none is configured.
func (c *ConsoleStorage) LoadSettings(ctx context.Context) (*settings.Settings, error) {
	if c.settings == nil {
		return nil, nil
	}

	return c.settings.LoadSettings(ctx)
}

// SaveSettings writes the settings file when one is configured.
func (c *ConsoleStorage) SaveSettings(ctx context.Context, s *settings.Settings) error {
	if c.settings == nil {
		return nil
	}

	return c.settings.SaveSettings(ctx, s)
}

// StoreArbitrage pretty-prints an ended arbitrage.
func (c *ConsoleStorage) StoreArbitrage(_ context.Context, arb *arbitrage.Arbitrage) error {
	w := c.out

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintf(w, "ARBITRAGE ENDED  %s\n", arb.AssetPair.Name())
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "ID:       %s\n", arb.ID)
	fmt.Fprintf(w, "Path:     %s\n", arb.ConversionPath())
	fmt.Fprintf(w, "Started:  %s\n", arb.StartedAt.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "Ended:    %s\n", arb.EndedAt.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "Lasted:   %s\n", arb.Lasted(arb.EndedAt))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Buy  %-12s %s @ %s\n", arb.AskSource, arb.Ask.Volume, arb.Ask.Price)
	fmt.Fprintf(w, "  Sell %-12s %s @ %s\n", arb.BidSource, arb.Bid.Volume, arb.Bid.Price)
	fmt.Fprintf(w, "  Spread: %s%%  Volume: %s  PnL: %s\n", arb.Spread.StringFixed(4), arb.Volume, arb.PnL)
	fmt.Fprintln(w, rule)

	return nil
}

// InsertHistory logs the snapshot without retaining it.
func (c *ConsoleStorage) InsertHistory(_ context.Context, m *matrix.Matrix) error {
	c.logger.Debug("matrix-snapshot",
		zap.String("asset-pair", m.AssetPair),
		zap.Time("date-time", m.DateTime),
		zap.Int("exchanges", len(m.Exchanges)))

	return nil
}

// GetHistory always reports a miss.
func (c *ConsoleStorage) GetHistory(_ context.Context, assetPair string, at time.Time) (*matrix.Matrix, error) {
	return nil, fmt.Errorf("matrix %s at %s: %w", assetPair, at.Format(time.RFC3339), types.ErrNotFound)
}

// DeleteHistory deletes nothing.
func (c *ConsoleStorage) DeleteHistory(_ context.Context, _ string, _ time.Time) (bool, error) {
	return false, nil
}

// GetDateTimes returns no snapshot times.
func (c *ConsoleStorage) GetDateTimes(_ context.Context, _ string, _, _ time.Time) ([]time.Time, error) {
	return []time.Time{}, nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
