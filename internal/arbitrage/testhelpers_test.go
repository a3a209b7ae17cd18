package arbitrage

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSettings() settings.Settings {
	s := settings.Default()
	s.BaseAssets = []string{"BTC"}
	s.QuoteAsset = "USD"
	s.ExpirationTimeInSeconds = 10
	s.HistoryMaxSize = 100
	s.ExecutionDelayInMilliseconds = int(time.Hour / time.Millisecond)

	return s
}

func newTestDetector(t *testing.T, s settings.Settings, clock *fakeClock, storage Storage) *Detector {
	t.Helper()

	svc, err := settings.NewService(settings.Config{Defaults: s})
	require.NoError(t, err)

	return New(Config{
		Settings: svc,
		Storage:  storage,
		Clock:    clock.Now,
	})
}

// quote builds a one-level feed book.
func quote(t *testing.T, source, instrument string, ts time.Time, bid, ask, volume string) *types.OrderBook {
	t.Helper()

	var asks, bids []types.VolumePrice
	if ask != "" {
		asks = []types.VolumePrice{types.NewVolumePrice(dec(ask), dec(volume))}
	}
	if bid != "" {
		bids = []types.VolumePrice{types.NewVolumePrice(dec(bid), dec(volume))}
	}

	ob, err := types.NewOrderBook(source, instrument, ts, asks, bids)
	require.NoError(t, err)

	return ob
}

// rate builds a one-leg cross-rate for pair.
func rate(t *testing.T, source string, pair types.AssetPair, ts time.Time, asks, bids []types.VolumePrice) *crossrate.SynthOrderBook {
	t.Helper()

	ob, err := types.NewOrderBookForPair(source, pair, ts, asks, bids)
	require.NoError(t, err)
	synth, err := crossrate.FromOrderBook(ob, pair)
	require.NoError(t, err)

	return synth
}

func lvl(price, volume string) types.VolumePrice {
	return types.NewVolumePrice(dec(price), dec(volume))
}
