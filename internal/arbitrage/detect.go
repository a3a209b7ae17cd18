package arbitrage

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Thresholds filter candidate crossings.
type Thresholds struct {
	MinSpread     decimal.Decimal
	MinimumPnL    decimal.Decimal
	MinimumVolume decimal.Decimal
}

type line struct {
	rate  *crossrate.SynthOrderBook
	level types.VolumePrice
	isAsk bool
}

// pathPair is an unordered pair of conversion paths.
type pathPair struct {
	low, high string
}

func newPathPair(a, b string) pathPair {
	if b < a {
		a, b = b, a
	}

	return pathPair{low: a, high: b}
}

// Detect returns, for every unordered pair of conversion paths, the
// highest-PnL crossing among rates. startedAt stamps new arbitrages.
// The result is ordered by PnL descending.
func Detect(rates []*crossrate.SynthOrderBook, th Thresholds, startedAt time.Time) []*Arbitrage {
	byPair := make(map[types.AssetPair][]*crossrate.SynthOrderBook)
	for _, r := range rates {
		byPair[r.AssetPair] = append(byPair[r.AssetPair], r)
	}

	best := make(map[pathPair]*Arbitrage)
	for _, group := range byPair {
		detectPair(group, th, startedAt, best)
	}

	result := make([]*Arbitrage, 0, len(best))
	for _, a := range best {
		result = append(result, a)
	}
	sortByPnL(result)

	return result
}

func detectPair(rates []*crossrate.SynthOrderBook, th Thresholds, startedAt time.Time, best map[pathPair]*Arbitrage) {
	minAsk, maxBid, ok := bounds(rates)
	if !ok || minAsk.GreaterThanOrEqual(maxBid) {
		return
	}

	lines := make([]line, 0)
	for _, r := range rates {
		for _, a := range r.Asks {
			if a.Price.LessThan(maxBid) && tradable(a) {
				lines = append(lines, line{rate: r, level: a, isAsk: true})
			}
		}
		for _, b := range r.Bids {
			if b.Price.GreaterThan(minAsk) && tradable(b) {
				lines = append(lines, line{rate: r, level: b})
			}
		}
	}
	if len(lines) < 2 {
		return
	}

	// at equal price bids sort first so an ask never pairs with a bid at its own price
	sort.SliceStable(lines, func(i, j int) bool {
		if c := lines[i].level.Price.Cmp(lines[j].level.Price); c != 0 {
			return c < 0
		}

		return !lines[i].isAsk && lines[j].isAsk
	})

	for a := 0; a < len(lines); a++ {
		ask := lines[a]
		if !ask.isAsk {
			continue
		}

		for b := a + 1; b < len(lines); b++ {
			bid := lines[b]
			if bid.isAsk || !bid.level.Price.GreaterThan(ask.level.Price) {
				continue
			}

			spread := Spread(ask.level.Price, bid.level.Price)
			if spread.LessThan(th.MinSpread) {
				ArbitragesRejectedTotal.WithLabelValues("spread").Inc()
				continue
			}
			volume := decimal.Min(ask.level.Volume, bid.level.Volume)
			if volume.LessThan(th.MinimumVolume) {
				ArbitragesRejectedTotal.WithLabelValues("volume").Inc()
				continue
			}
			pnl := bid.level.Price.Sub(ask.level.Price).Mul(volume)
			if pnl.LessThan(th.MinimumPnL) {
				ArbitragesRejectedTotal.WithLabelValues("pnl").Inc()
				continue
			}

			key := newPathPair(ask.rate.ConversionPath, bid.rate.ConversionPath)
			if current, exists := best[key]; exists && !pnl.GreaterThan(current.PnL) {
				continue
			}

			arb, err := NewArbitrage(ask.rate, ask.level, bid.rate, bid.level, startedAt)
			if err != nil {
				ArbitragesRejectedTotal.WithLabelValues("invalid").Inc()
				continue
			}
			best[key] = arb
		}
	}
}

// bounds returns the lowest ask and the highest bid across rates.
func bounds(rates []*crossrate.SynthOrderBook) (minAsk, maxBid decimal.Decimal, ok bool) {
	haveAsk, haveBid := false, false
	for _, r := range rates {
		for _, a := range r.Asks {
			if !tradable(a) {
				continue
			}
			if !haveAsk || a.Price.LessThan(minAsk) {
				minAsk, haveAsk = a.Price, true
			}
		}
		for _, b := range r.Bids {
			if !tradable(b) {
				continue
			}
			if !haveBid || b.Price.GreaterThan(maxBid) {
				maxBid, haveBid = b.Price, true
			}
		}
	}

	return minAsk, maxBid, haveAsk && haveBid
}

func tradable(l types.VolumePrice) bool {
	return l.Price.Sign() > 0 && l.Volume.Sign() > 0
}

func sortByPnL(arbs []*Arbitrage) {
	sort.SliceStable(arbs, func(i, j int) bool {
		if c := arbs[i].PnL.Cmp(arbs[j].PnL); c != 0 {
			return c > 0
		}

		return arbs[i].ConversionPath() < arbs[j].ConversionPath()
	})
}
