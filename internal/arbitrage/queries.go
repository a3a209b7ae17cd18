package arbitrage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Now returns the detector clock.
func (d *Detector) Now() time.Time {
	return d.now()
}

func (d *Detector) actualOrderBooks(now time.Time, expiration time.Duration) []*types.OrderBook {
	books := make([]*types.OrderBook, 0, d.orderBooks.Size())
	d.orderBooks.Range(func(_ orderBookKey, ob *types.OrderBook) bool {
		if ob.IsActual(now, expiration) {
			books = append(books, ob)
		}
		return true
	})

	return books
}

func (d *Detector) actualCrossRates(now time.Time, expiration time.Duration) []*crossrate.SynthOrderBook {
	rates := make([]*crossrate.SynthOrderBook, 0, d.crossRates.Size())
	d.crossRates.Range(func(_ crossrate.Key, r *crossrate.SynthOrderBook) bool {
		if r.IsActual(now, expiration) {
			rates = append(rates, r)
		}
		return true
	})

	return rates
}

// GetOrderBooks returns stored books whose source and pair contain the
// given filters (case-insensitive, blank matches all), newest first.
// Expired books are included.
func (d *Detector) GetOrderBooks(exchange, instrument string) []*types.OrderBook {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	instrument = strings.ToUpper(strings.TrimSpace(instrument))

	books := make([]*types.OrderBook, 0, d.orderBooks.Size())
	d.orderBooks.Range(func(_ orderBookKey, ob *types.OrderBook) bool {
		if exchange != "" && !strings.Contains(strings.ToUpper(ob.Source), exchange) {
			return true
		}
		if instrument != "" && !strings.Contains(strings.ToUpper(ob.PairName()), instrument) {
			return true
		}
		books = append(books, ob)
		return true
	})

	sort.SliceStable(books, func(i, j int) bool {
		if !books[i].Timestamp.Equal(books[j].Timestamp) {
			return books[i].Timestamp.After(books[j].Timestamp)
		}
		return books[i].Source+books[i].PairName() < books[j].Source+books[j].PairName()
	})

	return books
}

// GetCrossRates returns all stored cross-rates, newest first.
func (d *Detector) GetCrossRates() []*crossrate.SynthOrderBook {
	rates := make([]*crossrate.SynthOrderBook, 0, d.crossRates.Size())
	d.crossRates.Range(func(_ crossrate.Key, r *crossrate.SynthOrderBook) bool {
		rates = append(rates, r)
		return true
	})

	sort.SliceStable(rates, func(i, j int) bool {
		if !rates[i].Timestamp.Equal(rates[j].Timestamp) {
			return rates[i].Timestamp.After(rates[j].Timestamp)
		}
		return rates[i].ConversionPath < rates[j].ConversionPath
	})

	return rates
}

// GetArbitrages returns the active arbitrages by PnL descending.
func (d *Detector) GetArbitrages() []*Arbitrage {
	arbs := make([]*Arbitrage, 0, d.arbitrages.Size())
	d.arbitrages.Range(func(_ string, a *Arbitrage) bool {
		arbs = append(arbs, a)
		return true
	})
	sortByPnL(arbs)

	return arbs
}

// GetArbitrageFromHistory returns the best ended occurrence of conversionPath.
func (d *Detector) GetArbitrageFromHistory(conversionPath string) (*Arbitrage, error) {
	if best := bestMatching(d.historyArbitrages(), conversionPath); best != nil {
		return best, nil
	}

	return nil, fmt.Errorf("arbitrage %q: %w", conversionPath, types.ErrNotFound)
}

// GetArbitrage returns the active occurrence of conversionPath, falling back
// to the best ended one.
func (d *Detector) GetArbitrage(conversionPath string) (*Arbitrage, error) {
	if best := bestMatching(d.GetArbitrages(), conversionPath); best != nil {
		return best, nil
	}

	return d.GetArbitrageFromHistory(conversionPath)
}

// GetArbitrageHistory returns the best ended occurrence per conversion path
// that ended after since, by PnL descending, at most take entries
// (all when take <= 0).
func (d *Detector) GetArbitrageHistory(since time.Time, take int) []*Arbitrage {
	best := make(map[string]*Arbitrage)
	for _, a := range d.historyArbitrages() {
		path := a.ConversionPath()
		if cur, ok := best[path]; !ok || a.PnL.GreaterThan(cur.PnL) {
			best[path] = a
		}
	}

	result := make([]*Arbitrage, 0, len(best))
	for _, a := range best {
		if a.EndedAt.After(since) {
			result = append(result, a)
		}
	}
	sortByPnL(result)

	if take > 0 && len(result) > take {
		result = result[:take]
	}

	return result
}

func (d *Detector) historyArbitrages() []*Arbitrage {
	arbs := make([]*Arbitrage, 0, d.history.Size())
	d.history.Range(func(_ string, e historyEntry) bool {
		arbs = append(arbs, e.arb)
		return true
	})

	return arbs
}

func bestMatching(arbs []*Arbitrage, conversionPath string) *Arbitrage {
	conversionPath = strings.TrimSpace(conversionPath)
	if conversionPath == "" {
		return nil
	}

	var best *Arbitrage
	for _, a := range arbs {
		if !strings.EqualFold(a.ConversionPath(), conversionPath) {
			continue
		}
		if best == nil || a.PnL.GreaterThan(best.PnL) {
			best = a
		}
	}

	return best
}

// GetMatrix builds the matrix of assetPair from every stored book.
func (d *Detector) GetMatrix(assetPair string) (*matrix.Matrix, error) {
	s := d.settings.Get()

	pair, err := resolvePair(assetPair, s)
	if err != nil {
		return nil, err
	}

	return matrix.Build(pair, d.GetOrderBooks("", ""), matrix.BuildParams{
		Expiration: s.Expiration(),
	}, d.now()), nil
}

// GetPublicMatrix builds the matrix of a published pair restricted to the
// public exchanges under their display names.
func (d *Detector) GetPublicMatrix(assetPair string) (*matrix.Matrix, error) {
	s := d.settings.Get()
	if !s.IsPublicAssetPair(assetPair) {
		return nil, fmt.Errorf("public matrix %q: %w", assetPair, types.ErrNotFound)
	}

	pair, err := resolvePair(assetPair, s)
	if err != nil {
		return nil, err
	}

	return matrix.Build(pair, d.GetOrderBooks("", ""), matrix.BuildParams{
		Expiration: s.Expiration(),
		Exchanges:  s.PublicMatrixExchanges,
	}, d.now()), nil
}

// PublicAssetPairs lists the pairs with a public matrix.
func (d *Detector) PublicAssetPairs() []string {
	return d.settings.Get().PublicMatrixAssetPairs
}

// resolvePair splits a pair name using the configured asset tokens.
func resolvePair(name string, s settings.Settings) (types.AssetPair, error) {
	candidates := append([]string{s.QuoteAsset}, s.BaseAssets...)
	candidates = append(candidates, s.IntermediateAssets...)

	for _, asset := range candidates {
		if pair, err := types.ParseAssetPair(name, asset); err == nil {
			return pair, nil
		}
	}

	return types.AssetPair{}, fmt.Errorf("asset pair %q: %w", name, types.ErrNotFound)
}
