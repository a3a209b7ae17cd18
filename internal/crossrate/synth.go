// Package crossrate builds synthetic order books that express one or two
// chained venue order books in a canonical (wanted, quote) asset pair.
package crossrate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// ErrPairMismatch is returned when a source book cannot be expressed in the target pair.
var ErrPairMismatch = errors.New("order book pair does not match target")

// SynthOrderBook is an order book derived from one or two venue books.
type SynthOrderBook struct {
	types.OrderBook

	ConversionPath     string             `json:"conversionPath"`
	OriginalOrderBooks []*types.OrderBook `json:"originalOrderBooks"`
}

// Key identifies a cross-rate in the store.
type Key struct {
	ConversionPath string
	AssetPair      types.AssetPair
}

// Key returns the store key of the cross-rate.
func (s *SynthOrderBook) Key() Key {
	return Key{ConversionPath: s.ConversionPath, AssetPair: s.AssetPair}
}

// Path is the conversion path of a single venue book, e.g. "VenueA-BTCUSD".
func Path(ob *types.OrderBook) string {
	return ob.Source + "-" + ob.PairName()
}

// ChainPath joins the paths of two chained legs.
func ChainPath(left, right string) string {
	return left + " * " + right
}

// SourcesPath joins the venues of two chained legs.
func SourcesPath(left, right string) string {
	return left + "-" + right
}

// FromOrderBook re-expresses a single book in target, swapping and inverting
// the sides when the book is quoted the other way round.
func FromOrderBook(ob *types.OrderBook, target types.AssetPair) (*SynthOrderBook, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("synthesize from %s: %w", Path(ob), err)
	}

	bids, asks, err := orient(ob, target)
	if err != nil {
		return nil, err
	}

	return newSynth(ob.Source, target, ob.Timestamp, asks, bids, Path(ob), []*types.OrderBook{ob})
}

// FromOrderBooks chains left (wanted/intermediate) with right
// (intermediate/quote) into a book for target. Either leg may be reversed.
func FromOrderBooks(left, right *types.OrderBook, target types.AssetPair) (*SynthOrderBook, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("synthesize from %s and %s: %w", Path(left), Path(right), err)
	}

	intermediate, ok := left.AssetPair.OtherAsset(target.Base)
	if !ok || intermediate == target.Quote {
		return nil, fmt.Errorf("synthesize %s from %s: %w", target, Path(left), ErrPairMismatch)
	}

	leftBids, leftAsks, err := orient(left, types.AssetPair{Base: target.Base, Quote: intermediate})
	if err != nil {
		return nil, err
	}
	rightBids, rightAsks, err := orient(right, types.AssetPair{Base: intermediate, Quote: target.Quote})
	if err != nil {
		return nil, err
	}

	timestamp := left.Timestamp
	if right.Timestamp.Before(timestamp) {
		timestamp = right.Timestamp
	}

	return newSynth(
		SourcesPath(left.Source, right.Source),
		target,
		timestamp,
		compose(leftAsks, rightAsks),
		compose(leftBids, rightBids),
		ChainPath(Path(left), Path(right)),
		[]*types.OrderBook{left, right},
	)
}

func newSynth(
	source string,
	pair types.AssetPair,
	timestamp time.Time,
	asks, bids []types.VolumePrice,
	path string,
	originals []*types.OrderBook,
) (*SynthOrderBook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("synthesize %s: %w", pair, types.ErrEmptyConversionPath)
	}

	ob, err := types.NewOrderBookForPair(source, pair, timestamp, asks, bids)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", path, err)
	}

	return &SynthOrderBook{
		OrderBook:          *ob,
		ConversionPath:     path,
		OriginalOrderBooks: originals,
	}, nil
}

// orient returns the book's bids and asks expressed in pair.
func orient(ob *types.OrderBook, pair types.AssetPair) (bids, asks []types.VolumePrice, err error) {
	switch {
	case ob.AssetPair.IsEqual(pair):
		return ob.Bids, ob.Asks, nil
	case ob.AssetPair.IsReversed(pair):
		// selling the reversed pair's base is buying ours
		return types.SortBids(reciprocals(ob.Asks)), types.SortAsks(reciprocals(ob.Bids)), nil
	default:
		return nil, nil, fmt.Errorf("orient %s as %s: %w", Path(ob), pair, ErrPairMismatch)
	}
}

func reciprocals(levels []types.VolumePrice) []types.VolumePrice {
	out := make([]types.VolumePrice, 0, len(levels))
	for _, l := range levels {
		if r, ok := l.Reciprocal(); ok {
			out = append(out, r)
		}
	}

	return out
}

// compose walks two same-side depth ladders best level first. left is priced
// in the intermediate asset per wanted asset, right in quote per intermediate.
// Each emitted level carries the product price and the volume, in the wanted
// asset, that both legs can still fill.
func compose(left, right []types.VolumePrice) []types.VolumePrice {
	out := make([]types.VolumePrice, 0, len(left)+len(right))

	i, j := nextLevel(left, 0), nextLevel(right, 0)
	if i >= len(left) || j >= len(right) {
		return out
	}
	remLeft, remRight := left[i].Volume, right[j].Volume

	for {
		l, r := left[i], right[j]
		rightInBase := remRight.Div(l.Price)
		price := l.Price.Mul(r.Price)

		if remLeft.LessThan(rightInBase) {
			out = append(out, types.NewVolumePrice(price, remLeft))
			remRight = remRight.Sub(remLeft.Mul(l.Price))
			if i = nextLevel(left, i+1); i >= len(left) {
				break
			}
			remLeft = left[i].Volume
			continue
		}

		out = append(out, types.NewVolumePrice(price, rightInBase))
		remLeft = remLeft.Sub(rightInBase)
		if remLeft.Sign() <= 0 {
			if i = nextLevel(left, i+1); i >= len(left) {
				break
			}
			remLeft = left[i].Volume
		}
		if j = nextLevel(right, j+1); j >= len(right) {
			break
		}
		remRight = right[j].Volume
	}

	return out
}

// nextLevel skips levels that cannot be traded.
func nextLevel(levels []types.VolumePrice, from int) int {
	for from < len(levels) && (levels[from].Price.Sign() <= 0 || levels[from].Volume.Sign() <= 0) {
		from++
	}

	return from
}

// BestPrice returns a pointer to the best price of a side, nil when empty.
func BestPrice(levels []types.VolumePrice) *decimal.Decimal {
	if len(levels) == 0 {
		return nil
	}
	p := levels[0].Price

	return &p
}
