package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderBookMessage is one order-book snapshot as published by the upstream feed.
type OrderBookMessage struct {
	Source    string       `json:"source"`
	Asset     string       `json:"asset"`
	Timestamp time.Time    `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// PriceLevel is a single depth level on the wire. Price and volume accept
// JSON numbers or strings.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// VolumePrice is one depth level. Volume is always non-negative.
type VolumePrice struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// NewVolumePrice stores the absolute value of volume.
func NewVolumePrice(price, volume decimal.Decimal) VolumePrice {
	return VolumePrice{Price: price, Volume: volume.Abs()}
}

// Reciprocal re-expresses the level in the reversed pair: the price becomes
// 1/price and the volume is converted into the former quote asset.
// It returns false for a zero price.
func (v VolumePrice) Reciprocal() (VolumePrice, bool) {
	if v.Price.IsZero() {
		return VolumePrice{}, false
	}

	return NewVolumePrice(decimal.NewFromInt(1).Div(v.Price), v.Volume.Mul(v.Price)), true
}

// OrderBook is an immutable depth snapshot of one venue for one pair.
// Asks are sorted ascending and bids descending by price.
type OrderBook struct {
	Source     string        `json:"source"`
	Instrument string        `json:"instrument"`
	AssetPair  AssetPair     `json:"assetPair"`
	Timestamp  time.Time     `json:"timestamp"`
	Asks       []VolumePrice `json:"asks"`
	Bids       []VolumePrice `json:"bids"`
}

// NewOrderBook copies and sorts the depth levels. The asset pair stays empty
// until the book is labeled with WithAssetPair.
func NewOrderBook(source, instrument string, timestamp time.Time, asks, bids []VolumePrice) (*OrderBook, error) {
	source = strings.TrimSpace(source)
	instrument = strings.TrimSpace(instrument)

	if source == "" {
		return nil, fmt.Errorf("new order book: %w", ErrEmptySource)
	}
	if instrument == "" {
		return nil, fmt.Errorf("new order book from %s: %w", source, ErrEmptyAssetPair)
	}

	return &OrderBook{
		Source:     source,
		Instrument: instrument,
		Timestamp:  timestamp.UTC(),
		Asks:       SortAsks(asks),
		Bids:       SortBids(bids),
	}, nil
}

// NewOrderBookForPair builds a book whose pair is already known.
func NewOrderBookForPair(source string, pair AssetPair, timestamp time.Time, asks, bids []VolumePrice) (*OrderBook, error) {
	if err := pair.Validate(); err != nil {
		return nil, fmt.Errorf("new order book from %s: %w", source, err)
	}

	ob, err := NewOrderBook(source, pair.Name(), timestamp, asks, bids)
	if err != nil {
		return nil, err
	}
	ob.AssetPair = pair

	return ob, nil
}

// WithAssetPair returns a copy labeled with pair. Depth slices are shared.
func (ob *OrderBook) WithAssetPair(pair AssetPair) *OrderBook {
	labeled := *ob
	labeled.AssetPair = pair

	return &labeled
}

// PairName is the parsed pair name, falling back to the raw instrument.
func (ob *OrderBook) PairName() string {
	if ob.AssetPair.IsEmpty() {
		return ob.Instrument
	}

	return ob.AssetPair.Name()
}

// BestAsk returns the lowest ask, if any.
func (ob *OrderBook) BestAsk() (VolumePrice, bool) {
	if len(ob.Asks) == 0 {
		return VolumePrice{}, false
	}

	return ob.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (ob *OrderBook) BestBid() (VolumePrice, bool) {
	if len(ob.Bids) == 0 {
		return VolumePrice{}, false
	}

	return ob.Bids[0], true
}

// IsActual reports whether the book is younger than expiration at now.
func (ob *OrderBook) IsActual(now time.Time, expiration time.Duration) bool {
	return now.Sub(ob.Timestamp) < expiration
}

// SortAsks returns a copy of levels sorted by ascending price.
func SortAsks(levels []VolumePrice) []VolumePrice {
	sorted := normalizeLevels(levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})

	return sorted
}

// SortBids returns a copy of levels sorted by descending price.
func SortBids(levels []VolumePrice) []VolumePrice {
	sorted := normalizeLevels(levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.GreaterThan(sorted[j].Price)
	})

	return sorted
}

func normalizeLevels(levels []VolumePrice) []VolumePrice {
	out := make([]VolumePrice, len(levels))
	for i, l := range levels {
		out[i] = NewVolumePrice(l.Price, l.Volume)
	}

	return out
}
