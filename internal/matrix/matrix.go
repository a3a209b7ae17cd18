// Package matrix builds exchange-by-exchange spread matrices for one asset
// pair and publishes periodic snapshots of them.
package matrix

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Exchange is one row/column of the matrix.
type Exchange struct {
	Name     string `json:"name"`
	IsActual bool   `json:"isActual"`
}

// Cell compares the bid of the row exchange with the ask of the column
// exchange. A negative spread means the ask is below the bid.
type Cell struct {
	Spread decimal.Decimal `json:"spread"`
	Volume decimal.Decimal `json:"volume"`
}

// Matrix is a snapshot of best prices for one asset pair across exchanges.
type Matrix struct {
	ID        string             `json:"id"`
	AssetPair string             `json:"assetPair"`
	Exchanges []Exchange         `json:"exchanges"`
	Asks      []*decimal.Decimal `json:"asks"`
	Bids      []*decimal.Decimal `json:"bids"`
	Cells     [][]*Cell          `json:"cells"`
	DateTime  time.Time          `json:"dateTime"`
}

// BuildParams controls which books appear in a matrix.
type BuildParams struct {
	Expiration time.Duration
	// Exchanges maps source names to display names. When set, only the
	// listed sources are included.
	Exchanges map[string]string
}

type column struct {
	name   string
	actual bool
	ask    *types.VolumePrice
	bid    *types.VolumePrice
}

// Build assembles the matrix of pair from books at now.
func Build(pair types.AssetPair, books []*types.OrderBook, params BuildParams, now time.Time) *Matrix {
	columns := make([]column, 0, len(books))
	for _, ob := range books {
		if !ob.AssetPair.IsEqual(pair) {
			continue
		}
		name, ok := displayName(ob.Source, params.Exchanges)
		if !ok {
			continue
		}

		c := column{name: name, actual: ob.IsActual(now, params.Expiration)}
		if ask, ok := ob.BestAsk(); ok {
			c.ask = &ask
		}
		if bid, ok := ob.BestBid(); ok {
			c.bid = &bid
		}
		columns = append(columns, c)
	}
	sort.SliceStable(columns, func(i, j int) bool { return columns[i].name < columns[j].name })

	m := &Matrix{
		ID:        uuid.New().String(),
		AssetPair: pair.Name(),
		Exchanges: make([]Exchange, len(columns)),
		Asks:      make([]*decimal.Decimal, len(columns)),
		Bids:      make([]*decimal.Decimal, len(columns)),
		Cells:     make([][]*Cell, len(columns)),
		DateTime:  now,
	}

	for i, c := range columns {
		m.Exchanges[i] = Exchange{Name: c.name, IsActual: c.actual}
		if c.ask != nil {
			m.Asks[i] = &c.ask.Price
		}
		if c.bid != nil {
			m.Bids[i] = &c.bid.Price
		}

		m.Cells[i] = make([]*Cell, len(columns))
		for j, other := range columns {
			if i == j || c.bid == nil || other.ask == nil || c.bid.Price.IsZero() {
				continue
			}
			m.Cells[i][j] = &Cell{
				Spread: other.ask.Price.Sub(c.bid.Price).Div(c.bid.Price).Mul(hundred),
				Volume: decimal.Min(c.bid.Volume, other.ask.Volume),
			}
		}
	}

	return m
}

func displayName(source string, names map[string]string) (string, bool) {
	if len(names) == 0 {
		return source, true
	}

	for src, name := range names {
		if strings.EqualFold(src, source) {
			if strings.TrimSpace(name) == "" {
				return source, true
			}
			return name, true
		}
	}

	return "", false
}
