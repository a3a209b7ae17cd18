package crossrate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Row is the flattened view of a cross-rate served to API clients.
type Row struct {
	Source         string           `json:"source"`
	AssetPair      string           `json:"assetPair"`
	BestAsk        *decimal.Decimal `json:"bestAsk"`
	BestBid        *decimal.Decimal `json:"bestBid"`
	ConversionPath string           `json:"conversionPath"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Row flattens the cross-rate to its best quotes for the API.
func (s *SynthOrderBook) Row() Row {
	return Row{
		Source:         s.Source,
		AssetPair:      s.AssetPair.Name(),
		BestAsk:        BestPrice(s.Asks),
		BestBid:        BestPrice(s.Bids),
		ConversionPath: s.ConversionPath,
		Timestamp:      s.Timestamp,
	}
}
