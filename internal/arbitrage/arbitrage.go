package arbitrage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Arbitrage is a crossing between the ask of one cross-rate and the bid of
// another for the same asset pair. Values are never mutated after
// construction; ending an arbitrage produces a copy.
type Arbitrage struct {
	ID                string
	AssetPair         types.AssetPair
	Ask               types.VolumePrice
	Bid               types.VolumePrice
	AskSynth          *crossrate.SynthOrderBook
	BidSynth          *crossrate.SynthOrderBook
	AskConversionPath string
	BidConversionPath string
	AskSource         string
	BidSource         string
	Spread            decimal.Decimal
	Volume            decimal.Decimal
	PnL               decimal.Decimal
	StartedAt         time.Time
	EndedAt           time.Time
}

// NewArbitrage builds an arbitrage buying at ask from askSynth and selling at bid to bidSynth.
func NewArbitrage(
	askSynth *crossrate.SynthOrderBook,
	ask types.VolumePrice,
	bidSynth *crossrate.SynthOrderBook,
	bid types.VolumePrice,
	startedAt time.Time,
) (*Arbitrage, error) {
	if askSynth == nil || bidSynth == nil {
		return nil, fmt.Errorf("new arbitrage: %w", types.ErrEmptyConversionPath)
	}
	if err := askSynth.AssetPair.Validate(); err != nil {
		return nil, fmt.Errorf("new arbitrage: %w", err)
	}
	for _, s := range []string{askSynth.ConversionPath, bidSynth.ConversionPath} {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("new arbitrage: %w", types.ErrEmptyConversionPath)
		}
	}
	for _, s := range []string{askSynth.Source, bidSynth.Source} {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("new arbitrage: %w", types.ErrEmptySource)
		}
	}
	if bid.Price.IsZero() {
		return nil, fmt.Errorf("new arbitrage %s: zero bid price", askSynth.AssetPair)
	}

	volume := decimal.Min(ask.Volume, bid.Volume)
	diff := bid.Price.Sub(ask.Price)

	return &Arbitrage{
		ID:                uuid.New().String(),
		AssetPair:         askSynth.AssetPair,
		Ask:               ask,
		Bid:               bid,
		AskSynth:          askSynth,
		BidSynth:          bidSynth,
		AskConversionPath: askSynth.ConversionPath,
		BidConversionPath: bidSynth.ConversionPath,
		AskSource:         askSynth.Source,
		BidSource:         bidSynth.Source,
		Spread:            Spread(ask.Price, bid.Price),
		Volume:            volume,
		PnL:               diff.Mul(volume),
		StartedAt:         startedAt,
	}, nil
}

// Spread is (bid - ask) / bid in percent.
func Spread(ask, bid decimal.Decimal) decimal.Decimal {
	return bid.Sub(ask).Div(bid).Mul(hundred)
}

// ConversionPath is "(bid path) > (ask path)".
func (a *Arbitrage) ConversionPath() string {
	return "(" + a.BidConversionPath + ") > (" + a.AskConversionPath + ")"
}

// Key identifies an occurrence: the same path at another PnL is another occurrence.
func (a *Arbitrage) Key() string {
	return a.ConversionPath() + a.PnL.String()
}

// Lasted is the lifetime so far, or the total once ended.
func (a *Arbitrage) Lasted(now time.Time) time.Duration {
	if a.EndedAt.IsZero() {
		return now.Sub(a.StartedAt)
	}

	return a.EndedAt.Sub(a.StartedAt)
}

// IsEnded reports whether the crossing has disappeared.
func (a *Arbitrage) IsEnded() bool {
	return !a.EndedAt.IsZero()
}

// End returns a copy stamped with endedAt.
func (a *Arbitrage) End(endedAt time.Time) *Arbitrage {
	ended := *a
	ended.EndedAt = endedAt

	return &ended
}

// Row is the flattened view of an arbitrage served to API clients and storage.
type Row struct {
	ID                string          `json:"id"`
	AssetPair         string          `json:"assetPair"`
	ConversionPath    string          `json:"conversionPath"`
	AskSource         string          `json:"askSource"`
	BidSource         string          `json:"bidSource"`
	AskConversionPath string          `json:"askConversionPath"`
	BidConversionPath string          `json:"bidConversionPath"`
	AskPrice          decimal.Decimal `json:"askPrice"`
	AskVolume         decimal.Decimal `json:"askVolume"`
	BidPrice          decimal.Decimal `json:"bidPrice"`
	BidVolume         decimal.Decimal `json:"bidVolume"`
	Spread            decimal.Decimal `json:"spread"`
	Volume            decimal.Decimal `json:"volume"`
	PnL               decimal.Decimal `json:"pnL"`
	StartedAt         time.Time       `json:"startedAt"`
	EndedAt           *time.Time      `json:"endedAt,omitempty"`
	Lasted            string          `json:"lasted"`
}

// Row flattens the arbitrage. now is used for the lifetime of active ones.
func (a *Arbitrage) Row(now time.Time) Row {
	row := Row{
		ID:                a.ID,
		AssetPair:         a.AssetPair.Name(),
		ConversionPath:    a.ConversionPath(),
		AskSource:         a.AskSource,
		BidSource:         a.BidSource,
		AskConversionPath: a.AskConversionPath,
		BidConversionPath: a.BidConversionPath,
		AskPrice:          a.Ask.Price,
		AskVolume:         a.Ask.Volume,
		BidPrice:          a.Bid.Price,
		BidVolume:         a.Bid.Volume,
		Spread:            a.Spread,
		Volume:            a.Volume,
		PnL:               a.PnL,
		StartedAt:         a.StartedAt,
		Lasted:            a.Lasted(now).Round(time.Millisecond).String(),
	}
	if a.IsEnded() {
		ended := a.EndedAt
		row.EndedAt = &ended
	}

	return row
}
