// Package settings holds the detector tunables and the service that guards them.
package settings

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Settings are the runtime tunables of the detector.
type Settings struct {
	ExecutionDelayInMilliseconds int               `json:"executionDelayInMilliseconds" yaml:"executionDelayInMilliseconds"`
	HistoryMaxSize               int               `json:"historyMaxSize" yaml:"historyMaxSize"`
	ExpirationTimeInSeconds      int               `json:"expirationTimeInSeconds" yaml:"expirationTimeInSeconds"`
	MinimumPnL                   decimal.Decimal   `json:"minimumPnL" yaml:"minimumPnL"`
	MinimumVolume                decimal.Decimal   `json:"minimumVolume" yaml:"minimumVolume"`
	MinSpread                    decimal.Decimal   `json:"minSpread" yaml:"minSpread"`
	BaseAssets                   []string          `json:"baseAssets" yaml:"baseAssets"`
	IntermediateAssets           []string          `json:"intermediateAssets" yaml:"intermediateAssets"`
	QuoteAsset                   string            `json:"quoteAsset" yaml:"quoteAsset"`
	Exchanges                    []string          `json:"exchanges" yaml:"exchanges"`
	PublicMatrixAssetPairs       []string          `json:"publicMatrixAssetPairs" yaml:"publicMatrixAssetPairs"`
	PublicMatrixExchanges        map[string]string `json:"publicMatrixExchanges" yaml:"publicMatrixExchanges"`
}

// Default returns the settings used when nothing was configured or persisted.
func Default() Settings {
	return Settings{
		ExecutionDelayInMilliseconds: 1000,
		HistoryMaxSize:               1000,
		ExpirationTimeInSeconds:      10,
		MinimumPnL:                   decimal.Zero,
		MinimumVolume:                decimal.Zero,
		MinSpread:                    decimal.Zero,
		BaseAssets:                   []string{"BTC"},
		QuoteAsset:                   "USD",
	}
}

// ExecutionDelay is the pause between two detection cycles.
func (s Settings) ExecutionDelay() time.Duration {
	return time.Duration(s.ExecutionDelayInMilliseconds) * time.Millisecond
}

// Expiration is the maximum age of order books and cross-rates.
func (s Settings) Expiration() time.Duration {
	return time.Duration(s.ExpirationTimeInSeconds) * time.Second
}

// AllowsExchange reports whether books from source are accepted.
func (s Settings) AllowsExchange(source string) bool {
	if len(s.Exchanges) == 0 {
		return true
	}

	return slices.ContainsFunc(s.Exchanges, func(e string) bool {
		return strings.EqualFold(e, strings.TrimSpace(source))
	})
}

// IsPublicAssetPair reports whether a public matrix is published for pair.
func (s Settings) IsPublicAssetPair(pair string) bool {
	return slices.ContainsFunc(s.PublicMatrixAssetPairs, func(p string) bool {
		return strings.EqualFold(p, strings.TrimSpace(pair))
	})
}

// Validate checks a complete settings value.
func (s Settings) Validate() error {
	switch {
	case s.ExecutionDelayInMilliseconds <= 0:
		return fmt.Errorf("%w: execution delay must be positive", types.ErrInvalidSettings)
	case s.ExpirationTimeInSeconds <= 0:
		return fmt.Errorf("%w: expiration time must be positive", types.ErrInvalidSettings)
	case len(s.BaseAssets) == 0:
		return fmt.Errorf("%w: at least one base asset is required", types.ErrInvalidSettings)
	case strings.TrimSpace(s.QuoteAsset) == "":
		return fmt.Errorf("%w: quote asset is required", types.ErrInvalidSettings)
	}

	return checkUpdate(&s)
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.BaseAssets = slices.Clone(s.BaseAssets)
	c.IntermediateAssets = slices.Clone(s.IntermediateAssets)
	c.Exchanges = slices.Clone(s.Exchanges)
	c.PublicMatrixAssetPairs = slices.Clone(s.PublicMatrixAssetPairs)
	c.PublicMatrixExchanges = maps.Clone(s.PublicMatrixExchanges)

	return c
}

// Normalize upper-cases asset tokens and trims exchange names.
func (s Settings) Normalize() Settings {
	c := s.Clone()
	c.BaseAssets = normalizeAssets(c.BaseAssets)
	c.IntermediateAssets = normalizeAssets(c.IntermediateAssets)
	c.QuoteAsset = types.NormalizeAsset(c.QuoteAsset)
	c.PublicMatrixAssetPairs = normalizeAssets(c.PublicMatrixAssetPairs)
	for i, e := range c.Exchanges {
		c.Exchanges[i] = strings.TrimSpace(e)
	}

	return c
}

// Merge applies update on top of current. Zero durations and sizes, empty
// lists and a blank quote asset keep the current value; the decimal
// thresholds are always replaced. restart is true when the expiration
// window, the base assets or the quote asset changed.
func Merge(current Settings, update *Settings) (merged Settings, restart bool, err error) {
	if update == nil {
		return current, false, fmt.Errorf("%w: settings are nil", types.ErrInvalidSettings)
	}
	if err := checkUpdate(update); err != nil {
		return current, false, err
	}

	u := update.Normalize()
	merged = current.Clone()

	if u.ExecutionDelayInMilliseconds > 0 {
		merged.ExecutionDelayInMilliseconds = u.ExecutionDelayInMilliseconds
	}
	if u.HistoryMaxSize > 0 {
		merged.HistoryMaxSize = u.HistoryMaxSize
	}
	if u.ExpirationTimeInSeconds > 0 && u.ExpirationTimeInSeconds != current.ExpirationTimeInSeconds {
		merged.ExpirationTimeInSeconds = u.ExpirationTimeInSeconds
		restart = true
	}
	if len(u.BaseAssets) > 0 && !slices.Equal(u.BaseAssets, current.BaseAssets) {
		merged.BaseAssets = u.BaseAssets
		restart = true
	}
	if u.QuoteAsset != "" && u.QuoteAsset != current.QuoteAsset {
		merged.QuoteAsset = u.QuoteAsset
		restart = true
	}
	if len(u.IntermediateAssets) > 0 {
		merged.IntermediateAssets = u.IntermediateAssets
	}
	if len(u.Exchanges) > 0 {
		merged.Exchanges = u.Exchanges
	}
	if len(u.PublicMatrixAssetPairs) > 0 {
		merged.PublicMatrixAssetPairs = u.PublicMatrixAssetPairs
	}
	if len(u.PublicMatrixExchanges) > 0 {
		merged.PublicMatrixExchanges = u.PublicMatrixExchanges
	}
	merged.MinSpread = u.MinSpread
	merged.MinimumPnL = u.MinimumPnL
	merged.MinimumVolume = u.MinimumVolume

	return merged, restart, nil
}

func checkUpdate(s *Settings) error {
	switch {
	case s.ExecutionDelayInMilliseconds < 0:
		return fmt.Errorf("%w: execution delay is negative", types.ErrInvalidSettings)
	case s.HistoryMaxSize < 0:
		return fmt.Errorf("%w: history max size is negative", types.ErrInvalidSettings)
	case s.ExpirationTimeInSeconds < 0:
		return fmt.Errorf("%w: expiration time is negative", types.ErrInvalidSettings)
	case s.MinSpread.IsNegative():
		return fmt.Errorf("%w: min spread is negative", types.ErrInvalidSettings)
	case s.MinimumPnL.IsNegative(), s.MinimumVolume.IsNegative():
		return fmt.Errorf("%w: minimum pnl and volume must not be negative", types.ErrInvalidSettings)
	}

	for _, list := range [][]string{s.BaseAssets, s.IntermediateAssets, s.Exchanges, s.PublicMatrixAssetPairs} {
		if slices.ContainsFunc(list, func(v string) bool { return strings.TrimSpace(v) == "" }) {
			return fmt.Errorf("%w: blank entry in asset or exchange list", types.ErrInvalidSettings)
		}
	}

	return nil
}

func normalizeAssets(assets []string) []string {
	for i, a := range assets {
		assets[i] = types.NormalizeAsset(a)
	}

	return assets
}
