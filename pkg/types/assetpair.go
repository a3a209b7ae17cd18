package types

import (
	"fmt"
	"strings"
)

var pairSeparators = strings.NewReplacer("-", "", "/", "", "_", "", " ", "")

// AssetPair identifies a market by its base and quote asset tokens.
//
// Every method checks validity on its own: a zero AssetPair never compares
// equal to anything and never reports containing an asset.
type AssetPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewAssetPair returns a normalized pair or an error if either asset is blank.
func NewAssetPair(base, quote string) (AssetPair, error) {
	p := AssetPair{Base: NormalizeAsset(base), Quote: NormalizeAsset(quote)}
	if err := p.Validate(); err != nil {
		return AssetPair{}, err
	}

	return p, nil
}

// MustAssetPair is NewAssetPair for literals known to be valid.
func MustAssetPair(base, quote string) AssetPair {
	p, err := NewAssetPair(base, quote)
	if err != nil {
		panic(err)
	}

	return p
}

// ParseAssetPair splits a concatenated pair string such as "BTCUSD" or
// "btc-usd" using one asset token known to be one of its legs.
func ParseAssetPair(pair, knownAsset string) (AssetPair, error) {
	s := pairSeparators.Replace(NormalizeAsset(pair))
	known := NormalizeAsset(knownAsset)

	if s == "" {
		return AssetPair{}, fmt.Errorf("parse asset pair: %w", ErrEmptyAssetPair)
	}
	if known == "" {
		return AssetPair{}, fmt.Errorf("parse asset pair %q: %w", pair, ErrEmptyAsset)
	}
	if len(s) > len(known) {
		switch {
		case strings.HasPrefix(s, known):
			return AssetPair{Base: known, Quote: s[len(known):]}, nil
		case strings.HasSuffix(s, known):
			return AssetPair{Base: s[:len(s)-len(known)], Quote: known}, nil
		}
	}

	return AssetPair{}, fmt.Errorf("parse asset pair %q with %q: %w", pair, knownAsset, ErrAssetNotInPair)
}

// NormalizeAsset upper-cases and trims an asset token.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Name is the pair without a separator, e.g. "BTCUSD".
func (p AssetPair) Name() string {
	return p.Base + p.Quote
}

// String returns the pair name.
func (p AssetPair) String() string {
	return p.Name()
}

// IsEmpty reports whether either leg is missing.
func (p AssetPair) IsEmpty() bool {
	return p.Base == "" || p.Quote == ""
}

// Validate returns ErrEmptyAssetPair when either leg is missing.
func (p AssetPair) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyAssetPair
	}

	return nil
}

// Reverse swaps base and quote. The zero pair reverses to itself.
func (p AssetPair) Reverse() AssetPair {
	if p.IsEmpty() {
		return AssetPair{}
	}

	return AssetPair{Base: p.Quote, Quote: p.Base}
}

// IsEqual reports whether both legs match in order.
func (p AssetPair) IsEqual(other AssetPair) bool {
	if p.IsEmpty() || other.IsEmpty() {
		return false
	}

	return p.Base == other.Base && p.Quote == other.Quote
}

// IsReversed reports whether other is p with its legs swapped.
func (p AssetPair) IsReversed(other AssetPair) bool {
	if p.IsEmpty() || other.IsEmpty() {
		return false
	}

	return p.Base == other.Quote && p.Quote == other.Base
}

// IsEqualOrReversed reports whether other is p in either orientation.
func (p AssetPair) IsEqualOrReversed(other AssetPair) bool {
	return p.IsEqual(other) || p.IsReversed(other)
}

// HasCommonAsset reports whether the pairs share at least one leg.
func (p AssetPair) HasCommonAsset(other AssetPair) bool {
	if p.IsEmpty() || other.IsEmpty() {
		return false
	}

	return p.Base == other.Base || p.Base == other.Quote ||
		p.Quote == other.Base || p.Quote == other.Quote
}

// ContainsAsset reports whether asset is one of the legs.
func (p AssetPair) ContainsAsset(asset string) bool {
	asset = NormalizeAsset(asset)
	if p.IsEmpty() || asset == "" {
		return false
	}

	return p.Base == asset || p.Quote == asset
}

// OtherAsset returns the leg that is not asset.
func (p AssetPair) OtherAsset(asset string) (string, bool) {
	asset = NormalizeAsset(asset)
	switch {
	case !p.ContainsAsset(asset):
		return "", false
	case p.Base == asset:
		return p.Quote, true
	default:
		return p.Base, true
	}
}
