package crossrate

import (
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Params selects which cross-rates Calculate produces.
type Params struct {
	// WantedAssets are the base assets of the canonical pairs.
	WantedAssets []string
	// IntermediateAssets restricts two-leg chains when non-empty.
	IntermediateAssets []string
	QuoteAsset         string
}

// Calculate builds every one-leg and two-leg cross-rate for each wanted asset
// from books. Callers pass only unexpired books.
func Calculate(books []*types.OrderBook, params Params) []*SynthOrderBook {
	quote := types.NormalizeAsset(params.QuoteAsset)
	if quote == "" {
		return nil
	}

	allowed := make(map[string]struct{}, len(params.IntermediateAssets))
	for _, a := range params.IntermediateAssets {
		allowed[types.NormalizeAsset(a)] = struct{}{}
	}

	var result []*SynthOrderBook
	for _, w := range params.WantedAssets {
		wanted := types.NormalizeAsset(w)
		if wanted == "" || wanted == quote {
			continue
		}
		target := types.AssetPair{Base: wanted, Quote: quote}

		for _, left := range books {
			intermediate, ok := left.AssetPair.OtherAsset(wanted)
			if !ok || intermediate == wanted {
				continue
			}

			if intermediate == quote {
				if synth, err := FromOrderBook(left, target); err == nil {
					result = append(result, synth)
				}
				continue
			}

			if len(allowed) > 0 {
				if _, ok := allowed[intermediate]; !ok {
					continue
				}
			}

			for _, right := range books {
				if !right.AssetPair.ContainsAsset(intermediate) || !right.AssetPair.ContainsAsset(quote) {
					continue
				}
				if synth, err := FromOrderBooks(left, right, target); err == nil {
					result = append(result, synth)
				}
			}
		}
	}

	return result
}
