package types

import "errors"

// Validation and lookup errors shared across the detector packages.
var (
	ErrEmptyAssetPair      = errors.New("asset pair is empty")
	ErrEmptyAsset          = errors.New("asset is empty")
	ErrAssetNotInPair      = errors.New("asset is not part of the pair")
	ErrEmptySource         = errors.New("source is empty")
	ErrEmptyConversionPath = errors.New("conversion path is empty")
	ErrNotFound            = errors.New("not found")
	ErrInvalidSettings     = errors.New("invalid settings")
)
