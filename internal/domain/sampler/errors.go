package sampler

import "errors"

// Sentinel errors for sampler configuration.
var (
	ErrInvalidSeeds = errors.New("seed count does not match chain count")
	ErrInvalidCount = errors.New("draw, tune and chain counts must be usable")
)
