package dataset

import "errors"

// Sentinel errors for dataset parsing.
var (
	ErrMissingColumn = errors.New("required column not found")
	ErrMalformedRow  = errors.New("malformed row")
)
