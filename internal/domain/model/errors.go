package model

import "errors"

// Sentinel error kinds shared by the detection and inference components.
// Callers match them with errors.Is; components wrap them with context.
var (
	// ErrDataInsufficient marks an empty or degenerate series.
	ErrDataInsufficient = errors.New("data insufficient")
	// ErrModelMisspecified marks an invalid regime count or breakpoint ranges.
	ErrModelMisspecified = errors.New("model misspecified")
	// ErrSamplingDegenerate marks a parameter that accepted no proposal during tuning.
	// It is reported on the trace and never aborts a run.
	ErrSamplingDegenerate = errors.New("sampling degenerate")
	// ErrIndexOutOfRange marks a breakpoint or range outside the series.
	ErrIndexOutOfRange = errors.New("index out of range")

	ErrLengthMismatch     = errors.New("dates and values length mismatch")
	ErrUnsortedSeries     = errors.New("timestamps not strictly increasing")
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
)
