package segment

import "errors"

// ErrInvalidBreakpoints marks a segmentation that is not strictly increasing
// inside (0, N).
var ErrInvalidBreakpoints = errors.New("invalid breakpoints")
