package segment

import "github.com/okian/volregime/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPenalty fixes the per-breakpoint penalty. Non-positive values keep the
// length-dependent default.
func WithPenalty(penalty float64) Option {
	return func(e *Engine) {
		if penalty > 0 {
			e.penalty = penalty
		}
	}
}

// WithPenaltyFactor sets f in the default penalty f·ln(N).
func WithPenaltyFactor(factor float64) Option {
	return func(e *Engine) {
		if factor > 0 {
			e.penaltyFactor = factor
		}
	}
}

// WithMinSize sets the minimum segment length.
func WithMinSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minSize = n
		}
	}
}

// WithJump restricts candidate breakpoints to multiples of j.
func WithJump(j int) Option {
	return func(e *Engine) {
		if j > 0 {
			e.jump = j
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
