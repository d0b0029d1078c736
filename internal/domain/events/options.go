package events

import "github.com/okian/volregime/pkg/logger"

// Option applies a configuration option to the Correlator.
type Option func(*Correlator)

// WithWindowDays sets the half-width, in calendar days, of the window in
// which events match a change point.
func WithWindowDays(days int) Option {
	return func(c *Correlator) {
		if days >= 0 {
			c.windowDays = days
		}
	}
}

// WithImpactWindow sets the number of observations on each side of a
// change point used for the impact metrics.
func WithImpactWindow(n int) Option {
	return func(c *Correlator) {
		if n > 0 {
			c.impactWindow = n
		}
	}
}

// WithLogger sets a custom logger for the correlator.
func WithLogger(l logger.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.logger = l
		}
	}
}
