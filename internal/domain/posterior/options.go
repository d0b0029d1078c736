package posterior

// Option applies a configuration option to Summarize.
type Option func(*config)

type config struct {
	hdiProb float64
}

// WithHDIProb sets the probability mass of the highest-density interval.
// Values outside (0, 1) keep the default.
func WithHDIProb(p float64) Option {
	return func(c *config) {
		if p > 0 && p < 1 {
			c.hdiProb = p
		}
	}
}
