package regime

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithRegimes sets the number of regimes K. The model then has K-1
// breakpoints.
func WithRegimes(k int) Option {
	return func(m *Model) {
		m.k = k
	}
}

// WithBounds sets the admissible index range of every breakpoint, in order.
// Without it each breakpoint may take any index in [0, n-1].
func WithBounds(bounds []Bound) Option {
	return func(m *Model) {
		m.bounds = append([]Bound(nil), bounds...)
	}
}

// WithMeanPrior sets the Normal prior of the shared mean.
func WithMeanPrior(mu, sigma float64) Option {
	return func(m *Model) {
		m.muMean = mu
		m.muSigma = sigma
	}
}

// WithScalePrior sets the scale of the half-normal prior on every regime's
// standard deviation.
func WithScalePrior(scale float64) Option {
	return func(m *Model) {
		m.sigmaScale = scale
	}
}
