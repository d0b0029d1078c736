package sampler

import "github.com/okian/volregime/pkg/logger"

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithDraws sets the number of retained draws per chain.
func WithDraws(n int) Option {
	return func(s *Sampler) {
		s.draws = n
	}
}

// WithTune sets the number of tuning iterations per chain. Tuning draws are
// discarded.
func WithTune(n int) Option {
	return func(s *Sampler) {
		s.tune = n
	}
}

// WithChains sets the number of independent chains.
func WithChains(n int) Option {
	return func(s *Sampler) {
		s.chains = n
	}
}

// WithSeed sets the base seed. Chain c is seeded with base+c unless
// WithSeeds is given.
func WithSeed(seed uint64) Option {
	return func(s *Sampler) {
		s.seed = seed
	}
}

// WithSeeds sets one explicit seed per chain.
func WithSeeds(seeds []uint64) Option {
	return func(s *Sampler) {
		if len(seeds) > 0 {
			s.seeds = append([]uint64(nil), seeds...)
		}
	}
}

// WithWorkers bounds the number of chains sampled concurrently.
func WithWorkers(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithAdaptInterval sets how many tuning iterations pass between step-size
// updates.
func WithAdaptInterval(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.adaptInterval = n
		}
	}
}

// WithLogger sets a custom logger for the sampler.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}
