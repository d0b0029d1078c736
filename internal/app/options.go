package service

import (
	"time"

	"github.com/okian/volregime/internal/domain/events"
	"github.com/okian/volregime/internal/domain/sampler"
	"github.com/okian/volregime/internal/domain/segment"
	"github.com/okian/volregime/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// BoundSpec is a breakpoint range given by index or by calendar date. When
// From or To is set the range is resolved against the return series and the
// indices are ignored.
type BoundSpec struct {
	Lower int
	Upper int
	From  time.Time
	To    time.Time
}

// ByDate reports whether the range is anchored to dates.
func (b BoundSpec) ByDate() bool { return !b.From.IsZero() || !b.To.IsZero() }

// WithSegmentation passes options to the segmentation engine.
func WithSegmentation(opts ...segment.Option) Option {
	return func(s *Service) {
		s.segmentOpts = append(s.segmentOpts, opts...)
	}
}

// WithRegimes sets the number of regimes.
func WithRegimes(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.regimes = k
		}
	}
}

// WithBounds sets the breakpoint ranges.
func WithBounds(bounds []BoundSpec) Option {
	return func(s *Service) {
		s.bounds = append([]BoundSpec(nil), bounds...)
	}
}

// WithPriors sets the prior scales of the shared mean and the regime
// standard deviations.
func WithPriors(muSigma, sigmaScale float64) Option {
	return func(s *Service) {
		if muSigma > 0 {
			s.muSigma = muSigma
		}
		if sigmaScale > 0 {
			s.sigmaScale = sigmaScale
		}
	}
}

// WithSampler passes options to the MCMC sampler.
func WithSampler(opts ...sampler.Option) Option {
	return func(s *Service) {
		s.samplerOpts = append(s.samplerOpts, opts...)
	}
}

// WithHDIProb sets the credible mass of the reported intervals.
func WithHDIProb(p float64) Option {
	return func(s *Service) {
		if p > 0 && p < 1 {
			s.hdiProb = p
		}
	}
}

// WithCorrelator passes options to the event correlator.
func WithCorrelator(opts ...events.Option) Option {
	return func(s *Service) {
		s.correlatorOpts = append(s.correlatorOpts, opts...)
	}
}

// WithRollingWindow sets the trailing window of the price statistics.
func WithRollingWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rollingWindow = n
		}
	}
}

// WithPeriodsPerYear sets the annualization factor of regime volatility.
func WithPeriodsPerYear(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.periods = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
