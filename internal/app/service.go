// Package service wires the analysis stages into one pipeline.
//
// Each stage consumes the immutable output of the previous one:
// prices -> segmentation -> log-returns -> model -> trace -> summary ->
// regime volatility -> matched events. Nothing is accumulated on the
// Service itself, so a Service can run many analyses concurrently.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/volregime/internal/domain/events"
	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/posterior"
	"github.com/okian/volregime/internal/domain/regime"
	"github.com/okian/volregime/internal/domain/sampler"
	"github.com/okian/volregime/internal/domain/segment"
	"github.com/okian/volregime/internal/domain/volatility"
	"github.com/okian/volregime/pkg/logger"
	"github.com/okian/volregime/pkg/metrics"
)

// Default pipeline configuration constants.
const (
	defaultRegimes    = 2
	defaultMuSigma    = 0.01
	defaultSigmaScale = 0.1
	defaultHDIProb    = 0.94
	defaultRolling    = 180
	defaultPeriods    = 252
	minPrices         = 3
)

// Service runs the change-point analysis.
type Service struct {
	segmentOpts    []segment.Option
	regimes        int
	bounds         []BoundSpec
	muSigma        float64
	sigmaScale     float64
	samplerOpts    []sampler.Option
	hdiProb        float64
	correlatorOpts []events.Option
	rollingWindow  int
	periods        int

	logger logger.Logger
}

// New constructs a Service with the default two-regime analysis.
func New(opts ...Option) *Service {
	s := &Service{
		regimes:       defaultRegimes,
		muSigma:       defaultMuSigma,
		sigmaScale:    defaultSigmaScale,
		hdiProb:       defaultHDIProb,
		rollingWindow: defaultRolling,
		periods:       defaultPeriods,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.OrNop("service")
	}
	return s
}

// RegimeReport is the volatility of one regime with its annualized value.
type RegimeReport struct {
	model.RegimeVolatility
	Annualized float64
}

// RollingPoint is the trailing price statistic at one date.
type RollingPoint struct {
	Date   time.Time
	Price  float64
	Mean   float64 // NaN until the window is full
	StdDev float64 // NaN until the window is full
}

// Report is the result of one analysis run.
type Report struct {
	RunID           uuid.UUID
	Observations    int // prices after dropping missing values
	Segmentation    segment.Segmentation
	ChangeDates     []time.Time // dates of the segmentation breakpoints
	Bounds          []regime.Bound
	Trace           *sampler.Trace
	Summary         posterior.Summary
	Breakpoints     []int       // posterior modes, indices into the returns
	BreakpointDates []time.Time // dates of Breakpoints
	Volatility      []RegimeReport
	Rolling         []RollingPoint // trailing price mean and deviation
	Matches         []model.MatchedEvent
	EventShares     []events.Share
	Warnings        []string // recovered degeneracies
}

// Segment runs only the segmentation stage on prices.
func (s *Service) Segment(ctx context.Context, prices model.TimeSeries) (segment.Segmentation, []time.Time, error) {
	start := time.Now()
	seg, dates, err := segment.New(s.withLogger(s.segmentOpts)...).Detect(ctx, prices)
	metrics.RecordStageDuration("segment", float64(time.Since(start).Milliseconds()))
	return seg, dates, err
}

func (s *Service) withLogger(opts []segment.Option) []segment.Option {
	return append([]segment.Option{segment.WithLogger(s.logger.Named("segment"))}, opts...)
}

// Run executes the full pipeline. Structural errors abort the run;
// degeneracies are recorded in Report.Warnings.
func (s *Service) Run(ctx context.Context, prices model.TimeSeries, evts []model.Event) (*Report, error) {
	report, err := s.run(ctx, prices, evts)
	if err != nil {
		metrics.RecordPipelineRun("error")
		metrics.RecordErrorByComponent("service", errorType(err))
		return nil, err
	}
	metrics.RecordPipelineRun("ok")
	return report, nil
}

func (s *Service) run(ctx context.Context, prices model.TimeSeries, evts []model.Event) (*Report, error) {
	clean := prices.DropMissing()
	if clean.Len() < minPrices {
		return nil, fmt.Errorf("service: %w: %d usable prices", model.ErrDataInsufficient, clean.Len())
	}
	report := &Report{Observations: clean.Len()}
	s.logger.Info(ctx, "analysis started", logger.Int("prices", clean.Len()), logger.Int("events", len(evts)))

	seg, dates, err := s.Segment(ctx, clean)
	switch {
	case errors.Is(err, model.ErrDataInsufficient):
		report.warn("segmentation: %v", err)
	case err != nil:
		return nil, err
	}
	report.Segmentation, report.ChangeDates = seg, dates

	returns, err := clean.LogReturns()
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	bounds, err := s.resolveBounds(returns)
	if err != nil {
		return nil, err
	}
	m, err := regime.New(returns.Len(),
		regime.WithRegimes(s.regimes),
		regime.WithBounds(bounds),
		regime.WithMeanPrior(0, s.muSigma),
		regime.WithScalePrior(s.sigmaScale),
	)
	if err != nil {
		return nil, err
	}
	report.Bounds = m.Bounds()

	stage := time.Now()
	smp, err := sampler.New(m, append([]sampler.Option{sampler.WithLogger(s.logger.Named("sampler"))}, s.samplerOpts...)...)
	if err != nil {
		return nil, err
	}
	trace, err := smp.Sample(ctx, returns.Values())
	if err != nil {
		return nil, err
	}
	metrics.RecordStageDuration("sample", float64(time.Since(stage).Milliseconds()))
	if err := trace.Err(); err != nil {
		report.warn("sampler: %v", err)
	}
	report.RunID, report.Trace = trace.RunID, trace

	summary, err := posterior.Summarize(ctx, trace, posterior.WithHDIProb(s.hdiProb))
	if err != nil {
		return nil, err
	}
	report.Summary = summary
	report.Breakpoints = pointEstimates(report, summary, trace)
	for _, b := range report.Breakpoints {
		report.BreakpointDates = append(report.BreakpointDates, returns.DateAt(b))
	}

	vols, err := volatility.Analyze(returns, report.Breakpoints)
	if err != nil {
		return nil, err
	}
	for _, v := range vols {
		if !v.Defined {
			report.warn("volatility: %s has %d observations", v.Label, v.N)
		}
		report.Volatility = append(report.Volatility, RegimeReport{RegimeVolatility: v, Annualized: volatility.Annualized(v.Volatility, s.periods)})
	}

	report.Rolling = rolling(clean, s.rollingWindow)

	corr := events.NewCorrelator(append([]events.Option{events.WithLogger(s.logger.Named("events"))}, s.correlatorOpts...)...)
	report.Matches, err = corr.Correlate(ctx, clean, returns, report.Breakpoints, evts)
	if err != nil {
		return nil, err
	}
	report.EventShares = events.EventTypeShares(evts)

	s.logger.Info(ctx, "analysis finished",
		logger.String("run_id", report.RunID.String()),
		logger.Any("breakpoints", report.Breakpoints),
		logger.Int("matched_events", len(report.Matches)),
		logger.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

// pointEstimates returns the per-breakpoint modes, or the most frequent
// joint draw when two modes fall on the same index.
func pointEstimates(report *Report, summary posterior.Summary, trace *sampler.Trace) []int {
	bkps := summary.Breakpoints()
	if posterior.Increasing(bkps) {
		return bkps
	}
	joint := posterior.JointMode(trace)
	report.warn("posterior: breakpoint modes %v collide, using the most frequent joint draw %v", bkps, joint)
	metrics.RecordErrorByComponent("posterior", "breakpoint_collision")
	return joint
}

func rolling(prices model.TimeSeries, window int) []RollingPoint {
	values := prices.Values()
	means, stds := volatility.Rolling(values, window)
	out := make([]RollingPoint, len(values))
	for i := range values {
		out[i] = RollingPoint{Date: prices.DateAt(i), Price: values[i], Mean: means[i], StdDev: stds[i]}
	}
	return out
}

// resolveBounds turns the configured ranges into index bounds over returns.
// No configured ranges leaves the model defaults in place.
func (s *Service) resolveBounds(returns model.LogReturnSeries) ([]regime.Bound, error) {
	if len(s.bounds) == 0 {
		return nil, nil
	}
	series := returns.Series()
	out := make([]regime.Bound, len(s.bounds))
	for j, b := range s.bounds {
		if !b.ByDate() {
			out[j] = regime.Bound{Lower: b.Lower, Upper: b.Upper}
			continue
		}
		first, last, ok := series.Window(b.From, b.To)
		if !ok {
			return nil, fmt.Errorf("service: %w: %s date range %s..%s has no returns",
				model.ErrIndexOutOfRange, regime.TauName(j), formatDate(b.From), formatDate(b.To))
		}
		out[j] = regime.Bound{Lower: first, Upper: last}
	}
	return out, nil
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format(time.DateOnly)
}

// errorType maps an error to a metrics label.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, model.ErrDataInsufficient):
		return "data_insufficient"
	case errors.Is(err, model.ErrModelMisspecified):
		return "model_misspecified"
	case errors.Is(err, model.ErrIndexOutOfRange):
		return "index_out_of_range"
	default:
		return "other"
	}
}
