package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/okian/volregime/internal/adapters/dataset"
	service "github.com/okian/volregime/internal/app"
	"github.com/okian/volregime/internal/config"
	"github.com/okian/volregime/internal/domain/events"
	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/sampler"
	"github.com/okian/volregime/internal/domain/segment"
	"github.com/okian/volregime/pkg/logger"
	"github.com/spf13/cobra"
)

var errLowerUpper = errors.New("lower and upper are both required")

type runFlags struct {
	prices     string
	events     string
	regimes    int
	draws      int
	tune       int
	chains     int
	seed       uint64
	workers    int
	windowDays int
	penalty    float64
}

func newRunCmd(rf *rootFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Segment prices, sample the regime model and correlate events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, rf, func(c *config.Config) { f.apply(cmd, c) })
			if err != nil {
				return err
			}
			return runAnalysis(cmd, cfg, log)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.prices, "prices", "", "price CSV")
	fl.StringVar(&f.events, "events", "", "event timeline CSV")
	fl.IntVar(&f.regimes, "regimes", 0, "number of volatility regimes")
	fl.IntVar(&f.draws, "draws", 0, "posterior draws per chain")
	fl.IntVar(&f.tune, "tune", 0, "tuning iterations per chain")
	fl.IntVar(&f.chains, "chains", 0, "number of chains")
	fl.Uint64Var(&f.seed, "seed", 0, "base random seed")
	fl.IntVar(&f.workers, "workers", 0, "chains sampled in parallel")
	fl.IntVar(&f.windowDays, "window-days", 0, "event match window in days")
	fl.Float64Var(&f.penalty, "penalty", 0, "segmentation penalty per breakpoint")
	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (f *runFlags) apply(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("prices") {
		c.Data.PricesPath = f.prices
	}
	if flags.Changed("events") {
		c.Data.EventsPath = f.events
	}
	if flags.Changed("regimes") {
		c.Model.Regimes = f.regimes
	}
	if flags.Changed("draws") {
		c.Sampler.Draws = f.draws
	}
	if flags.Changed("tune") {
		c.Sampler.Tune = f.tune
	}
	if flags.Changed("chains") {
		c.Sampler.Chains = f.chains
	}
	if flags.Changed("seed") {
		c.Sampler.Seed = f.seed
	}
	if flags.Changed("workers") {
		c.Sampler.Workers = f.workers
	}
	if flags.Changed("window-days") {
		c.Events.WindowDays = f.windowDays
	}
	if flags.Changed("penalty") {
		c.Segmentation.Penalty = f.penalty
	}
}

func runAnalysis(cmd *cobra.Command, cfg *config.Config, log logger.Logger) error {
	ctx := cmd.Context()
	if cfg.Data.PricesPath == "" {
		return fmt.Errorf("%w: no price file given", config.ErrInvalidConfig)
	}
	stopMetrics := serveMetrics(ctx, cfg.MetricsAddr, log)
	defer stopMetrics()

	prices, err := dataset.ReadPricesFile(cfg.Data.PricesPath, readerOptions(cfg)...)
	if err != nil {
		return err
	}
	var evts []model.Event
	if cfg.Data.EventsPath != "" {
		if evts, err = dataset.ReadEventsFile(cfg.Data.EventsPath); err != nil {
			return err
		}
	}

	opts, err := serviceOptions(cfg)
	if err != nil {
		return err
	}
	report, err := service.New(append(opts, service.WithLogger(log.Named("service")))...).Run(ctx, prices, evts)
	if err != nil {
		return err
	}

	w, err := dataset.NewWriter(cfg.Data.OutputDir)
	if err != nil {
		return err
	}
	if err := w.WriteReport(report); err != nil {
		return err
	}
	log.Info(ctx, "artifacts written", logger.String("dir", w.Dir()), logger.String("run_id", report.RunID.String()))
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func newSegmentCmd(rf *rootFlags) *cobra.Command {
	var (
		prices  string
		penalty float64
		minSize int
		jump    int
	)
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Run only the PELT segmentation of the price series",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, rf, func(c *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("prices") {
					c.Data.PricesPath = prices
				}
				if flags.Changed("penalty") {
					c.Segmentation.Penalty = penalty
				}
				if flags.Changed("min-size") {
					c.Segmentation.MinSize = minSize
				}
				if flags.Changed("jump") {
					c.Segmentation.Jump = jump
				}
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if cfg.Data.PricesPath == "" {
				return fmt.Errorf("%w: no price file given", config.ErrInvalidConfig)
			}
			ts, err := dataset.ReadPricesFile(cfg.Data.PricesPath, readerOptions(cfg)...)
			if err != nil {
				return err
			}
			opts, err := serviceOptions(cfg)
			if err != nil {
				return err
			}
			seg, dates, err := service.New(append(opts, service.WithLogger(log.Named("service")))...).Segment(ctx, ts)
			if err != nil {
				return err
			}
			w, err := dataset.NewWriter(cfg.Data.OutputDir)
			if err != nil {
				return err
			}
			if err := w.WriteSegmentation(seg, dates); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "penalty %.4g, %d breakpoints\n", seg.Penalty, len(seg.Breakpoints))
			for i, b := range seg.Breakpoints {
				fmt.Fprintf(out, "  %5d  %s\n", b, dates[i].Format(time.DateOnly))
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&prices, "prices", "", "price CSV")
	fl.Float64Var(&penalty, "penalty", 0, "penalty per breakpoint, 0 for factor*ln(N)")
	fl.IntVar(&minSize, "min-size", 0, "minimum segment length")
	fl.IntVar(&jump, "jump", 0, "breakpoint grid step")
	return cmd
}

func readerOptions(cfg *config.Config) []dataset.Option {
	return []dataset.Option{
		dataset.WithDateColumn(cfg.Data.DateColumn),
		dataset.WithValueColumn(cfg.Data.PriceColumn),
	}
}

// serviceOptions maps configuration onto the pipeline.
func serviceOptions(cfg *config.Config) ([]service.Option, error) {
	bounds := make([]service.BoundSpec, 0, len(cfg.Model.Bounds))
	for i, b := range cfg.Model.Bounds {
		spec, err := boundSpec(b)
		if err != nil {
			return nil, fmt.Errorf("%w: model.bounds[%d]: %w", config.ErrInvalidConfig, i, err)
		}
		bounds = append(bounds, spec)
	}

	sopts := []sampler.Option{
		sampler.WithDraws(cfg.Sampler.Draws),
		sampler.WithTune(cfg.Sampler.Tune),
		sampler.WithChains(cfg.Sampler.Chains),
		sampler.WithSeed(cfg.Sampler.Seed),
		sampler.WithAdaptInterval(cfg.Sampler.AdaptInterval),
	}
	if len(cfg.Sampler.Seeds) > 0 {
		sopts = append(sopts, sampler.WithSeeds(cfg.Sampler.Seeds))
	}
	if cfg.Sampler.Workers > 0 {
		sopts = append(sopts, sampler.WithWorkers(cfg.Sampler.Workers))
	}

	segOpts := []segment.Option{
		segment.WithPenaltyFactor(cfg.Segmentation.PenaltyFactor),
		segment.WithMinSize(cfg.Segmentation.MinSize),
		segment.WithJump(cfg.Segmentation.Jump),
	}
	if cfg.Segmentation.Penalty > 0 {
		segOpts = append(segOpts, segment.WithPenalty(cfg.Segmentation.Penalty))
	}

	return []service.Option{
		service.WithSegmentation(segOpts...),
		service.WithRegimes(cfg.Model.Regimes),
		service.WithBounds(bounds),
		service.WithPriors(cfg.Model.MuPriorSigma, cfg.Model.SigmaPriorScale),
		service.WithSampler(sopts...),
		service.WithCorrelator(
			events.WithWindowDays(cfg.Events.WindowDays),
			events.WithImpactWindow(cfg.Events.ImpactWindow),
		),
		service.WithRollingWindow(cfg.Volatility.RollingWindow),
		service.WithPeriodsPerYear(cfg.Volatility.PeriodsPerYear),
	}, nil
}

func boundSpec(b config.Bound) (service.BoundSpec, error) {
	var spec service.BoundSpec
	if b.ByDate() {
		var err error
		if b.From != "" {
			if spec.From, err = time.Parse(time.DateOnly, b.From); err != nil {
				return spec, err
			}
		}
		if b.To != "" {
			if spec.To, err = time.Parse(time.DateOnly, b.To); err != nil {
				return spec, err
			}
		}
		return spec, nil
	}
	if b.Lower == nil || b.Upper == nil {
		return spec, errLowerUpper
	}
	spec.Lower, spec.Upper = *b.Lower, *b.Upper
	return spec, nil
}

// printReport writes a short human-readable digest.
func printReport(out io.Writer, r *service.Report) {
	fmt.Fprintf(out, "run %s: %d prices, %d segmentation breakpoints\n", r.RunID, r.Observations, len(r.Segmentation.Breakpoints))
	for _, p := range r.Summary.Parameters {
		fmt.Fprintf(out, "  %-8s mean %10.5g  hdi [%.5g, %.5g]  r_hat %.3f  ess %.0f\n", p.Name, p.Mean, p.HDILow, p.HDIHigh, p.RHat, p.ESS)
	}
	for i, b := range r.Breakpoints {
		fmt.Fprintf(out, "  change point %d at return %d (%s)\n", i+1, b, r.BreakpointDates[i].Format(time.DateOnly))
	}
	for _, v := range r.Volatility {
		fmt.Fprintf(out, "  %-24s daily %.5f  annualized %.4f\n", v.Label, v.Volatility, v.Annualized)
	}
	fmt.Fprintf(out, "  %d events matched\n", len(r.Matches))
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
