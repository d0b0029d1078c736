package main

import (
	"fmt"
	"time"

	"github.com/okian/volregime/internal/adapters/dataset"
	"github.com/okian/volregime/internal/synth"
	"github.com/okian/volregime/pkg/logger"
	"github.com/spf13/cobra"
)

// Synthetic dataset defaults.
const (
	defaultSimLength = 1000
	defaultSimEvents = 40
	defaultSimPrice  = 100.0
	defaultSimSeed   = 42
	simPricesFile    = "prices.csv"
	simEventsFile    = "events.csv"
)

type simulateFlags struct {
	n      int
	breaks []int
	sds    []float64
	start  string
	p0     float64
	events int
	seed   uint64
}

func newSimulateCmd(rf *rootFlags) *cobra.Command {
	var f simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic price series with known variance shifts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, rf, nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			start, err := time.Parse(time.DateOnly, f.start)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			returns, err := synth.VarianceShift(f.n, f.breaks, f.sds, f.seed)
			if err != nil {
				return err
			}
			prices, err := synth.PriceSeries(start, returns, f.p0)
			if err != nil {
				return err
			}
			last := prices.DateAt(prices.Len() - 1)
			evts := synth.Events(start, last, f.events, f.seed+1)

			w, err := dataset.NewWriter(cfg.Data.OutputDir)
			if err != nil {
				return err
			}
			if err := w.WritePrices(simPricesFile, prices); err != nil {
				return err
			}
			if err := w.WriteEvents(simEventsFile, evts); err != nil {
				return err
			}
			log.Info(ctx, "synthetic dataset written",
				logger.String("prices", w.Path(simPricesFile)),
				logger.String("events", w.Path(simEventsFile)),
				logger.Int("returns", len(returns)),
				logger.Any("breaks", f.breaks),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", w.Path(simPricesFile), w.Path(simEventsFile))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.n, "n", defaultSimLength, "number of log-returns")
	fl.IntSliceVar(&f.breaks, "breaks", []int{defaultSimLength / 2}, "return indices where the standard deviation changes")
	fl.Float64SliceVar(&f.sds, "sds", []float64{0.01, 0.03}, "standard deviation of each regime")
	fl.StringVar(&f.start, "start", "2010-01-01", "date of the first price")
	fl.Float64Var(&f.p0, "p0", defaultSimPrice, "first price")
	fl.IntVar(&f.events, "events", defaultSimEvents, "number of synthetic events")
	fl.Uint64Var(&f.seed, "seed", defaultSimSeed, "random seed")
	return cmd
}
