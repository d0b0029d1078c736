// Package posterior reduces a sampling trace to per-parameter statistics and
// convergence diagnostics.
package posterior

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/sampler"
	"github.com/okian/volregime/pkg/metrics"
	"gonum.org/v1/gonum/stat"
)

// Default summary configuration constants.
const (
	defaultHDIProb = 0.94
)

// Parameter holds the statistics of one parameter over all pooled draws.
// Undefined values are NaN.
type Parameter struct {
	Name     string  `json:"name"`
	Discrete bool    `json:"discrete"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	HDILow   float64 `json:"hdi_low"`
	HDIHigh  float64 `json:"hdi_high"`
	Mode     float64 `json:"mode"` // breakpoints only
	ESS      float64 `json:"ess"`
	RHat     float64 `json:"r_hat"`
}

// Summary is the posterior summary of one trace.
type Summary struct {
	RunID      uuid.UUID   `json:"run_id"`
	HDIProb    float64     `json:"hdi_prob"`
	Parameters []Parameter `json:"parameters"`
}

// Get returns the named parameter.
func (s Summary) Get(name string) (Parameter, bool) {
	i := slices.IndexFunc(s.Parameters, func(p Parameter) bool { return p.Name == name })
	if i < 0 {
		return Parameter{}, false
	}
	return s.Parameters[i], true
}

// Breakpoints returns the modes of the breakpoint parameters in ascending
// order. These are the point estimates used downstream.
func (s Summary) Breakpoints() []int {
	out := []int{}
	for _, p := range s.Parameters {
		if p.Discrete && !math.IsNaN(p.Mode) {
			out = append(out, int(p.Mode))
		}
	}
	slices.Sort(out)
	return out
}

// Increasing reports whether bkps is strictly increasing.
func Increasing(bkps []int) bool {
	for i := 1; i < len(bkps); i++ {
		if bkps[i] <= bkps[i-1] {
			return false
		}
	}
	return true
}

// JointMode returns the most frequent combination of breakpoint draws over
// every chain, ties going to the lexicographically smallest combination.
// Each draw is ordered, so the result is strictly increasing whenever the
// draws are.
func JointMode(trace *sampler.Trace) []int {
	if trace == nil {
		return []int{}
	}
	var cols []int
	for i := range trace.Names {
		if i < len(trace.Discrete) && trace.Discrete[i] {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return []int{}
	}

	counts := make(map[string]int)
	var best []int
	bestCount := 0
	for _, ch := range trace.Chains {
		for _, row := range ch.Samples {
			combo := make([]int, len(cols))
			for k, i := range cols {
				combo[k] = int(math.Round(row[i]))
			}
			key := fmt.Sprint(combo)
			counts[key]++
			n := counts[key]
			if n > bestCount || (n == bestCount && slices.Compare(combo, best) < 0) {
				best, bestCount = combo, n
			}
		}
	}
	if best == nil {
		return []int{}
	}
	return best
}

// Summarize computes the statistics of every parameter of trace. A single
// chain yields NaN R-hat rather than an error.
func Summarize(ctx context.Context, trace *sampler.Trace, opts ...Option) (Summary, error) {
	cfg := config{hdiProb: defaultHDIProb}
	for _, opt := range opts {
		opt(&cfg)
	}
	if trace == nil || len(trace.Chains) == 0 || trace.Draws == 0 {
		return Summary{}, fmt.Errorf("posterior: %w: empty trace", model.ErrDataInsufficient)
	}

	out := Summary{
		RunID:      trace.RunID,
		HDIProb:    cfg.hdiProb,
		Parameters: make([]Parameter, 0, len(trace.Names)),
	}
	for i, name := range trace.Names {
		if err := ctx.Err(); err != nil {
			return Summary{}, fmt.Errorf("posterior: %w", err)
		}
		chains := trace.Param(name)
		pooled := trace.Pooled(name)
		mean, sd := stat.MeanStdDev(pooled, nil)
		p := Parameter{
			Name:     name,
			Discrete: i < len(trace.Discrete) && trace.Discrete[i],
			Mean:     mean,
			SD:       sd,
			Mode:     math.NaN(),
			ESS:      ESS(chains),
			RHat:     RHat(chains),
		}
		p.HDILow, p.HDIHigh = HDI(pooled, cfg.hdiProb)
		if p.Discrete {
			p.Mode = Mode(pooled)
		}
		metrics.UpdatePosteriorDiagnostics(name, p.RHat, p.ESS)
		out.Parameters = append(out.Parameters, p)
	}
	return out, nil
}
