// Package segment implements exact penalized change-point segmentation.
//
// The engine minimizes
//
//	Σ cost(segment) + penalty × (number of breakpoints)
//
// over all segmentations using PELT: the optimal-partitioning dynamic
// program with a pruning rule that drops candidate last-breakpoints which
// can never be optimal again. For the L2 cost the pruning keeps the result
// identical to the unpruned program, including under a minimum segment
// length, because a dominated candidate is only dropped once its dominator
// is itself admissible.
package segment

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/pkg/logger"
	"github.com/okian/volregime/pkg/metrics"
)

// Default segmentation configuration constants.
const (
	defaultPenaltyFactor = 3.0
	defaultMinSize       = 2
	defaultJump          = 1
	cancelCheckInterval  = 1024
)

// candidate is a possible last breakpoint. prunedAt records the first end at
// which it was dominated, or -1.
type candidate struct {
	pos      int
	prunedAt int
}

// Segmentation is the ordered list of breakpoint indices of one fit.
// A breakpoint b starts a new segment at index b.
type Segmentation struct {
	Breakpoints []int   // strictly increasing, each in (0, N)
	N           int     // length of the segmented series
	Penalty     float64 // penalty per breakpoint used for the fit
	Objective   float64 // minimized penalized cost
}

// Validate checks the ordering and range invariants.
func (s Segmentation) Validate() error {
	prev := 0
	for i, b := range s.Breakpoints {
		if b <= prev || b >= s.N {
			return fmt.Errorf("%w: breakpoint %d at position %d (N=%d)", ErrInvalidBreakpoints, b, i, s.N)
		}
		prev = b
	}
	return nil
}

// Engine fits L2 segmentations.
type Engine struct {
	penalty       float64
	penaltyFactor float64
	minSize       int
	jump          int
	logger        logger.Logger
}

// New creates an engine with the BIC-like default penalty 3·ln(N).
func New(opts ...Option) *Engine {
	e := &Engine{
		penaltyFactor: defaultPenaltyFactor,
		minSize:       defaultMinSize,
		jump:          defaultJump,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.OrNop("segment")
	}
	return e
}

// PenaltyFor returns the penalty applied to a series of length n.
func (e *Engine) PenaltyFor(n int) float64 {
	if e.penalty > 0 {
		return e.penalty
	}
	if n < 1 {
		return 0
	}
	return e.penaltyFactor * math.Log(float64(n))
}

// Fit segments values. Missing observations (NaN) are dropped first, so
// breakpoints index the cleaned sequence. An empty input yields an empty
// Segmentation together with model.ErrDataInsufficient.
func (e *Engine) Fit(ctx context.Context, values []float64) (Segmentation, error) {
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		metrics.RecordSegmentationInsufficient()
		e.logger.Warn(ctx, "segmentation skipped: no observations", logger.Int("input", len(values)))
		return Segmentation{Breakpoints: []int{}}, fmt.Errorf("segment: %w: series is empty or all missing", model.ErrDataInsufficient)
	}

	start := time.Now()
	pen := e.PenaltyFor(len(x))
	bkps, objective, err := e.pelt(ctx, newL2Cost(x), len(x), pen)
	if err != nil {
		return Segmentation{}, err
	}

	seg := Segmentation{Breakpoints: bkps, N: len(x), Penalty: pen, Objective: objective}
	metrics.RecordSegmentation(float64(time.Since(start).Milliseconds()), len(bkps))
	e.logger.Debug(ctx, "segmentation finished",
		logger.Int("n", len(x)),
		logger.Float64("penalty", pen),
		logger.Int("breakpoints", len(bkps)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return seg, nil
}

// Detect segments a time series and maps breakpoints to their timestamps.
func (e *Engine) Detect(ctx context.Context, ts model.TimeSeries) (Segmentation, []time.Time, error) {
	clean := ts.DropMissing()
	seg, err := e.Fit(ctx, clean.Values())
	if err != nil {
		return seg, nil, err
	}
	dates := make([]time.Time, len(seg.Breakpoints))
	for i, b := range seg.Breakpoints {
		dates[i] = clean.DateAt(b)
	}
	return seg, dates, nil
}

// pelt runs the pruned dynamic program. f[t] is the optimal penalized cost of
// x[0:t] and prev[t] the last breakpoint of that optimum.
func (e *Engine) pelt(ctx context.Context, cost *l2Cost, n int, pen float64) ([]int, float64, error) {
	f := make([]float64, n+1)
	prev := make([]int, n+1)
	for i := range f {
		f[i] = math.Inf(1)
	}
	f[0] = -pen

	// Admissible interior positions are multiples of jump; the end of the
	// series is always evaluated.
	var starts []int
	for s := e.jump; s < n; s += e.jump {
		starts = append(starts, s)
	}
	ends := make([]int, 0, len(starts)+1)
	for _, t := range starts {
		if t >= e.minSize {
			ends = append(ends, t)
		}
	}
	ends = append(ends, n)

	candidates := []candidate{{pos: 0, prunedAt: -1}}
	vals := make([]float64, 0, 16)
	next := 0
	for k, t := range ends {
		if k%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, fmt.Errorf("segment: %w", err)
			}
		}

		// A candidate dominated at time p loses to p for every end at least
		// minSize past p, where p itself becomes admissible.
		kept := candidates[:0]
		for _, c := range candidates {
			if c.prunedAt < 0 || t < c.prunedAt+e.minSize {
				kept = append(kept, c)
			}
		}
		candidates = kept

		for next < len(starts) && starts[next] <= t-e.minSize {
			if s := starts[next]; !math.IsInf(f[s], 1) {
				candidates = append(candidates, candidate{pos: s, prunedAt: -1})
			}
			next++
		}

		best, arg := math.Inf(1), -1
		vals = vals[:0]
		for _, c := range candidates {
			v := f[c.pos] + cost.segment(c.pos, t) + pen
			vals = append(vals, v)
			if v < best {
				best, arg = v, c.pos
			}
		}
		if arg < 0 {
			continue
		}
		f[t], prev[t] = best, arg

		for i := range candidates {
			if candidates[i].prunedAt < 0 && vals[i]-pen > best {
				candidates[i].prunedAt = t
			}
		}
	}

	var bkps []int
	for t := n; t > 0; t = prev[t] {
		if prev[t] > 0 {
			bkps = append(bkps, prev[t])
		}
	}
	slices.Reverse(bkps)
	if bkps == nil {
		bkps = []int{}
	}
	// The end of the series is a sentinel, not a regime boundary.
	if l := len(bkps); l > 0 && bkps[l-1] == n {
		bkps = bkps[:l-1]
	}
	return bkps, f[n], nil
}
