package sampler

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/okian/volregime/internal/domain/regime"
)

// Tuning schedule constants, after the classic Metropolis tuner.
const (
	seedStream       = 0x9e3779b97f4a7c15
	initialScaleStep = 0.1
	initialTauFrac   = 0.05
)

// tuneFactor maps a window acceptance rate to a step-size multiplier.
func tuneFactor(rate float64) float64 {
	switch {
	case rate < 0.001:
		return 0.1
	case rate < 0.05:
		return 0.5
	case rate < 0.2:
		return 0.9
	case rate > 0.95:
		return 10
	case rate > 0.75:
		return 2
	case rate > 0.5:
		return 1.1
	default:
		return 1
	}
}

// chain is the private state of one Markov chain.
type chain struct {
	model  *regime.Model
	obs    regime.Observations
	rng    *rand.Rand
	params []float64
	lp     float64
	steps  []float64

	windowAccepted []int
	windowProposed []int
	accepted       []int
}

func newChain(m *regime.Model, obs regime.Observations, seed uint64) *chain {
	c := &chain{
		model:          m,
		obs:            obs,
		rng:            rand.New(rand.NewPCG(seed, seed^seedStream)), //nolint:gosec // reproducible sampling stream
		params:         m.Initial(obs),
		steps:          make([]float64, m.Dim()),
		windowAccepted: make([]int, m.Dim()),
		windowProposed: make([]int, m.Dim()),
		accepted:       make([]int, m.Dim()),
	}
	c.lp = m.LogProb(c.params, obs)

	bounds := m.Bounds()
	sd := obs.StdDev()
	for i := range c.steps {
		switch m.Kind(i) {
		case regime.KindBreakpoint:
			c.steps[i] = math.Max(1, initialTauFrac*float64(bounds[i].Upper-bounds[i].Lower))
		case regime.KindLocation:
			c.steps[i] = sd / math.Sqrt(float64(obs.Len()))
		case regime.KindScale:
			c.steps[i] = initialScaleStep
		}
	}
	return c
}

// propose returns a candidate value for parameter i and the log Hastings
// correction of the move.
func (c *chain) propose(i int) (float64, float64) {
	cur := c.params[i]
	z := c.rng.NormFloat64()
	switch c.model.Kind(i) {
	case regime.KindBreakpoint:
		jump := math.Max(1, math.Round(math.Abs(z*c.steps[i])))
		if z < 0 {
			jump = -jump
		}
		return cur + jump, 0
	case regime.KindScale:
		// Random walk on log sigma; the Jacobian keeps the target exact.
		delta := z * c.steps[i]
		return cur * math.Exp(delta), delta
	default:
		return cur + z*c.steps[i], 0
	}
}

// sweep updates every parameter once in order.
func (c *chain) sweep() {
	for i := range c.params {
		cur := c.params[i]
		next, correction := c.propose(i)
		c.params[i] = next
		lp := c.model.LogProb(c.params, c.obs)
		c.windowProposed[i]++
		if !math.IsInf(lp, -1) {
			if d := lp - c.lp + correction; d >= 0 || math.Log(c.rng.Float64()) < d {
				c.lp = lp
				c.windowAccepted[i]++
				c.accepted[i]++
				continue
			}
		}
		c.params[i] = cur
	}
}

// adapt rescales the step sizes from the acceptance rates of the last
// window and starts a new window.
func (c *chain) adapt() {
	for i := range c.steps {
		if c.windowProposed[i] == 0 {
			continue
		}
		rate := float64(c.windowAccepted[i]) / float64(c.windowProposed[i])
		c.steps[i] *= tuneFactor(rate)
		c.windowAccepted[i], c.windowProposed[i] = 0, 0
	}
}

// rates returns the acceptance rate of every parameter over n sweeps and
// resets the counters.
func (c *chain) rates(n int) []float64 {
	out := make([]float64, len(c.accepted))
	for i, a := range c.accepted {
		if n > 0 {
			out[i] = float64(a) / float64(n)
		}
		c.accepted[i] = 0
		c.windowAccepted[i], c.windowProposed[i] = 0, 0
	}
	return out
}

// run performs tune tuning sweeps followed by draws retained sweeps. ctx is
// checked between sweeps.
func (c *chain) run(ctx context.Context, id int, seed uint64, tune, draws, adaptInterval int) (Chain, error) {
	for it := 0; it < tune; it++ {
		if err := ctx.Err(); err != nil {
			return Chain{}, err
		}
		c.sweep()
		if (it+1)%adaptInterval == 0 {
			c.adapt()
		}
	}
	out := Chain{
		ID:             id,
		Seed:           seed,
		TuneAcceptance: c.rates(tune),
	}
	if tune > 0 {
		names := c.model.Names()
		for i, rate := range out.TuneAcceptance {
			if rate == 0 {
				out.Degenerate = append(out.Degenerate, names[i])
			}
		}
	}
	out.StepSizes = append([]float64(nil), c.steps...)

	dim := len(c.params)
	backing := make([]float64, draws*dim)
	out.Samples = make([][]float64, draws)
	for d := 0; d < draws; d++ {
		if err := ctx.Err(); err != nil {
			return Chain{}, err
		}
		c.sweep()
		row := backing[d*dim : (d+1)*dim : (d+1)*dim]
		copy(row, c.params)
		out.Samples[d] = row
	}
	out.Acceptance = c.rates(draws)
	return out, nil
}
