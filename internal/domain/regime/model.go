// Package regime describes the K-regime change-point model of log-returns.
//
// Observations share one mean and switch their standard deviation at K-1
// integer breakpoints tau_1 < ... < tau_{K-1}. Index i belongs to regime
// #{j : tau_j <= i}, so i < tau_1 is the first regime. The model is a pure
// description: it validates its configuration and evaluates the
// log-probability of a parameter vector, and samplers drive it.
package regime

import (
	"fmt"
	"math"

	"github.com/okian/volregime/internal/domain/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default prior hyperparameters.
const (
	defaultRegimes    = 2
	defaultMuMean     = 0.0
	defaultMuSigma    = 0.01
	defaultSigmaScale = 0.1
	minObservations   = 2
)

// Kind classifies a parameter for the sampler.
type Kind int

// Parameter kinds.
const (
	KindBreakpoint Kind = iota // integer index
	KindLocation               // unbounded real
	KindScale                  // positive real
)

// Bound is the inclusive admissible index range of one breakpoint.
type Bound struct {
	Lower int `koanf:"lower" json:"lower"`
	Upper int `koanf:"upper" json:"upper"`
}

// Model is a validated K-regime model over a series of n observations.
// The parameter vector is laid out as [tau_1..tau_{K-1}, mu, sigma_1..sigma_K].
type Model struct {
	n          int
	k          int
	bounds     []Bound
	muMean     float64
	muSigma    float64
	sigmaScale float64
	names      []string
	kinds      []Kind
	tauPrior   float64
}

// New validates the configuration against a series of length n.
func New(n int, opts ...Option) (*Model, error) {
	m := &Model{
		n:          n,
		k:          defaultRegimes,
		muMean:     defaultMuMean,
		muSigma:    defaultMuSigma,
		sigmaScale: defaultSigmaScale,
	}
	for _, opt := range opts {
		opt(m)
	}
	if n < minObservations {
		return nil, fmt.Errorf("regime: %w: %d observations", model.ErrDataInsufficient, n)
	}
	if m.k < 2 {
		return nil, fmt.Errorf("regime: %w: need at least 2 regimes, got %d", model.ErrModelMisspecified, m.k)
	}
	if m.bounds == nil {
		m.bounds = make([]Bound, m.k-1)
		for j := range m.bounds {
			m.bounds[j] = Bound{Lower: 0, Upper: n - 1}
		}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.describe()
	return m, nil
}

func (m *Model) validate() error {
	if len(m.bounds) != m.k-1 {
		return fmt.Errorf("regime: %w: %d regimes need %d breakpoint ranges, got %d",
			model.ErrModelMisspecified, m.k, m.k-1, len(m.bounds))
	}
	if !(m.muSigma > 0) || !(m.sigmaScale > 0) || math.IsNaN(m.muMean) || math.IsInf(m.muMean, 0) {
		return fmt.Errorf("regime: %w: prior hyperparameters must be finite and positive", model.ErrModelMisspecified)
	}
	for j, b := range m.bounds {
		if b.Lower > b.Upper {
			return fmt.Errorf("regime: %w: tau_%d range [%d, %d] is empty", model.ErrModelMisspecified, j+1, b.Lower, b.Upper)
		}
		if b.Lower < 0 || b.Upper >= m.n {
			return fmt.Errorf("regime: %w: tau_%d range [%d, %d] outside [0, %d]", model.ErrIndexOutOfRange, j+1, b.Lower, b.Upper, m.n-1)
		}
		if j > 0 {
			prev := m.bounds[j-1]
			if b.Lower < prev.Lower || b.Upper < prev.Upper {
				return fmt.Errorf("regime: %w: tau_%d range [%d, %d] precedes tau_%d range [%d, %d]",
					model.ErrModelMisspecified, j+1, b.Lower, b.Upper, j, prev.Lower, prev.Upper)
			}
		}
	}
	if _, err := m.lowest(); err != nil {
		return err
	}
	return nil
}

// lowest returns the smallest strictly increasing assignment inside the
// ranges.
func (m *Model) lowest() ([]int, error) {
	out := make([]int, len(m.bounds))
	for j, b := range m.bounds {
		t := b.Lower
		if j > 0 {
			t = max(t, out[j-1]+1)
		}
		if t > b.Upper {
			return nil, fmt.Errorf("regime: %w: no strictly increasing breakpoints fit the ranges (tau_%d)", model.ErrModelMisspecified, j+1)
		}
		out[j] = t
	}
	return out, nil
}

// highest returns the largest strictly increasing assignment inside the
// ranges. The ranges must be satisfiable.
func (m *Model) highest() []int {
	out := make([]int, len(m.bounds))
	for j := len(m.bounds) - 1; j >= 0; j-- {
		t := m.bounds[j].Upper
		if j < len(m.bounds)-1 {
			t = min(t, out[j+1]-1)
		}
		out[j] = t
	}
	return out
}

func (m *Model) describe() {
	m.names = make([]string, 0, m.Dim())
	m.kinds = make([]Kind, 0, m.Dim())
	m.tauPrior = 0
	for j, b := range m.bounds {
		m.names = append(m.names, TauName(j))
		m.kinds = append(m.kinds, KindBreakpoint)
		m.tauPrior -= math.Log(float64(b.Upper - b.Lower + 1))
	}
	m.names = append(m.names, "mu")
	m.kinds = append(m.kinds, KindLocation)
	for r := 0; r < m.k; r++ {
		m.names = append(m.names, fmt.Sprintf("sigma_%d", r+1))
		m.kinds = append(m.kinds, KindScale)
	}
}

// TauName returns the label of the j-th breakpoint (0-based), e.g. "tau_1".
func TauName(j int) string { return fmt.Sprintf("tau_%d", j+1) }

// String describes the configuration, including priors.
func (m *Model) String() string {
	return fmt.Sprintf("regime(n=%d k=%d bounds=%v mu~N(%g,%g) sigma~HalfN(%g))",
		m.n, m.k, m.bounds, m.muMean, m.muSigma, m.sigmaScale)
}

// N returns the series length the model was built for.
func (m *Model) N() int { return m.n }

// Regimes returns K.
func (m *Model) Regimes() int { return m.k }

// Bounds returns a copy of the breakpoint ranges.
func (m *Model) Bounds() []Bound { return append([]Bound(nil), m.bounds...) }

// Dim returns the length of a parameter vector.
func (m *Model) Dim() int { return 2 * m.k }

// Names returns the parameter labels in vector order.
func (m *Model) Names() []string { return append([]string(nil), m.names...) }

// Kind returns the kind of parameter i.
func (m *Model) Kind(i int) Kind { return m.kinds[i] }

// IsDiscrete reports whether parameter i is a breakpoint index.
func (m *Model) IsDiscrete(i int) bool { return m.kinds[i] == KindBreakpoint }

// MuIndex returns the position of the shared mean in a parameter vector.
func (m *Model) MuIndex() int { return m.k - 1 }

// SigmaIndex returns the position of regime r's (0-based) standard deviation.
func (m *Model) SigmaIndex(r int) int { return m.k + r }

// Initial returns a feasible starting point: breakpoints in the middle of
// their joint feasible ranges, the prior mean for mu and the sample standard
// deviation of obs for every regime.
func (m *Model) Initial(obs Observations) []float64 {
	lo, _ := m.lowest()
	hi := m.highest()
	p := make([]float64, m.Dim())
	for j := range m.bounds {
		p[j] = float64((lo[j] + hi[j]) / 2)
	}
	p[m.MuIndex()] = m.muMean
	sd := obs.StdDev()
	if !(sd > 0) || math.IsInf(sd, 0) {
		sd = m.sigmaScale
	}
	for r := 0; r < m.k; r++ {
		p[m.SigmaIndex(r)] = sd
	}
	return p
}

// breakpoints extracts the integer breakpoints and reports whether they are
// inside their ranges and strictly increasing.
func (m *Model) breakpoints(params []float64) ([]int, bool) {
	if len(params) != m.Dim() {
		return nil, false
	}
	taus := make([]int, m.k-1)
	for j, b := range m.bounds {
		v := params[j]
		if v != math.Trunc(v) || v < float64(b.Lower) || v > float64(b.Upper) {
			return nil, false
		}
		taus[j] = int(v)
		if j > 0 && taus[j] <= taus[j-1] {
			return nil, false
		}
	}
	return taus, true
}

// Assign returns the 0-based regime of every observation. It returns nil for
// a parameter vector with invalid breakpoints.
func (m *Model) Assign(params []float64) []int {
	taus, ok := m.breakpoints(params)
	if !ok {
		return nil
	}
	out := make([]int, m.n)
	r := 0
	for i := range out {
		for r < len(taus) && taus[r] <= i {
			r++
		}
		out[i] = r
	}
	return out
}

// Scales returns the active standard deviation of every observation.
func (m *Model) Scales(params []float64) []float64 {
	regimes := m.Assign(params)
	if regimes == nil {
		return nil
	}
	out := make([]float64, m.n)
	for i, r := range regimes {
		out[i] = params[m.SigmaIndex(r)]
	}
	return out
}

// logPrior returns the log prior density, or -Inf outside the support.
func (m *Model) logPrior(params []float64) float64 {
	lp := m.tauPrior
	lp += distuv.Normal{Mu: m.muMean, Sigma: m.muSigma}.LogProb(params[m.MuIndex()])
	half := distuv.Normal{Mu: 0, Sigma: m.sigmaScale}
	for r := 0; r < m.k; r++ {
		s := params[m.SigmaIndex(r)]
		if !(s > 0) || math.IsInf(s, 0) {
			return math.Inf(-1)
		}
		lp += math.Ln2 + half.LogProb(s)
	}
	return lp
}

// LogProb returns log-prior plus log-likelihood of params given obs, or -Inf
// outside the support. The likelihood is the sum over observations i of
// log N(x_i | mu, Scales(params)[i]); each regime segment contributes its
// terms at once in O(1) from the prefix sums of obs, so the result equals
// LogProbNaive up to rounding.
func (m *Model) LogProb(params []float64, obs Observations) float64 {
	taus, ok := m.breakpoints(params)
	if !ok || obs.Len() != m.n {
		return math.Inf(-1)
	}
	lp := m.logPrior(params)
	if math.IsInf(lp, -1) {
		return lp
	}
	mu := params[m.MuIndex()]
	start := 0
	for r := 0; r < m.k; r++ {
		end := m.n
		if r < len(taus) {
			end = taus[r]
		}
		lp += obs.segmentLogLik(start, end, mu, params[m.SigmaIndex(r)])
		start = end
	}
	return lp
}

// LogProbNaive evaluates the same density observation by observation from
// the explicit piecewise-constant scale function.
func (m *Model) LogProbNaive(params []float64, values []float64) float64 {
	scales := m.Scales(params)
	if scales == nil || len(values) != m.n {
		return math.Inf(-1)
	}
	lp := m.logPrior(params)
	if math.IsInf(lp, -1) {
		return lp
	}
	mu := params[m.MuIndex()]
	for i, y := range values {
		lp += distuv.Normal{Mu: mu, Sigma: scales[i]}.LogProb(y)
	}
	return lp
}

// Observations holds prefix sums of the observed series.
type Observations struct {
	sum   []float64
	sumSq []float64
}

// NewObservations precomputes the sufficient statistics of values. Missing
// values are rejected since they would poison every segment sum.
func NewObservations(values []float64) (Observations, error) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Observations{}, fmt.Errorf("regime: %w: non-finite observation at index %d", model.ErrDataInsufficient, i)
		}
	}
	sq := make([]float64, len(values))
	floats.MulTo(sq, values, values)
	o := Observations{
		sum:   make([]float64, len(values)+1),
		sumSq: make([]float64, len(values)+1),
	}
	if len(values) > 0 {
		floats.CumSum(o.sum[1:], values)
		floats.CumSum(o.sumSq[1:], sq)
	}
	return o, nil
}

// Len returns the number of observations.
func (o Observations) Len() int { return max(len(o.sum)-1, 0) }

// StdDev returns the sample standard deviation of all observations.
func (o Observations) StdDev() float64 {
	n := float64(o.Len())
	if n < 2 {
		return math.NaN()
	}
	s, ss := o.sum[o.Len()], o.sumSq[o.Len()]
	return math.Sqrt(math.Max(ss-s*s/n, 0) / (n - 1))
}

func (o Observations) segmentLogLik(start, end int, mu, sigma float64) float64 {
	n := float64(end - start)
	if n <= 0 {
		return 0
	}
	s := o.sum[end] - o.sum[start]
	ss := o.sumSq[end] - o.sumSq[start]
	dev := math.Max(ss-2*mu*s+n*mu*mu, 0)
	return -n*math.Log(sigma) - 0.5*n*math.Log(2*math.Pi) - dev/(2*sigma*sigma)
}
