// Package synth generates seeded synthetic series and event timelines with
// known change points, for tests and for the simulate command.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/volregime/internal/domain/model"
)

// Constants for synthetic generation.
const (
	seedStream     = 0x9e3779b97f4a7c15
	defaultPrice0  = 100.0
	hoursPerDay    = 24
	categoryCycles = 4
)

// Categories used for generated events. They mirror the event types of the
// Brent crude event catalog.
var Categories = []string{"Geopolitical", "Economic", "OPEC Policy", "Conflict"} //nolint:gochecknoglobals // read-only catalog

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^seedStream)) //nolint:gosec // deterministic synthetic data
}

// LevelShift returns n values around 0 with Gaussian noise of the given
// standard deviation, shifted by delta from index m on.
func LevelShift(n, m int, delta, noise float64, seed uint64) []float64 {
	r := newRand(seed)
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64() * noise
		if i >= m {
			out[i] += delta
		}
	}
	return out
}

// VarianceShift returns n zero-mean values split at breaks, where segment k
// has a sample standard deviation of exactly sds[k]. Every segment must have
// at least two observations.
func VarianceShift(n int, breaks []int, sds []float64, seed uint64) ([]float64, error) {
	if len(sds) != len(breaks)+1 {
		return nil, fmt.Errorf("synth: %d breaks need %d standard deviations, got %d", len(breaks), len(breaks)+1, len(sds))
	}
	r := newRand(seed)
	out := make([]float64, n)
	bounds := append(append([]int{0}, breaks...), n)
	for k := 0; k+1 < len(bounds); k++ {
		lo, hi := bounds[k], bounds[k+1]
		if hi-lo < 2 {
			return nil, fmt.Errorf("synth: segment %d has %d observations", k, hi-lo)
		}
		seg := out[lo:hi]
		for i := range seg {
			seg[i] = r.NormFloat64()
		}
		standardize(seg, sds[k])
	}
	return out, nil
}

// standardize rescales x in place to mean 0 and sample standard deviation sd.
func standardize(x []float64, sd float64) {
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	ss := 0.0
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	cur := math.Sqrt(ss / float64(len(x)-1))
	for i, v := range x {
		x[i] = (v - mean) / cur * sd
	}
}

// Dates returns n consecutive calendar days starting at start.
func Dates(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

// Prices compounds log-returns into a price path starting at p0. The result
// is one element longer than returns.
func Prices(returns []float64, p0 float64) []float64 {
	if p0 <= 0 {
		p0 = defaultPrice0
	}
	out := make([]float64, len(returns)+1)
	out[0] = p0
	for i, r := range returns {
		out[i+1] = out[i] * math.Exp(r)
	}
	return out
}

// PriceSeries builds a daily price TimeSeries whose log-returns are exactly
// returns.
func PriceSeries(start time.Time, returns []float64, p0 float64) (model.TimeSeries, error) {
	prices := Prices(returns, p0)
	return model.NewTimeSeries(Dates(start, len(prices)), prices)
}

// Events returns count events spread evenly between from and to, cycling
// through Categories. Names are deterministic so reruns compare equal.
func Events(from, to time.Time, count int, seed uint64) []model.Event {
	if count <= 0 || !to.After(from) {
		return []model.Event{}
	}
	r := newRand(seed)
	span := to.Sub(from).Hours() / hoursPerDay
	out := make([]model.Event, count)
	for i := range out {
		day := int(span * (float64(i) + r.Float64()) / float64(count))
		category := Categories[(i/categoryCycles+i)%len(Categories)]
		out[i] = model.Event{
			Date:       from.AddDate(0, 0, day),
			Name:       fmt.Sprintf("synthetic event %03d", i+1),
			Category:   category,
			Attributes: map[string]string{"source": "synth"},
		}
	}
	return out
}
