package posterior_test

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/posterior"
	"github.com/okian/volregime/internal/domain/sampler"
	"github.com/smartystreets/goconvey/convey"
)

func gaussianChains(m, n int, phi float64, seed uint64) [][]float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := make([][]float64, m)
	for c := range out {
		x := make([]float64, n)
		prev := 0.0
		for i := range x {
			prev = phi*prev + math.Sqrt(1-phi*phi)*r.NormFloat64()
			x[i] = prev
		}
		out[c] = x
	}
	return out
}

// buildTrace assembles a two-parameter trace of tau_1 and mu.
func buildTrace(tau, mu [][]float64) *sampler.Trace {
	tr := &sampler.Trace{
		Names:    []string{"tau_1", "mu"},
		Discrete: []bool{true, false},
		Draws:    len(tau[0]),
	}
	for c := range tau {
		ch := sampler.Chain{ID: c}
		for d := range tau[c] {
			ch.Samples = append(ch.Samples, []float64{tau[c][d], mu[c][d]})
		}
		tr.Chains = append(tr.Chains, ch)
	}
	return tr
}

func TestStatistics(t *testing.T) {
	convey.Convey("Given hand-made draws", t, func() {
		convey.Convey("Mode breaks ties by the smallest value", func() {
			convey.So(posterior.Mode([]float64{5, 3, 5, 3, 9}), convey.ShouldEqual, 3)
			convey.So(posterior.Mode([]float64{7, 7, 2}), convey.ShouldEqual, 7)
			convey.So(math.IsNaN(posterior.Mode(nil)), convey.ShouldBeTrue)
		})

		convey.Convey("HDI is the narrowest covering interval", func() {
			x := make([]float64, 100)
			for i := range x {
				x[i] = float64(i)
			}
			lo, hi := posterior.HDI(x, 0.9)
			convey.So(hi-lo, convey.ShouldEqual, 90)

			skewed := append(slices.Repeat([]float64{1}, 90), 50, 60, 70, 80, 90, 100, 110, 120, 130, 140)
			lo, hi = posterior.HDI(skewed, 0.9)
			convey.So(lo, convey.ShouldEqual, 1)
			convey.So(hi, convey.ShouldEqual, 50)

			lo, _ = posterior.HDI(nil, 0.9)
			convey.So(math.IsNaN(lo), convey.ShouldBeTrue)
		})

		convey.Convey("R-hat is near one for well mixed chains", func() {
			convey.So(posterior.RHat(gaussianChains(4, 1000, 0, 1)), convey.ShouldAlmostEqual, 1, 0.01)
		})

		convey.Convey("R-hat detects chains stuck in different places", func() {
			chains := gaussianChains(2, 500, 0, 2)
			for i := range chains[1] {
				chains[1][i] += 5
			}
			convey.So(posterior.RHat(chains), convey.ShouldBeGreaterThan, 1.5)
		})

		convey.Convey("R-hat is undefined for a single or constant chain", func() {
			convey.So(math.IsNaN(posterior.RHat(gaussianChains(1, 100, 0, 3))), convey.ShouldBeTrue)
			convey.So(math.IsNaN(posterior.RHat([][]float64{{1, 1, 1}, {1, 1, 1}})), convey.ShouldBeTrue)
		})

		convey.Convey("ESS reflects autocorrelation", func() {
			iid := posterior.ESS(gaussianChains(4, 1000, 0, 4))
			convey.So(iid, convey.ShouldBeBetween, 3000, 5000)

			sticky := posterior.ESS(gaussianChains(4, 1000, 0.9, 5))
			convey.So(sticky, convey.ShouldBeLessThan, 800)
			convey.So(sticky, convey.ShouldBeGreaterThan, 0)

			convey.So(math.IsNaN(posterior.ESS([][]float64{{2, 2, 2, 2, 2}})), convey.ShouldBeTrue)
		})
	})
}

func TestSummarize(t *testing.T) {
	convey.Convey("Given a trace with a discrete and a continuous parameter", t, func() {
		r := rand.New(rand.NewPCG(9, 9))
		tau := make([][]float64, 3)
		for c := range tau {
			for d := 0; d < 400; d++ {
				tau[c] = append(tau[c], float64(100+r.IntN(3)-1))
			}
		}
		mu := gaussianChains(3, 400, 0.3, 6)
		summary, err := posterior.Summarize(context.Background(), buildTrace(tau, mu))
		convey.So(err, convey.ShouldBeNil)
		convey.So(summary.HDIProb, convey.ShouldEqual, 0.94)

		convey.Convey("Then the breakpoint mode is an observed draw", func() {
			p, ok := summary.Get("tau_1")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(p.Discrete, convey.ShouldBeTrue)
			var pooled []float64
			for _, c := range tau {
				pooled = append(pooled, c...)
			}
			convey.So(pooled, convey.ShouldContain, p.Mode)
			convey.So(summary.Breakpoints(), convey.ShouldResemble, []int{int(p.Mode)})
		})

		convey.Convey("And the continuous interval contains its mean", func() {
			p, ok := summary.Get("mu")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(math.IsNaN(p.Mode), convey.ShouldBeTrue)
			convey.So(p.HDILow, convey.ShouldBeLessThanOrEqualTo, p.Mean)
			convey.So(p.HDIHigh, convey.ShouldBeGreaterThanOrEqualTo, p.Mean)
			convey.So(p.SD, convey.ShouldAlmostEqual, 1, 0.15)
		})

		convey.Convey("And unknown names are reported as missing", func() {
			_, ok := summary.Get("sigma_9")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given a single chain", t, func() {
		tr := buildTrace([][]float64{{3, 4, 4, 5}}, [][]float64{{0.1, 0.2, 0.3, 0.4}})
		summary, err := posterior.Summarize(context.Background(), tr, posterior.WithHDIProb(0.5))
		convey.So(err, convey.ShouldBeNil)
		p, _ := summary.Get("mu")
		convey.So(math.IsNaN(p.RHat), convey.ShouldBeTrue)
		convey.So(summary.HDIProb, convey.ShouldEqual, 0.5)
	})

	convey.Convey("Given an empty trace", t, func() {
		_, err := posterior.Summarize(context.Background(), &sampler.Trace{})
		convey.So(errors.Is(err, model.ErrDataInsufficient), convey.ShouldBeTrue)
		_, err = posterior.Summarize(context.Background(), nil)
		convey.So(errors.Is(err, model.ErrDataInsufficient), convey.ShouldBeTrue)
	})
}

// collidingTrace has ordered draws whose marginal modes both land on 100.
func collidingTrace() *sampler.Trace {
	tr := &sampler.Trace{
		Names:    []string{"tau_1", "tau_2", "mu"},
		Discrete: []bool{true, true, false},
	}
	ch := sampler.Chain{}
	add := func(t1, t2 float64, n int) {
		for range n {
			ch.Samples = append(ch.Samples, []float64{t1, t2, 0})
		}
	}
	add(50, 100, 5)
	add(100, 150, 3)
	add(100, 160, 3)
	tr.Chains = []sampler.Chain{ch}
	tr.Draws = len(ch.Samples)
	return tr
}

func TestJointMode(t *testing.T) {
	convey.Convey("Given ordered draws whose marginal modes collide", t, func() {
		tr := collidingTrace()
		summary, err := posterior.Summarize(context.Background(), tr)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("The marginal modes are not increasing", func() {
			convey.So(summary.Breakpoints(), convey.ShouldResemble, []int{100, 100})
			convey.So(posterior.Increasing(summary.Breakpoints()), convey.ShouldBeFalse)
		})

		convey.Convey("The joint mode is the most frequent ordered draw", func() {
			convey.So(posterior.JointMode(tr), convey.ShouldResemble, []int{50, 100})
		})
	})

	convey.Convey("Given tied joint draws", t, func() {
		tr := buildTrace([][]float64{{7, 3, 7, 3}}, [][]float64{{0, 0, 0, 0}})
		convey.So(posterior.JointMode(tr), convey.ShouldResemble, []int{3})
	})

	convey.Convey("Given no breakpoint parameters", t, func() {
		convey.So(posterior.JointMode(nil), convey.ShouldBeEmpty)
		convey.So(posterior.Increasing([]int{}), convey.ShouldBeTrue)
		convey.So(posterior.Increasing([]int{1, 4, 9}), convey.ShouldBeTrue)
	})
}
