package service

import (
	"context"
	"testing"
	"time"

	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/posterior"
	"github.com/okian/volregime/internal/domain/sampler"
	"github.com/okian/volregime/internal/domain/volatility"
	"github.com/okian/volregime/internal/synth"
	"github.com/smartystreets/goconvey/convey"
)

func orderedDraws(rows [][2]float64, counts []int) *sampler.Trace {
	tr := &sampler.Trace{
		Names:    []string{"tau_1", "tau_2", "mu", "sigma_1", "sigma_2", "sigma_3"},
		Discrete: []bool{true, true, false, false, false, false},
	}
	ch := sampler.Chain{}
	for i, r := range rows {
		for range counts[i] {
			ch.Samples = append(ch.Samples, []float64{r[0], r[1], 0, 0.01, 0.02, 0.03})
		}
	}
	tr.Chains = []sampler.Chain{ch}
	tr.Draws = len(ch.Samples)
	return tr
}

func TestPointEstimates(t *testing.T) {
	convey.Convey("Given ordered draws whose marginal modes share an index", t, func() {
		tr := orderedDraws([][2]float64{{50, 100}, {100, 150}, {100, 160}}, []int{5, 3, 3})
		summary, err := posterior.Summarize(context.Background(), tr)
		convey.So(err, convey.ShouldBeNil)
		report := &Report{}

		bkps := pointEstimates(report, summary, tr)

		convey.Convey("Then the joint mode replaces them and a warning is recorded", func() {
			convey.So(bkps, convey.ShouldResemble, []int{50, 100})
			convey.So(report.Warnings, convey.ShouldHaveLength, 1)
			convey.So(report.Warnings[0], convey.ShouldContainSubstring, "collide")
		})

		convey.Convey("And the regimes can still be measured", func() {
			values, err := synth.VarianceShift(200, []int{100}, []float64{0.01, 0.02}, 3)
			convey.So(err, convey.ShouldBeNil)
			returns, err := model.NewLogReturnSeries(synth.Dates(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), 200), values)
			convey.So(err, convey.ShouldBeNil)
			vols, err := volatility.Analyze(returns, bkps)
			convey.So(err, convey.ShouldBeNil)
			convey.So(vols, convey.ShouldHaveLength, 3)
		})
	})

	convey.Convey("Given distinct modes", t, func() {
		tr := orderedDraws([][2]float64{{40, 120}, {41, 121}}, []int{3, 1})
		summary, err := posterior.Summarize(context.Background(), tr)
		convey.So(err, convey.ShouldBeNil)
		report := &Report{}

		convey.So(pointEstimates(report, summary, tr), convey.ShouldResemble, []int{40, 120})
		convey.So(report.Warnings, convey.ShouldBeEmpty)
	})
}
