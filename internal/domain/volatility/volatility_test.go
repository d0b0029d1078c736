package volatility_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/volatility"
	"github.com/okian/volregime/internal/synth"
	"github.com/smartystreets/goconvey/convey"
)

func returnsOf(t *testing.T, values []float64) model.LogReturnSeries {
	t.Helper()
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := model.NewLogReturnSeries(synth.Dates(start, len(values)), values)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestAnalyze(t *testing.T) {
	convey.Convey("Given returns with three volatility regimes", t, func() {
		values, err := synth.VarianceShift(300, []int{100, 200}, []float64{0.01, 0.03, 0.02}, 5)
		convey.So(err, convey.ShouldBeNil)
		returns := returnsOf(t, values)

		out, err := volatility.Analyze(returns, []int{100, 200})
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldHaveLength, 3)

		convey.Convey("Then each slice reports its own volatility", func() {
			convey.So(out[0].Volatility, convey.ShouldAlmostEqual, 0.01, 1e-12)
			convey.So(out[1].Volatility, convey.ShouldAlmostEqual, 0.03, 1e-12)
			convey.So(out[2].Volatility, convey.ShouldAlmostEqual, 0.02, 1e-12)
			convey.So(out[0].Label, convey.ShouldEqual, "before tau_1")
			convey.So(out[1].Label, convey.ShouldEqual, "between tau_1 and tau_2")
			convey.So(out[2].Label, convey.ShouldEqual, "after tau_2")
		})

		convey.Convey("And the slices cover the series exactly once", func() {
			total := 0
			for i, rv := range out {
				total += rv.N
				if i > 0 {
					convey.So(rv.Start, convey.ShouldEqual, out[i-1].End)
				}
			}
			convey.So(total, convey.ShouldEqual, returns.Len())
			convey.So(out[2].EndDate, convey.ShouldEqual, returns.DateAt(299))
		})
	})

	convey.Convey("Given breakpoints that leave a short slice", t, func() {
		returns := returnsOf(t, synth.LevelShift(20, 0, 0, 1, 1))
		out, err := volatility.Analyze(returns, []int{1, 19})
		convey.So(err, convey.ShouldBeNil)

		convey.So(out[0].Defined, convey.ShouldBeFalse)
		convey.So(math.IsNaN(out[0].Volatility), convey.ShouldBeTrue)
		convey.So(out[1].Defined, convey.ShouldBeTrue)
		convey.So(out[2].N, convey.ShouldEqual, 1)
		convey.So(out[2].Defined, convey.ShouldBeFalse)
	})

	convey.Convey("Given no breakpoints", t, func() {
		out, err := volatility.Analyze(returnsOf(t, []float64{1, 2, 3}), nil)
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldHaveLength, 1)
		convey.So(out[0].Label, convey.ShouldEqual, "full series")
		convey.So(out[0].Volatility, convey.ShouldAlmostEqual, 1, 1e-12)
	})

	convey.Convey("Given invalid breakpoints", t, func() {
		returns := returnsOf(t, make([]float64, 10))
		for _, bkps := range [][]int{{5, 5}, {7, 3}, {11}, {-1}} {
			_, err := volatility.Analyze(returns, bkps)
			convey.So(errors.Is(err, model.ErrIndexOutOfRange), convey.ShouldBeTrue)
		}
	})

	convey.Convey("Given a daily volatility", t, func() {
		convey.So(volatility.Annualized(0.01, 252), convey.ShouldAlmostEqual, 0.01*math.Sqrt(252), 1e-12)
		convey.So(math.IsNaN(volatility.Annualized(0.01, 0)), convey.ShouldBeTrue)
	})
}

func TestRolling(t *testing.T) {
	convey.Convey("Given a short price path", t, func() {
		values := []float64{1, 2, 3, 4, 6}

		convey.Convey("A window of three leaves the first two entries undefined", func() {
			means, stds := volatility.Rolling(values, 3)
			convey.So(math.IsNaN(means[0]) && math.IsNaN(means[1]), convey.ShouldBeTrue)
			convey.So(math.IsNaN(stds[1]), convey.ShouldBeTrue)
			convey.So(means[2:], convey.ShouldResemble, []float64{2, 3, 13.0 / 3})
			convey.So(stds[2], convey.ShouldAlmostEqual, 1, 1e-12)
			convey.So(stds[4], convey.ShouldAlmostEqual, math.Sqrt(7.0/3), 1e-12)
		})

		convey.Convey("A window longer than the series is undefined everywhere", func() {
			means, _ := volatility.Rolling(values, 10)
			for _, m := range means {
				convey.So(math.IsNaN(m), convey.ShouldBeTrue)
			}
		})

		convey.Convey("A missing value poisons the windows that hold it", func() {
			means, _ := volatility.Rolling([]float64{1, math.NaN(), 3, 4, 5}, 2)
			convey.So(math.IsNaN(means[1]) && math.IsNaN(means[2]), convey.ShouldBeTrue)
			convey.So(means[3], convey.ShouldEqual, 3.5)
		})
	})
}
