// Package volatility measures the realized volatility of each regime
// between estimated breakpoints.
package volatility

import (
	"fmt"
	"math"

	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/regime"
	"gonum.org/v1/gonum/stat"
)

// Label returns the chronological name of regime r (0-based) out of k.
func Label(r, k int) string {
	switch {
	case k == 1:
		return "full series"
	case r == 0:
		return "before " + regime.TauName(0)
	case r == k-1:
		return "after " + regime.TauName(k-2)
	default:
		return fmt.Sprintf("between %s and %s", regime.TauName(r-1), regime.TauName(r))
	}
}

// StdDev returns the sample standard deviation of x, or NaN and false when
// x has fewer than two observations.
func StdDev(x []float64) (float64, bool) {
	if len(x) < 2 {
		return math.NaN(), false
	}
	return stat.StdDev(x, nil), true
}

// Analyze splits returns at bkps into len(bkps)+1 contiguous slices and
// reports the volatility of each in chronological order. Breakpoints must
// be strictly increasing indices in [0, returns.Len()].
func Analyze(returns model.LogReturnSeries, bkps []int) ([]model.RegimeVolatility, error) {
	n := returns.Len()
	prev := 0
	for j, b := range bkps {
		if b < prev || b > n || (j > 0 && b == prev) {
			return nil, fmt.Errorf("volatility: %w: breakpoint %d at position %d (N=%d)", model.ErrIndexOutOfRange, b, j, n)
		}
		prev = b
	}

	k := len(bkps) + 1
	bounds := make([]int, 0, k+1)
	bounds = append(append(append(bounds, 0), bkps...), n)
	out := make([]model.RegimeVolatility, k)
	for r := 0; r < k; r++ {
		start, end := bounds[r], bounds[r+1]
		vol, ok := StdDev(returns.Slice(start, end))
		rv := model.RegimeVolatility{
			Label:      Label(r, k),
			Start:      start,
			End:        end,
			N:          end - start,
			Volatility: vol,
			Defined:    ok,
		}
		if end > start {
			rv.StartDate, rv.EndDate = returns.DateAt(start), returns.DateAt(end-1)
		}
		out[r] = rv
	}
	return out, nil
}

// Annualized scales a daily volatility by the square root of the number of
// periods per year.
func Annualized(daily float64, periods int) float64 {
	if periods <= 0 {
		return math.NaN()
	}
	return daily * math.Sqrt(float64(periods))
}

// Rolling returns the trailing mean and sample standard deviation of values
// over window observations. The first window-1 entries, and any window
// holding a NaN, are NaN. A window of one yields a NaN deviation.
func Rolling(values []float64, window int) (means, stds []float64) {
	means = make([]float64, len(values))
	stds = make([]float64, len(values))
	for i := range values {
		means[i], stds[i] = math.NaN(), math.NaN()
		if window < 1 || i+1 < window {
			continue
		}
		w := values[i+1-window : i+1]
		if hasNaN(w) {
			continue
		}
		if window == 1 {
			means[i] = w[0]
			continue
		}
		means[i], stds[i] = stat.MeanStdDev(w, nil)
	}
	return means, stds
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
