package segment

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// l2Cost evaluates the sum of squared deviations from the segment mean in
// O(1) from prefix sums.
type l2Cost struct {
	sum   []float64
	sumSq []float64
}

func newL2Cost(x []float64) *l2Cost {
	c := &l2Cost{
		sum:   make([]float64, len(x)+1),
		sumSq: make([]float64, len(x)+1),
	}
	if len(x) == 0 {
		return c
	}
	sq := make([]float64, len(x))
	floats.MulTo(sq, x, x)
	floats.CumSum(c.sum[1:], x)
	floats.CumSum(c.sumSq[1:], sq)
	return c
}

// segment returns the cost of x[start:end].
func (c *l2Cost) segment(start, end int) float64 {
	n := float64(end - start)
	if n <= 0 {
		return 0
	}
	s := c.sum[end] - c.sum[start]
	v := c.sumSq[end] - c.sumSq[start] - s*s/n
	// Rounding can push a constant segment slightly below zero.
	return math.Max(v, 0)
}

// Cost returns the unpenalized L2 cost of splitting values at bkps.
func Cost(values []float64, bkps []int) float64 {
	c := newL2Cost(values)
	total, start := 0.0, 0
	for _, b := range append(append([]int(nil), bkps...), len(values)) {
		total += c.segment(start, b)
		start = b
	}
	return total
}
