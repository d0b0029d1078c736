package posterior

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// HDI returns the narrowest interval containing prob of the draws.
func HDI(x []float64, prob float64) (float64, float64) {
	n := len(x)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	inc := min(int(math.Floor(prob*float64(n))), n-1)
	best := 0
	for i := 1; i+inc < n; i++ {
		if sorted[i+inc]-sorted[i] < sorted[best+inc]-sorted[best] {
			best = i
		}
	}
	return sorted[best], sorted[best+inc]
}

// Mode returns the most frequent value, the smallest one on ties. It
// returns NaN for no draws.
func Mode(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	best, bestN := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i > bestN {
			best, bestN = sorted[i], j-i
		}
		i = j
	}
	return best
}

// shortest returns the common chain length.
func shortest(chains [][]float64) int {
	if len(chains) == 0 {
		return 0
	}
	n := len(chains[0])
	for _, c := range chains[1:] {
		n = min(n, len(c))
	}
	return n
}

// RHat returns the potential scale reduction factor of Gelman and Rubin.
// It is NaN for fewer than two chains, fewer than two draws, or zero
// within-chain variance.
func RHat(chains [][]float64) float64 {
	m, n := len(chains), shortest(chains)
	if m < 2 || n < 2 {
		return math.NaN()
	}
	means := make([]float64, m)
	w := 0.0
	for c, x := range chains {
		mean, variance := stat.MeanVariance(x[:n], nil)
		means[c] = mean
		w += variance
	}
	w /= float64(m)
	if !(w > 0) {
		return math.NaN()
	}
	b := float64(n) * stat.Variance(means, nil)
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}

// ESS returns the effective sample size over all chains, truncating the
// autocorrelation sum with Geyer's initial monotone sequence. It is NaN for
// constant or too short input.
func ESS(chains [][]float64) float64 {
	m, n := len(chains), shortest(chains)
	if m == 0 || n < 4 {
		return math.NaN()
	}
	means := make([]float64, m)
	for c, x := range chains {
		means[c] = stat.Mean(x[:n], nil)
	}
	// autocov returns the lag-t autocovariance averaged over chains.
	autocov := func(t int) float64 {
		total := 0.0
		for c, x := range chains {
			mu, s := means[c], 0.0
			for i := 0; i+t < n; i++ {
				s += (x[i] - mu) * (x[i+t] - mu)
			}
			total += s / float64(n)
		}
		return total / float64(m)
	}

	meanVar := autocov(0) * float64(n) / float64(n-1)
	varPlus := meanVar * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if !(varPlus > 0) {
		return math.NaN()
	}
	rho := func(t int) float64 {
		if t == 0 {
			return 1
		}
		return 1 - (meanVar-autocov(t))/varPlus
	}

	total, prev := 0.0, math.Inf(1)
	for k := 0; 2*k+1 < n; k++ {
		p := rho(2*k) + rho(2*k+1)
		if p < 0 {
			break
		}
		p = math.Min(p, prev)
		total += p
		prev = p
	}
	draws := float64(m * n)
	limit := draws * math.Log10(draws)
	tau := -1 + 2*total
	if tau <= 0 {
		return limit
	}
	return math.Min(draws/tau, limit)
}
