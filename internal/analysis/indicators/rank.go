package indicators

import (
	"sort"
)

// TrailingReturn returns closes[n-1]/closes[n-1-window] - 1.
func TrailingReturn(closes []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(closes) < window+1 {
		return 0, ErrInsufficientData
	}
	base := closes[len(closes)-1-window]
	if base <= 0 {
		return 0, ErrInvalidPrice
	}
	return closes[len(closes)-1]/base - 1, nil
}

// PercentileRank ranks values ascending and scales to (0,100]. Ties share
// the average of the positions they occupy, so the result does not depend
// on input order.
func PercentileRank(values map[string]float64) map[string]float64 {
	n := len(values)
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}

	keys := make([]string, 0, n)
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		vi, vj := values[keys[i]], values[keys[j]]
		if vi != vj {
			return vi < vj
		}
		return keys[i] < keys[j]
	})

	for i := 0; i < n; {
		j := i
		for j+1 < n && values[keys[j+1]] == values[keys[i]] {
			j++
		}
		// positions i..j are 1-based ranks i+1..j+1
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			out[keys[k]] = avg / float64(n) * 100
		}
		i = j + 1
	}
	return out
}

// LinearSlope is the least-squares slope of values against their index.
func LinearSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	yMean := mean(values)
	var num, den float64
	for i, y := range values {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
