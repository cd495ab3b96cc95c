package valuation

import (
	"math"
	"sort"
)

const (
	// IQRMultiplier sets the outlier fence width around the interquartile
	// range. Values outside [Q1 - k*IQR, Q3 + k*IQR] are dropped.
	IQRMultiplier = 3.0

	// MinHistoryPoints is the smallest cleaned history that supports a
	// regime classification.
	MinHistoryPoints = 36
)

// Clean filters a multiple history down to usable observations: nil, NaN,
// infinite and non-positive values are dropped first, then the IQR fence is
// applied to what remains. It returns the surviving values in ascending order
// and the count removed by the fence alone.
func Clean(multiples []*float64) (cleaned []float64, outliersRemoved int) {
	valid := make([]float64, 0, len(multiples))
	for _, m := range multiples {
		if m == nil || math.IsNaN(*m) || math.IsInf(*m, 0) || *m <= 0 {
			continue
		}
		valid = append(valid, *m)
	}
	sort.Float64s(valid)
	if len(valid) < 4 {
		return valid, 0
	}

	q1 := Percentile(valid, 25)
	q3 := Percentile(valid, 75)
	iqr := q3 - q1
	lo := q1 - IQRMultiplier*iqr
	hi := q3 + IQRMultiplier*iqr

	cleaned = valid[:0]
	for _, v := range valid {
		if v < lo || v > hi {
			outliersRemoved++
			continue
		}
		cleaned = append(cleaned, v)
	}
	return cleaned, outliersRemoved
}

// Percentile returns the q-th percentile of sorted ascending values using
// linear interpolation between adjacent ranks.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// PercentileRank places value within sorted ascending history as a 0..100
// percentile, counting ties at half weight (average-rank tie-break). An empty
// history yields NaN.
func PercentileRank(sorted []float64, value float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	// sorted input lets us binary-search both tie boundaries.
	less := sort.SearchFloat64s(sorted, value)
	lessOrEq := sort.Search(n, func(i int) bool { return sorted[i] > value })
	equal := lessOrEq - less
	return (float64(less) + 0.5*float64(equal)) / float64(n) * 100
}

// Median of sorted ascending values.
func Median(sorted []float64) float64 {
	return Percentile(sorted, 50)
}
