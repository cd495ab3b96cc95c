// Package technical computes moving-average indicators over daily closes.
//
// Two forms are provided: full-series computation for backfills and tests,
// and a single-step incremental update for the daily batch. For any split of
// a close series into "history" and "new rows", stepping the incremental form
// over the new rows from the stored state yields the same values as the
// full-series form over the whole series.
package technical

// SMA calculates Simple Moving Average for the given period.
func SMA(data []float64, period int) []float64 {
	n := len(data)
	if n < period || period <= 0 {
		return nil
	}

	result := make([]float64, n)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		sum += data[i] - data[i-period]
		result[i] = sum / float64(period)
	}

	return result
}

// EMA calculates the Exponential Moving Average series for the given period.
// Values before the seed point are nil; the seed is the simple average of the
// first `period` closes, matching the incremental cold start.
func EMA(data []float64, period int) []*float64 {
	n := len(data)
	result := make([]*float64, n)
	if n < period || period <= 0 {
		return result
	}

	k := Alpha(period)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	seed := sum / float64(period)
	result[period-1] = &seed

	prev := seed
	for i := period; i < n; i++ {
		v := data[i]*k + prev*(1-k)
		result[i] = &v
		prev = v
	}

	return result
}

// EMALatest returns the most recent EMA value, or nil when the series is too
// short to seed.
func EMALatest(data []float64, period int) *float64 {
	vals := EMA(data, period)
	if len(vals) == 0 {
		return nil
	}
	return vals[len(vals)-1]
}

// Alpha returns the EMA smoothing factor 2/(N+1).
func Alpha(period int) float64 {
	return 2.0 / float64(period+1)
}

// EMAStep advances a seeded EMA by one close.
func EMAStep(prev float64, close float64, period int) float64 {
	k := Alpha(period)
	return close*k + prev*(1-k)
}

// Seed computes the cold-start EMA seed: the simple average of the first
// `period` closes. Returns nil when fewer than `period` closes are available.
func Seed(closes []float64, period int) *float64 {
	if len(closes) < period || period <= 0 {
		return nil
	}
	sum := 0.0
	for _, c := range closes[:period] {
		sum += c
	}
	seed := sum / float64(period)
	return &seed
}

// Standard indicator periods used by the feature computer.
const (
	PeriodLong  = 200
	PeriodShort = 50
)
