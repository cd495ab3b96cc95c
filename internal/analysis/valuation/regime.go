package valuation

import (
	"fmt"
	"math"
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
)

const (
	// Regime thresholds on the history percentile of the current multiple.
	CheapPercentile     = 20.0
	ExpensivePercentile = 80.0

	// Metric selection hysteresis: the EBITDA window must show this many
	// positive TTM EBITDA months out of the last HysteresisWindow to adopt
	// EV/EBITDA, and the same count of non-positive months to abandon it.
	HysteresisWindow = 24
	HysteresisMin    = 18
)

// Sample is one monthly valuation observation: both candidate multiples,
// plus the TTM EBITDA that drives metric selection. Either multiple may be
// nil when the denominator was unavailable or non-positive that month.
type Sample struct {
	Date      time.Time
	EVEBITDA  *float64
	EVRevenue *float64
	TTMEBITDA *float64
}

// Result is the regime classification with its supporting diagnostics.
// Success is false when the history could not support a classification;
// that is a data condition, not an error, and Regime is then unknown.
type Result struct {
	Metric          models.MetricType
	Regime          models.Regime
	Multiple        *float64
	Percentile      *float64
	HistoryCount    int
	OutliersRemoved int
	HistoryMin      *float64
	HistoryMedian   *float64
	HistoryMax      *float64
	Success         bool
	Reason          string
}

// SelectMetric chooses between EV/EBITDA and EV/Revenue with hysteresis.
// EV/EBITDA requires the latest TTM EBITDA to be positive and at least 18 of
// the last 24 monthly observations positive. Once on EV/EBITDA, the ticker
// stays there until at least 18 of the last 24 observations are non-positive,
// so a single bad quarter cannot flip the metric and reset the percentile
// history.
func SelectMetric(samples []Sample, prior models.MetricType) models.MetricType {
	if len(samples) == 0 {
		if prior == models.MetricEVEBITDA {
			return models.MetricEVEBITDA
		}
		return models.MetricEVRevenue
	}
	window := samples
	if len(window) > HysteresisWindow {
		window = window[len(window)-HysteresisWindow:]
	}
	positive, nonPositive := 0, 0
	for _, s := range window {
		if s.TTMEBITDA != nil && *s.TTMEBITDA > 0 {
			positive++
		} else {
			nonPositive++
		}
	}

	if prior == models.MetricEVEBITDA {
		if nonPositive >= HysteresisMin {
			return models.MetricEVRevenue
		}
		return models.MetricEVEBITDA
	}

	latest := samples[len(samples)-1].TTMEBITDA
	if latest != nil && *latest > 0 && positive >= HysteresisMin {
		return models.MetricEVEBITDA
	}
	return models.MetricEVRevenue
}

// Analyze classifies the latest sample's valuation regime against the full
// history. The metric is chosen first, then the history under that metric is
// cleaned and the current multiple is ranked within it. Fewer than
// MinHistoryPoints cleaned observations, or a missing current multiple,
// produce an unknown regime with Success false rather than an error.
func Analyze(samples []Sample, prior models.MetricType) Result {
	metric := SelectMetric(samples, prior)
	res := Result{Metric: metric, Regime: models.RegimeUnknown}

	if len(samples) == 0 {
		res.Reason = "no history"
		return res
	}

	pick := func(s Sample) *float64 {
		if metric == models.MetricEVEBITDA {
			return s.EVEBITDA
		}
		return s.EVRevenue
	}

	history := make([]*float64, len(samples))
	for i, s := range samples {
		history[i] = pick(s)
	}

	current := history[len(history)-1]
	if current == nil || math.IsNaN(*current) || math.IsInf(*current, 0) || *current <= 0 {
		res.Reason = fmt.Sprintf("current %s multiple unavailable", metric.Label())
		return res
	}
	res.Multiple = current

	cleaned, removed := Clean(history)
	res.HistoryCount = len(cleaned)
	res.OutliersRemoved = removed
	if len(cleaned) < MinHistoryPoints {
		res.Reason = fmt.Sprintf("insufficient history: %d cleaned points, need %d", len(cleaned), MinHistoryPoints)
		return res
	}

	lo, med, hi := cleaned[0], Median(cleaned), cleaned[len(cleaned)-1]
	res.HistoryMin, res.HistoryMedian, res.HistoryMax = &lo, &med, &hi

	pct := PercentileRank(cleaned, *current)
	res.Percentile = &pct
	switch {
	case pct <= CheapPercentile:
		res.Regime = models.RegimeCheap
	case pct >= ExpensivePercentile:
		res.Regime = models.RegimeExpensive
	default:
		res.Regime = models.RegimeNormal
	}
	res.Success = true
	return res
}
