// Package valuation computes trailing-twelve-month aggregates, enterprise
// value and valuation multiples, and classifies a ticker's valuation regime
// against its own multi-year history.
package valuation

import (
	"sort"
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// TTMPoint carries the trailing-twelve-month aggregates known as of one
// quarterly period end, together with the balance-sheet items reported for
// that period. Nil fields mean the input did not support the aggregate.
type TTMPoint struct {
	PeriodEnd         time.Time
	Revenue           *float64
	EBITDA            *float64
	OperatingIncome   *float64
	TotalDebt         *float64
	Cash              *float64
	SharesOutstanding *float64
	EPS               *float64
}

// TTM builds the trailing-twelve-month series from fundamental periods.
// Only quarterly rows participate; annual rows are discarded before any
// summation, so a mixed input can never leak an annual figure into a TTM
// window. A TTM value is nil until four quarterly rows are available, or when
// any of the four quarters lacks the figure.
func TTM(periods []models.FundamentalPeriod) []TTMPoint {
	quarters := make([]models.FundamentalPeriod, 0, len(periods))
	for _, p := range periods {
		if p.PeriodType == models.PeriodQuarter {
			quarters = append(quarters, p)
		}
	}
	sort.Slice(quarters, func(i, j int) bool {
		return quarters[i].PeriodEnd.Before(quarters[j].PeriodEnd)
	})

	points := make([]TTMPoint, len(quarters))
	for i, q := range quarters {
		pt := TTMPoint{
			PeriodEnd:         q.PeriodEnd,
			TotalDebt:         q.TotalDebt,
			Cash:              q.Cash,
			SharesOutstanding: q.SharesOutstanding,
			EPS:               q.EPS,
		}
		if i >= 3 {
			window := quarters[i-3 : i+1]
			pt.Revenue = sumField(window, func(p models.FundamentalPeriod) *float64 { return p.Revenue })
			pt.EBITDA = sumField(window, func(p models.FundamentalPeriod) *float64 { return p.EBITDA })
			pt.OperatingIncome = sumField(window, func(p models.FundamentalPeriod) *float64 { return p.OperatingIncome })
		}
		points[i] = pt
	}
	return points
}

// sumField sums a field over the window, returning nil if any quarter lacks
// it. Null in, null out: a missing quarter never counts as zero.
func sumField(window []models.FundamentalPeriod, get func(models.FundamentalPeriod) *float64) *float64 {
	sum := 0.0
	for _, p := range window {
		v := get(p)
		if v == nil {
			return nil
		}
		sum += *v
	}
	return &sum
}

// AsOf returns the latest TTM point whose period end strictly precedes date,
// or nil when none exists. This is the backward-looking point-in-time join:
// a price date may only see fundamentals already filed before it.
func AsOf(points []TTMPoint, date time.Time) *TTMPoint {
	var latest *TTMPoint
	for i := range points {
		if points[i].PeriodEnd.Before(date) {
			latest = &points[i]
		} else {
			break
		}
	}
	return latest
}

// EnterpriseValue computes market cap and EV from a close and a TTM point.
// Both are nil when shares outstanding is missing or non-positive; debt and
// cash default to zero when unreported, matching the upstream filings.
func EnterpriseValue(close float64, pt *TTMPoint) (marketCap, ev *float64) {
	if pt == nil || pt.SharesOutstanding == nil || *pt.SharesOutstanding <= 0 {
		return nil, nil
	}
	mc := close * *pt.SharesOutstanding
	e := mc + models.Deref(pt.TotalDebt, 0) - models.Deref(pt.Cash, 0)
	return &mc, &e
}

// Multiple divides EV by a TTM denominator. A nil or non-positive denominator
// yields nil, never zero or a negative multiple.
func Multiple(ev *float64, denom *float64) *float64 {
	if ev == nil || denom == nil || *denom <= 0 {
		return nil
	}
	m := *ev / *denom
	return &m
}
