// Package models defines the core data structures used throughout StockPulse.
package models

import "time"

// PeriodType classifies a fundamental reporting period.
type PeriodType string

const (
	PeriodQuarter PeriodType = "quarter"
	PeriodAnnual  PeriodType = "annual"
)

// PriceBar represents one daily OHLCV bar for a ticker.
// Bars are immutable once ingested and ordered by date.
type PriceBar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"` // UTC midnight
	Open   *float64  `json:"open,omitempty"`
	High   *float64  `json:"high,omitempty"`
	Low    *float64  `json:"low,omitempty"`
	Close  *float64  `json:"close,omitempty"` // nil when the vendor delivered no usable close
	Volume *float64  `json:"volume,omitempty"`
}

// HasClose reports whether the bar carries a usable (positive) close.
func (b PriceBar) HasClose() bool {
	return b.Close != nil && *b.Close > 0
}

// FundamentalPeriod represents one reported fundamental period for a ticker.
// TTM aggregation draws exclusively from quarterly rows; annual rows are
// carried for reference and must never be summed into a TTM window.
type FundamentalPeriod struct {
	Ticker            string     `json:"ticker"`
	PeriodEnd         time.Time  `json:"period_end"`
	PeriodType        PeriodType `json:"period_type"`
	Revenue           *float64   `json:"revenue,omitempty"`
	EBITDA            *float64   `json:"ebitda,omitempty"`
	OperatingIncome   *float64   `json:"operating_income,omitempty"`
	TotalDebt         *float64   `json:"total_debt,omitempty"`
	Cash              *float64   `json:"cash,omitempty"`
	SharesOutstanding *float64   `json:"shares_outstanding,omitempty"`
	EPS               *float64   `json:"eps,omitempty"`
}

// Ptr returns a pointer to v. Convenience for building nullable fields.
func Ptr(v float64) *float64 { return &v }

// Deref returns the value behind p, or fallback when p is nil.
func Deref(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
