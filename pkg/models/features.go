package models

import "time"

// MetricType identifies which valuation multiple applies to a ticker.
type MetricType string

const (
	MetricEVEBITDA  MetricType = "ev_ebitda"
	MetricEVRevenue MetricType = "ev_revenue"
	MetricUnknown   MetricType = "unknown"
)

// Label returns the human-readable multiple name for alert copy.
func (m MetricType) Label() string {
	switch m {
	case MetricEVEBITDA:
		return "EV/EBITDA"
	case MetricEVRevenue:
		return "EV/Revenue"
	default:
		return "Valuation"
	}
}

// Regime is a ticker's valuation classification relative to its own history.
type Regime string

const (
	RegimeCheap     Regime = "cheap"
	RegimeNormal    Regime = "normal"
	RegimeExpensive Regime = "expensive"
	RegimeUnknown   Regime = "unknown"
)

// TrendPosition locates the close relative to the 200-day EMA.
type TrendPosition string

const (
	TrendAboveMA   TrendPosition = "above_ma"
	TrendBelowMA   TrendPosition = "below_ma"
	TrendUnknownMA TrendPosition = "unknown"
)

// EPSDirection classifies the latest trailing EPS trajectory.
type EPSDirection string

const (
	EPSPositive EPSDirection = "positive"
	EPSNegative EPSDirection = "negative"
	EPSNeutral  EPSDirection = "neutral"
	EPSUnknown  EPSDirection = "unknown"
)

// IndicatorState is the per-ticker durable record of incremental indicator
// progress. One row per ticker, owned by the feature computer.
//
// Invariants: LastPriceDate is monotonically non-decreasing; EMA fields stay
// nil until enough history exists for a cold-start seed.
type IndicatorState struct {
	Ticker        string    `json:"ticker"`
	LastPriceDate time.Time `json:"last_price_date"`
	LastClose     *float64  `json:"last_close,omitempty"`
	PrevClose     *float64  `json:"prev_close,omitempty"`
	PrevEMA200    *float64  `json:"prev_ema_200,omitempty"`
	PrevEMA50     *float64  `json:"prev_ema_50,omitempty"`
	EMA200        *float64  `json:"ema_200,omitempty"`
	EMA50         *float64  `json:"ema_50,omitempty"`

	// SeedCloses accumulates closes until the 200-bar simple-average seed is
	// available. Cleared once both EMAs are seeded.
	SeedCloses []float64 `json:"seed_closes,omitempty"`
}

// FeatureRow is the per-ticker, per-date cross-sectional snapshot consumed by
// the template evaluator. Append-only, upserted by (ticker, date).
type FeatureRow struct {
	Date            time.Time  `json:"date"`
	Ticker          string     `json:"ticker"`
	Close           float64    `json:"close"`
	Volume          *float64   `json:"volume,omitempty"`
	EMA200          *float64   `json:"ema_200,omitempty"`
	EMA50           *float64   `json:"ema_50,omitempty"`
	PrevClose       *float64   `json:"prev_close,omitempty"`
	PrevEMA200      *float64   `json:"prev_ema_200,omitempty"`
	PrevEMA50       *float64   `json:"prev_ema_50,omitempty"`
	MarketCap       *float64   `json:"market_cap,omitempty"`
	EnterpriseValue *float64   `json:"enterprise_value,omitempty"`
	Multiple        *float64   `json:"multiple,omitempty"` // EV over the selected TTM denominator
	MetricType      MetricType `json:"metric_type"`
	DenomTTM        *float64   `json:"denom_ttm,omitempty"` // the TTM denominator behind Multiple
}

// TrendPosition derives the close-vs-EMA200 position for this row.
func (f FeatureRow) TrendPosition() TrendPosition {
	if f.EMA200 == nil {
		return TrendUnknownMA
	}
	if f.Close > *f.EMA200 {
		return TrendAboveMA
	}
	return TrendBelowMA
}

// ValuationStat holds the weekly-recomputed historical percentile levels for
// one (ticker, metric, window) combination. Replaced wholesale on each weekly
// run; daily runs only read it.
type ValuationStat struct {
	Ticker          string     `json:"ticker"`
	Metric          MetricType `json:"metric"`
	WindowDays      int        `json:"window_days"`
	AsOfDate        time.Time  `json:"asof_date"`
	Count           int        `json:"count"`
	P10             float64    `json:"p10"`
	P20             float64    `json:"p20"`
	P50             float64    `json:"p50"`
	P80             float64    `json:"p80"`
	P90             float64    `json:"p90"`
	OutliersRemoved int        `json:"outliers_removed"`
}
