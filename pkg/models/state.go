package models

import "time"

// Dimension names one categorical state variable tracked per user×ticker.
type Dimension string

const (
	DimValuationRegime Dimension = "valuation_regime"
	DimTrendPosition   Dimension = "trend_position"
	DimEPSDirection    Dimension = "eps_direction"
)

// UserEntityState is the last-recorded categorical state for a (user, ticker)
// pair. It is updated on every evaluation cycle whether or not a transition
// fired; that unconditional advance is the sole mechanism preventing
// duplicate alerts.
type UserEntityState struct {
	UserID                  string        `json:"user_id"`
	Ticker                  string        `json:"ticker"`
	LastValuationRegime     Regime        `json:"last_valuation_regime"`
	LastValuationPercentile *float64      `json:"last_valuation_percentile,omitempty"`
	LastValuationMultiple   *float64      `json:"last_valuation_multiple,omitempty"`
	LastTrendPosition       TrendPosition `json:"last_trend_position"`
	LastTrendCrossDate      *time.Time    `json:"last_trend_cross_date,omitempty"`
	LastEPSDirection        EPSDirection  `json:"last_eps_direction"`
	LastEPSValue            *float64      `json:"last_eps_value,omitempty"`
	LastClose               *float64      `json:"last_close,omitempty"`
	LastEvaluatedAt         time.Time     `json:"last_evaluated_at"`

	// LastAlerted maps template ID to the date a trigger alert for that
	// template was last sent to this user for this ticker.
	LastAlerted map[string]time.Time `json:"last_alerted_templates,omitempty"`
}

// NewUserEntityState returns the bootstrap state for a pair that has never
// been evaluated. All categorical dimensions start unknown, so the first
// evaluation records state without alerting.
func NewUserEntityState(userID, ticker string) UserEntityState {
	return UserEntityState{
		UserID:              userID,
		Ticker:              ticker,
		LastValuationRegime: RegimeUnknown,
		LastTrendPosition:   TrendUnknownMA,
		LastEPSDirection:    EPSUnknown,
	}
}

// Transition records one categorical state change for a (user, ticker) pair,
// with the numeric context needed to render before/after alert copy.
type Transition struct {
	UserID    string    `json:"user_id"`
	Ticker    string    `json:"ticker"`
	Dimension Dimension `json:"dimension"`
	Old       string    `json:"old"`
	New       string    `json:"new"`
	Date      time.Time `json:"date"`

	// Numeric context, populated per dimension.
	Metric         MetricType `json:"metric,omitempty"`
	OldMultiple    *float64   `json:"old_multiple,omitempty"`
	NewMultiple    *float64   `json:"new_multiple,omitempty"`
	OldPercentile  *float64   `json:"old_percentile,omitempty"`
	NewPercentile  *float64   `json:"new_percentile,omitempty"`
	Close          *float64   `json:"close,omitempty"`
	EMA200         *float64   `json:"ema_200,omitempty"`
	OldEPS         *float64   `json:"old_eps,omitempty"`
	NewEPS         *float64   `json:"new_eps,omitempty"`
}
