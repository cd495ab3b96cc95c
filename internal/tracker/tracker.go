// Package tracker compares each (user, ticker) pair's freshly computed
// categorical state against the stored prior state and decides which
// transitions occurred. The stored state advances unconditionally after every
// evaluation, which is the only mechanism preventing duplicate alerts.
package tracker

import (
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// TrendCrossMinMonths suppresses trend-break alerts when the prior crossing
// is younger than this, so oscillation around the moving average does not
// spam the user.
const TrendCrossMinMonths = 6

// Observation is the state computed for one ticker on one evaluation date.
type Observation struct {
	Date time.Time

	Regime     models.Regime
	Percentile *float64
	Multiple   *float64
	Metric     models.MetricType

	Trend  models.TrendPosition
	Close  *float64
	EMA200 *float64

	EPSDirection models.EPSDirection
	EPS          *float64
}

// DetectTransitions returns the alert-eligible state changes between the
// stored prior state and the observation. Bootstrap edges (prior unknown) and
// degradations to unknown record silently; equal states never transition,
// however the underlying numbers moved.
func DetectTransitions(prior models.UserEntityState, obs Observation) []models.Transition {
	var out []models.Transition

	if eligible(string(prior.LastValuationRegime), string(obs.Regime), string(models.RegimeUnknown)) {
		out = append(out, models.Transition{
			UserID:        prior.UserID,
			Ticker:        prior.Ticker,
			Dimension:     models.DimValuationRegime,
			Old:           string(prior.LastValuationRegime),
			New:           string(obs.Regime),
			Date:          obs.Date,
			Metric:        obs.Metric,
			OldMultiple:   prior.LastValuationMultiple,
			NewMultiple:   obs.Multiple,
			OldPercentile: prior.LastValuationPercentile,
			NewPercentile: obs.Percentile,
			Close:         obs.Close,
		})
	}

	if eligible(string(prior.LastTrendPosition), string(obs.Trend), string(models.TrendUnknownMA)) &&
		trendCrossOldEnough(prior.LastTrendCrossDate, obs.Date) {
		out = append(out, models.Transition{
			UserID:    prior.UserID,
			Ticker:    prior.Ticker,
			Dimension: models.DimTrendPosition,
			Old:       string(prior.LastTrendPosition),
			New:       string(obs.Trend),
			Date:      obs.Date,
			Close:     obs.Close,
			EMA200:    obs.EMA200,
		})
	}

	if eligible(string(prior.LastEPSDirection), string(obs.EPSDirection), string(models.EPSUnknown)) {
		out = append(out, models.Transition{
			UserID:    prior.UserID,
			Ticker:    prior.Ticker,
			Dimension: models.DimEPSDirection,
			Old:       string(prior.LastEPSDirection),
			New:       string(obs.EPSDirection),
			Date:      obs.Date,
			OldEPS:    prior.LastEPSValue,
			NewEPS:    obs.EPS,
			Close:     obs.Close,
		})
	}

	return out
}

// eligible reports whether old -> next is an alertable edge: the state must
// actually change, and neither end may be the unknown sentinel.
func eligible(old, next, unknown string) bool {
	return old != next && old != unknown && next != unknown
}

func trendCrossOldEnough(lastCross *time.Time, now time.Time) bool {
	if lastCross == nil {
		return true
	}
	return utils.MonthsSince(*lastCross, now) >= TrendCrossMinMonths
}

// Advance produces the post-evaluation state. Every tracked field is
// overwritten with the observation, whether or not a transition fired, and
// LastEvaluatedAt is refreshed. The trend cross date moves only when the
// trend position genuinely changed between two known positions.
func Advance(prior models.UserEntityState, obs Observation, evaluatedAt time.Time) models.UserEntityState {
	next := prior
	next.LastValuationRegime = obs.Regime
	next.LastValuationPercentile = obs.Percentile
	next.LastValuationMultiple = obs.Multiple
	next.LastTrendPosition = obs.Trend
	next.LastEPSDirection = obs.EPSDirection
	next.LastEPSValue = obs.EPS
	next.LastClose = obs.Close
	next.LastEvaluatedAt = evaluatedAt

	if obs.Trend != prior.LastTrendPosition &&
		obs.Trend != models.TrendUnknownMA && prior.LastTrendPosition != models.TrendUnknownMA {
		d := obs.Date
		next.LastTrendCrossDate = &d
	}
	return next
}

// TriggerCooldownDays is the minimum gap between two trigger alerts for the
// same template on the same (user, ticker) pair.
const TriggerCooldownDays = 7

// ShouldAlertTrigger reports whether a trigger alert for templateID may be
// sent, given when one was last sent. A pair with no alert history is always
// eligible.
func ShouldAlertTrigger(st models.UserEntityState, templateID string, now time.Time) bool {
	last, ok := st.LastAlerted[templateID]
	if !ok {
		return true
	}
	return now.Sub(last) >= TriggerCooldownDays*24*time.Hour
}

// RecordTriggerAlert returns st with templateID marked as alerted at now.
// The stored map is copied, never mutated in place.
func RecordTriggerAlert(st models.UserEntityState, templateID string, now time.Time) models.UserEntityState {
	alerted := make(map[string]time.Time, len(st.LastAlerted)+1)
	for id, at := range st.LastAlerted {
		alerted[id] = at
	}
	alerted[templateID] = now
	st.LastAlerted = alerted
	return st
}
