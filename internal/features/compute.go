// Package features turns raw price bars and fundamentals into the per-date
// feature rows the template evaluator consumes. Computation is incremental:
// a durable per-ticker indicator state lets a daily run process only the new
// bars, and replaying already-seen bars is a no-op.
package features

import (
	"sort"

	"github.com/seenimoa/stockpulse/internal/analysis/technical"
	"github.com/seenimoa/stockpulse/internal/analysis/valuation"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// Input bundles everything one ticker's computation needs. State is nil on
// the very first run; Metric is the ticker's currently selected valuation
// metric, or unknown to let TTM availability decide.
type Input struct {
	Ticker       string
	Bars         []models.PriceBar
	Fundamentals []models.FundamentalPeriod
	State        *models.IndicatorState
	Metric       models.MetricType
}

// Compute produces feature rows for every new, usable bar and the advanced
// indicator state. Bars without a positive close are dropped, and bars dated
// on or before the state's last price date are skipped, so feeding the same
// batch twice yields no rows the second time. The same code path serves both
// the daily increment and a full-history backfill (nil state, all bars).
func Compute(in Input) ([]models.FeatureRow, models.IndicatorState, error) {
	state := models.IndicatorState{Ticker: in.Ticker}
	if in.State != nil {
		state = *in.State
	}

	bars := append([]models.PriceBar(nil), in.Bars...)
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	ttm := valuation.TTM(in.Fundamentals)

	var rows []models.FeatureRow
	for _, bar := range bars {
		if !bar.HasClose() {
			continue
		}
		if !bar.Date.After(state.LastPriceDate) {
			continue
		}
		close := *bar.Close

		row := models.FeatureRow{
			Date:       bar.Date,
			Ticker:     in.Ticker,
			Close:      close,
			Volume:     bar.Volume,
			PrevClose:  state.LastClose,
			PrevEMA200: state.EMA200,
			PrevEMA50:  state.EMA50,
		}

		state.PrevClose = state.LastClose
		state.PrevEMA200 = state.EMA200
		state.PrevEMA50 = state.EMA50
		state.EMA200, state.EMA50 = advanceEMAs(&state, close)
		state.LastClose = &close
		state.LastPriceDate = bar.Date

		row.EMA200 = state.EMA200
		row.EMA50 = state.EMA50

		pt := valuation.AsOf(ttm, bar.Date)
		row.MarketCap, row.EnterpriseValue = valuation.EnterpriseValue(close, pt)
		row.MetricType, row.DenomTTM = pickDenominator(in.Metric, pt)
		row.Multiple = valuation.Multiple(row.EnterpriseValue, row.DenomTTM)

		rows = append(rows, row)
	}
	return rows, state, nil
}

// advanceEMAs moves both EMAs forward by one close. Until a window's worth of
// closes has accumulated the EMA stays nil; the first value is the simple
// average of that window, after which the standard recurrence applies.
func advanceEMAs(state *models.IndicatorState, close float64) (ema200, ema50 *float64) {
	ema200, ema50 = state.EMA200, state.EMA50

	if ema200 == nil || ema50 == nil {
		state.SeedCloses = append(state.SeedCloses, close)
		if ema50 == nil {
			ema50 = technical.Seed(state.SeedCloses, technical.PeriodShort)
		}
		if ema200 == nil {
			ema200 = technical.Seed(state.SeedCloses, technical.PeriodLong)
		}
		if ema50 != nil && ema200 != nil {
			state.SeedCloses = nil
		}
	}

	if state.EMA50 != nil {
		v := technical.EMAStep(*state.EMA50, close, technical.PeriodShort)
		ema50 = &v
	}
	if state.EMA200 != nil {
		v := technical.EMAStep(*state.EMA200, close, technical.PeriodLong)
		ema200 = &v
	}
	return ema200, ema50
}

// pickDenominator resolves which TTM figure backs the row's multiple. An
// unknown metric falls back to EBITDA when it is present and positive,
// otherwise revenue; the hysteresis-aware choice lives with the regime
// analyzer and is passed in by the pipeline once established.
func pickDenominator(metric models.MetricType, pt *valuation.TTMPoint) (models.MetricType, *float64) {
	if pt == nil {
		if metric == models.MetricUnknown {
			return models.MetricUnknown, nil
		}
		return metric, nil
	}
	switch metric {
	case models.MetricEVEBITDA:
		return metric, pt.EBITDA
	case models.MetricEVRevenue:
		return metric, pt.Revenue
	default:
		if pt.EBITDA != nil && *pt.EBITDA > 0 {
			return models.MetricEVEBITDA, pt.EBITDA
		}
		return models.MetricEVRevenue, pt.Revenue
	}
}
