// Package pipeline orchestrates the batch jobs: the daily evaluation run
// (features, regime, templates, transitions, alerts), the weekly valuation
// statistics refresh, and full-history feature backfills. Tickers are
// processed concurrently with a bounded worker pool; one ticker's failure
// never aborts the batch.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/seenimoa/stockpulse/internal/analysis/valuation"
	"github.com/seenimoa/stockpulse/internal/infra"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

const (
	// DefaultWorkers bounds concurrent ticker processing.
	DefaultWorkers = 8

	// StatsWindowDays is the trading-day lookback for the weekly percentile
	// levels, and StatsMinPoints the minimum cleaned observations required
	// to publish them.
	StatsWindowDays = 1260
	StatsMinPoints  = 100

	// historyYears is the calendar lookback for price reads. It comfortably
	// covers the stats window plus the EMA-200 seed.
	historyYears = 10

	statsCacheTTL = 15 * time.Minute
)

// Pipeline wires the stores and analysis stages into runnable batch jobs.
type Pipeline struct {
	ts      store.TimeSeriesStore
	meta    store.MetaStore
	cache   *infra.Cache
	workers int
	now     func() time.Time
}

// New builds a pipeline over the given stores. workers <= 0 selects
// DefaultWorkers.
func New(ts store.TimeSeriesStore, meta store.MetaStore, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		ts:      ts,
		meta:    meta,
		cache:   infra.NewCache(statsCacheTTL),
		workers: workers,
		now:     time.Now,
	}
}

// watched returns the sorted set of tickers any user watches, plus the
// ticker -> user IDs mapping.
func (p *Pipeline) watched(ctx context.Context) ([]string, map[string][]string, error) {
	lists, err := p.meta.Watchlists(ctx)
	if err != nil {
		return nil, nil, err
	}
	byTicker := make(map[string][]string)
	for userID, tickers := range lists {
		for _, t := range tickers {
			byTicker[t] = append(byTicker[t], userID)
		}
	}
	tickers := make([]string, 0, len(byTicker))
	for t, users := range byTicker {
		sort.Strings(users)
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, byTicker, nil
}

// monthlySamples reduces daily bars to one valuation observation per calendar
// month, taken at the month's last usable close.
func monthlySamples(bars []models.PriceBar, ttm []valuation.TTMPoint) []valuation.Sample {
	var samples []valuation.Sample
	var lastClose float64
	var lastDate time.Time
	haveMonth := false
	curYear, curMonth := 0, time.Month(0)

	flush := func() {
		if !haveMonth {
			return
		}
		pt := valuation.AsOf(ttm, lastDate)
		_, ev := valuation.EnterpriseValue(lastClose, pt)
		s := valuation.Sample{Date: lastDate}
		if pt != nil {
			s.EVEBITDA = valuation.Multiple(ev, pt.EBITDA)
			s.EVRevenue = valuation.Multiple(ev, pt.Revenue)
			s.TTMEBITDA = pt.EBITDA
		}
		samples = append(samples, s)
		haveMonth = false
	}

	for _, b := range bars {
		if !b.HasClose() {
			continue
		}
		y, m, _ := b.Date.Date()
		if haveMonth && (y != curYear || m != curMonth) {
			flush()
		}
		curYear, curMonth = y, m
		lastClose, lastDate = *b.Close, b.Date
		haveMonth = true
	}
	flush()
	return samples
}

// priorMetric recovers the metric in effect from the most recent stored
// feature row, so the hysteresis in metric selection survives restarts.
func (p *Pipeline) priorMetric(ctx context.Context, ticker string, asOf time.Time) models.MetricType {
	rows, err := p.ts.ReadFeatures(ctx, ticker, asOf.AddDate(0, 0, -45), asOf)
	if err != nil || len(rows) == 0 {
		return models.MetricUnknown
	}
	return rows[len(rows)-1].MetricType
}

// statsFor reads the weekly percentile levels through the TTL cache. A ticker
// with no published stats yet yields nil, which the template evaluator treats
// as "skip the percentile rules".
func (p *Pipeline) statsFor(ctx context.Context, ticker string, metric models.MetricType) (*models.ValuationStat, error) {
	key := statsCacheKey(ticker, metric)
	if v, ok := p.cache.Get(key); ok {
		return v.(*models.ValuationStat), nil
	}
	stat, err := p.meta.ValuationStats(ctx, ticker, metric, StatsWindowDays)
	if errors.Is(err, store.ErrNotFound) {
		stat = nil
	} else if err != nil {
		return nil, err
	}
	p.cache.Set(key, stat)
	return stat, nil
}

func statsCacheKey(ticker string, metric models.MetricType) string {
	return "stats/" + ticker + "/" + string(metric)
}

// epsState derives the EPS direction dimension from the trailing EPS known
// as of date.
func epsState(ttm []valuation.TTMPoint, date time.Time) (models.EPSDirection, *float64) {
	pt := valuation.AsOf(ttm, date)
	if pt == nil || pt.EPS == nil {
		return models.EPSUnknown, nil
	}
	switch {
	case *pt.EPS > 0:
		return models.EPSPositive, pt.EPS
	case *pt.EPS < 0:
		return models.EPSNegative, pt.EPS
	default:
		return models.EPSNeutral, pt.EPS
	}
}

func historyStart(runDate time.Time) time.Time {
	return utils.Day(runDate).AddDate(-historyYears, 0, 0)
}
