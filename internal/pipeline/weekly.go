package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpulse/internal/analysis/valuation"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Weekly recomputes the valuation percentile levels for every watched
// ticker over the trailing StatsWindowDays trading days and replaces the
// stored row wholesale. Daily runs only read these levels.
func (p *Pipeline) Weekly(ctx context.Context, runDate time.Time) (*models.RunSummary, error) {
	started := p.now()
	runDate = utils.Day(runDate)

	tickers, _, err := p.watched(ctx)
	if err != nil {
		return nil, fmt.Errorf("weekly %s: %w", utils.FormatDay(runDate), err)
	}
	log.Printf("pipeline: weekly %s over %d tickers", utils.FormatDay(runDate), len(tickers))

	var mu sync.Mutex
	var results []models.TickerResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, ticker := range tickers {
		g.Go(func() error {
			res, err := p.refreshStats(gctx, runDate, ticker)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("weekly %s: %w", utils.FormatDay(runDate), err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })

	summary := &models.RunSummary{
		RunID:      uuid.NewString(),
		Kind:       "weekly",
		RunDate:    runDate,
		StartedAt:  started,
		FinishedAt: p.now(),
		Results:    results,
	}
	if err := p.meta.SaveRunSummary(ctx, *summary); err != nil {
		return nil, fmt.Errorf("weekly %s: save summary: %w", utils.FormatDay(runDate), err)
	}
	ok, skip, fail := summary.Counts()
	log.Printf("pipeline: weekly %s done: %d ok, %d skipped, %d failed",
		utils.FormatDay(runDate), ok, skip, fail)
	return summary, nil
}

func (p *Pipeline) refreshStats(ctx context.Context, runDate time.Time, ticker string) (models.TickerResult, error) {
	fail := func(err error) (models.TickerResult, error) {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return models.TickerResult{}, err
		}
		log.Printf("pipeline: %s stats: %v", ticker, err)
		return models.TickerResult{Ticker: ticker, Stage: "stats", Outcome: models.OutcomeFail, Reason: err.Error()}, nil
	}
	skip := func(reason string) (models.TickerResult, error) {
		return models.TickerResult{Ticker: ticker, Stage: "stats", Outcome: models.OutcomeSkip, Reason: reason}, nil
	}

	bars, err := p.ts.ReadPrices(ctx, ticker, historyStart(runDate), runDate)
	if err != nil {
		return fail(err)
	}
	if len(bars) == 0 {
		return skip("no price history")
	}
	fundamentals, err := p.ts.ReadFundamentals(ctx, ticker)
	if err != nil {
		return fail(err)
	}
	ttm := valuation.TTM(fundamentals)

	metric := valuation.SelectMetric(monthlySamples(bars, ttm), p.priorMetric(ctx, ticker, runDate))
	multiples := dailyMultiples(bars, ttm, metric)
	if len(multiples) > StatsWindowDays {
		multiples = multiples[len(multiples)-StatsWindowDays:]
	}
	cleaned, removed := valuation.Clean(multiples)
	if len(cleaned) < StatsMinPoints {
		return skip(fmt.Sprintf("insufficient history: %d points after cleaning", len(cleaned)))
	}

	stat := models.ValuationStat{
		Ticker:          ticker,
		Metric:          metric,
		WindowDays:      StatsWindowDays,
		AsOfDate:        runDate,
		Count:           len(cleaned),
		P10:             valuation.Percentile(cleaned, 10),
		P20:             valuation.Percentile(cleaned, 20),
		P50:             valuation.Percentile(cleaned, 50),
		P80:             valuation.Percentile(cleaned, 80),
		P90:             valuation.Percentile(cleaned, 90),
		OutliersRemoved: removed,
	}
	if err := p.meta.UpsertValuationStats(ctx, stat); err != nil {
		return fail(err)
	}
	p.cache.Invalidate(statsCacheKey(ticker, metric))

	reason := fmt.Sprintf("%s: %d points, %d outliers removed", metric.Label(), len(cleaned), removed)
	return models.TickerResult{Ticker: ticker, Stage: "stats", Outcome: models.OutcomeOK, Reason: reason}, nil
}

// dailyMultiples computes the per-trading-day multiple series under metric.
// Days with no usable close or no computable multiple yield nil entries,
// which the cleaning step removes.
func dailyMultiples(bars []models.PriceBar, ttm []valuation.TTMPoint, metric models.MetricType) []*float64 {
	var out []*float64
	for _, b := range bars {
		if !b.HasClose() {
			continue
		}
		pt := valuation.AsOf(ttm, b.Date)
		if pt == nil {
			out = append(out, nil)
			continue
		}
		_, ev := valuation.EnterpriseValue(*b.Close, pt)
		denom := pt.EBITDA
		if metric == models.MetricEVRevenue {
			denom = pt.Revenue
		}
		out = append(out, valuation.Multiple(ev, denom))
	}
	return out
}
