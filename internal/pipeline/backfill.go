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
	"github.com/seenimoa/stockpulse/internal/features"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Backfill recomputes the feature history for the given tickers from
// scratch, discarding any stored indicator state. An empty ticker list means
// every watched ticker. Incremental daily runs resume from the rebuilt state.
func (p *Pipeline) Backfill(ctx context.Context, tickers []string) (*models.RunSummary, error) {
	started := p.now()
	asOf := utils.Day(p.now())

	if len(tickers) == 0 {
		var err error
		if tickers, _, err = p.watched(ctx); err != nil {
			return nil, fmt.Errorf("backfill: %w", err)
		}
	}
	log.Printf("pipeline: backfill over %d tickers", len(tickers))

	var mu sync.Mutex
	var results []models.TickerResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, ticker := range tickers {
		g.Go(func() error {
			res, err := p.backfillTicker(gctx, asOf, ticker)
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
		return nil, fmt.Errorf("backfill: %w", err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })

	summary := &models.RunSummary{
		RunID:      uuid.NewString(),
		Kind:       "backfill",
		RunDate:    asOf,
		StartedAt:  started,
		FinishedAt: p.now(),
		Results:    results,
	}
	if err := p.meta.SaveRunSummary(ctx, *summary); err != nil {
		return nil, fmt.Errorf("backfill: save summary: %w", err)
	}
	return summary, nil
}

func (p *Pipeline) backfillTicker(ctx context.Context, asOf time.Time, ticker string) (models.TickerResult, error) {
	fail := func(err error) (models.TickerResult, error) {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return models.TickerResult{}, err
		}
		log.Printf("pipeline: %s backfill: %v", ticker, err)
		return models.TickerResult{Ticker: ticker, Stage: "features", Outcome: models.OutcomeFail, Reason: err.Error()}, nil
	}

	bars, err := p.ts.ReadPrices(ctx, ticker, historyStart(asOf), asOf)
	if err != nil {
		return fail(err)
	}
	if len(bars) == 0 {
		return models.TickerResult{Ticker: ticker, Stage: "features", Outcome: models.OutcomeSkip, Reason: "no price history"}, nil
	}
	fundamentals, err := p.ts.ReadFundamentals(ctx, ticker)
	if err != nil {
		return fail(err)
	}
	ttm := valuation.TTM(fundamentals)

	metric := valuation.SelectMetric(monthlySamples(bars, ttm), models.MetricUnknown)
	rows, state, err := features.Compute(features.Input{
		Ticker:       ticker,
		Bars:         bars,
		Fundamentals: fundamentals,
		Metric:       metric,
	})
	if err != nil {
		return fail(err)
	}
	if _, err := p.ts.WriteFeatures(ctx, ticker, rows); err != nil {
		return fail(err)
	}
	if err := p.meta.UpsertIndicatorState(ctx, state); err != nil {
		return fail(err)
	}

	reason := fmt.Sprintf("%d rows rebuilt", len(rows))
	return models.TickerResult{Ticker: ticker, Stage: "features", Outcome: models.OutcomeOK, Reason: reason}, nil
}
