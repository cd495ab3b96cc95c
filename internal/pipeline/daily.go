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

	"github.com/seenimoa/stockpulse/internal/alertgen"
	"github.com/seenimoa/stockpulse/internal/analysis/valuation"
	"github.com/seenimoa/stockpulse/internal/features"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/internal/template"
	"github.com/seenimoa/stockpulse/internal/tracker"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Daily runs the full evaluation batch for runDate over every watched
// ticker: compute new feature rows, classify the valuation regime, evaluate
// the template catalog, detect per-user state transitions, and persist any
// resulting alerts. Re-running the same date is a no-op beyond the run
// summary.
//
// Only a store outage aborts the batch; per-ticker errors are recorded in
// the summary and the batch continues.
func (p *Pipeline) Daily(ctx context.Context, runDate time.Time) (*models.RunSummary, error) {
	started := p.now()
	runDate = utils.Day(runDate)

	tickers, users, err := p.watched(ctx)
	if err != nil {
		return nil, fmt.Errorf("daily %s: %w", utils.FormatDay(runDate), err)
	}
	log.Printf("pipeline: daily %s over %d tickers", utils.FormatDay(runDate), len(tickers))

	var mu sync.Mutex
	var results []models.TickerResult
	alerts := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, ticker := range tickers {
		g.Go(func() error {
			res, sent, err := p.runTicker(gctx, runDate, ticker, users[ticker])
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			alerts += sent
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("daily %s: %w", utils.FormatDay(runDate), err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })

	summary := &models.RunSummary{
		RunID:      uuid.NewString(),
		Kind:       "daily",
		RunDate:    runDate,
		StartedAt:  started,
		FinishedAt: p.now(),
		Results:    results,
		AlertsSent: alerts,
	}
	if err := p.meta.SaveRunSummary(ctx, *summary); err != nil {
		return nil, fmt.Errorf("daily %s: save summary: %w", utils.FormatDay(runDate), err)
	}
	ok, skip, fail := summary.Counts()
	log.Printf("pipeline: daily %s done: %d ok, %d skipped, %d failed, %d alerts",
		utils.FormatDay(runDate), ok, skip, fail, alerts)
	return summary, nil
}

// runTicker processes one ticker end to end. Store outages propagate; any
// other error becomes a failed TickerResult.
func (p *Pipeline) runTicker(ctx context.Context, runDate time.Time, ticker string, userIDs []string) (models.TickerResult, int, error) {
	fail := func(stage string, err error) (models.TickerResult, int, error) {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return models.TickerResult{}, 0, err
		}
		log.Printf("pipeline: %s %s: %v", ticker, stage, err)
		return models.TickerResult{Ticker: ticker, Stage: stage, Outcome: models.OutcomeFail, Reason: err.Error()}, 0, nil
	}
	skip := func(stage, reason string) (models.TickerResult, int, error) {
		return models.TickerResult{Ticker: ticker, Stage: stage, Outcome: models.OutcomeSkip, Reason: reason}, 0, nil
	}

	state, err := p.meta.IndicatorState(ctx, ticker)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail("features", err)
	}

	bars, err := p.ts.ReadPrices(ctx, ticker, historyStart(runDate), runDate)
	if err != nil {
		return fail("features", err)
	}
	if len(bars) == 0 {
		return skip("features", "no price history")
	}
	fundamentals, err := p.ts.ReadFundamentals(ctx, ticker)
	if err != nil {
		return fail("features", err)
	}
	ttm := valuation.TTM(fundamentals)

	regime := valuation.Analyze(monthlySamples(bars, ttm), p.priorMetric(ctx, ticker, runDate))
	if !regime.Success {
		log.Printf("pipeline: %s regime unknown: %s", ticker, regime.Reason)
	}

	rows, nextState, err := features.Compute(features.Input{
		Ticker:       ticker,
		Bars:         bars,
		Fundamentals: fundamentals,
		State:        state,
		Metric:       regime.Metric,
	})
	if err != nil {
		return fail("features", err)
	}
	if len(rows) == 0 {
		return skip("features", "no new prices")
	}
	if _, err := p.ts.WriteFeatures(ctx, ticker, rows); err != nil {
		return fail("features", err)
	}
	if err := p.meta.UpsertIndicatorState(ctx, nextState); err != nil {
		return fail("features", err)
	}

	latest := rows[len(rows)-1]
	stats, err := p.statsFor(ctx, ticker, regime.Metric)
	if err != nil {
		return fail("templates", err)
	}
	triggers, verdicts := template.EvaluateAll(latest, stats)
	skipped := 0
	for _, v := range verdicts {
		if v == template.Skipped {
			skipped++
		}
	}
	if skipped > 0 {
		log.Printf("pipeline: %s skipped %d templates on missing inputs", ticker, skipped)
	}

	epsDir, eps := epsState(ttm, latest.Date)
	obs := tracker.Observation{
		Date:         latest.Date,
		Regime:       regime.Regime,
		Percentile:   regime.Percentile,
		Multiple:     regime.Multiple,
		Metric:       regime.Metric,
		Trend:        latest.TrendPosition(),
		Close:        models.Ptr(latest.Close),
		EMA200:       latest.EMA200,
		EPSDirection: epsDir,
		EPS:          eps,
	}

	sent := 0
	for _, userID := range userIDs {
		n, err := p.evaluateUser(ctx, userID, ticker, obs, triggers)
		if err != nil {
			return fail("alerts", err)
		}
		sent += n
	}

	reason := fmt.Sprintf("%d rows, %d triggers, %d alerts", len(rows), len(triggers), sent)
	return models.TickerResult{Ticker: ticker, Stage: "alerts", Outcome: models.OutcomeOK, Reason: reason}, sent, nil
}

// evaluateUser detects transitions against the user's stored state, sends
// transition and trigger alerts, and advances the state unconditionally.
func (p *Pipeline) evaluateUser(ctx context.Context, userID, ticker string, obs tracker.Observation, triggers []models.Trigger) (int, error) {
	st, err := p.meta.UserEntityState(ctx, userID, ticker)
	if errors.Is(err, store.ErrNotFound) {
		fresh := models.NewUserEntityState(userID, ticker)
		st = &fresh
	} else if err != nil {
		return 0, err
	}
	prior := *st

	sent := 0
	for _, tr := range tracker.DetectTransitions(prior, obs) {
		a, err := alertgen.FromTransition(tr, p.now())
		if err != nil {
			log.Printf("pipeline: %s/%s %s alert dropped: %v", userID, ticker, tr.Dimension, err)
			continue
		}
		if _, err := p.meta.SaveAlert(ctx, userID, *a); err != nil {
			return 0, err
		}
		sent++
	}

	next := tracker.Advance(prior, obs, p.now())
	for _, trg := range triggers {
		if !tracker.ShouldAlertTrigger(next, trg.TemplateID, obs.Date) {
			continue
		}
		a, err := alertgen.FromTrigger(trg, p.now())
		if err != nil {
			log.Printf("pipeline: %s/%s %s alert dropped: %v", userID, ticker, trg.TemplateID, err)
			continue
		}
		if _, err := p.meta.SaveAlert(ctx, userID, *a); err != nil {
			return 0, err
		}
		next = tracker.RecordTriggerAlert(next, trg.TemplateID, obs.Date)
		sent++
	}

	if err := p.meta.UpsertUserEntityState(ctx, next); err != nil {
		return 0, err
	}
	return sent, nil
}
