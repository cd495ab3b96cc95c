package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// memStore is an in-memory TimeSeriesStore + MetaStore for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	prices    map[string][]models.PriceBar
	funds     map[string][]models.FundamentalPeriod
	features  map[string]map[string]models.FeatureRow
	indicator map[string]models.IndicatorState
	stats     map[string]models.ValuationStat
	users     map[string]models.UserEntityState
	watch     map[string][]string
	alerts    map[string][]models.Alert
	runs      []models.RunSummary

	pricesErr map[string]error
	fundsErr  map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		prices:    make(map[string][]models.PriceBar),
		funds:     make(map[string][]models.FundamentalPeriod),
		features:  make(map[string]map[string]models.FeatureRow),
		indicator: make(map[string]models.IndicatorState),
		stats:     make(map[string]models.ValuationStat),
		users:     make(map[string]models.UserEntityState),
		watch:     make(map[string][]string),
		alerts:    make(map[string][]models.Alert),
		pricesErr: make(map[string]error),
		fundsErr:  make(map[string]error),
	}
}

func (m *memStore) ReadPrices(_ context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pricesErr[ticker]; err != nil {
		return nil, err
	}
	var out []models.PriceBar
	for _, b := range m.prices[ticker] {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) WritePrices(_ context.Context, ticker string, bars []models.PriceBar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = append(m.prices[ticker], bars...)
	return len(bars), nil
}

func (m *memStore) ReadFundamentals(_ context.Context, ticker string) ([]models.FundamentalPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fundsErr[ticker]; err != nil {
		return nil, err
	}
	return m.funds[ticker], nil
}

func (m *memStore) WriteFundamentals(_ context.Context, ticker string, periods []models.FundamentalPeriod) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funds[ticker] = append(m.funds[ticker], periods...)
	return len(periods), nil
}

func (m *memStore) ReadFeatures(_ context.Context, ticker string, start, end time.Time) ([]models.FeatureRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FeatureRow
	for _, row := range m.features[ticker] {
		if !row.Date.Before(start) && !row.Date.After(end) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) WriteFeatures(_ context.Context, ticker string, rows []models.FeatureRow) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDay := m.features[ticker]
	if byDay == nil {
		byDay = make(map[string]models.FeatureRow)
		m.features[ticker] = byDay
	}
	for _, row := range rows {
		byDay[utils.FormatDay(row.Date)] = row
	}
	return len(rows), nil
}

func (m *memStore) IndicatorState(_ context.Context, ticker string) (*models.IndicatorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.indicator[ticker]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) UpsertIndicatorState(_ context.Context, st models.IndicatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indicator[st.Ticker] = st
	return nil
}

func statKey(ticker string, metric models.MetricType, windowDays int) string {
	return fmt.Sprintf("%s/%s/%d", ticker, metric, windowDays)
}

func (m *memStore) ValuationStats(_ context.Context, ticker string, metric models.MetricType, windowDays int) (*models.ValuationStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[statKey(ticker, metric, windowDays)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) UpsertValuationStats(_ context.Context, stat models.ValuationStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[statKey(stat.Ticker, stat.Metric, stat.WindowDays)] = stat
	return nil
}

func (m *memStore) UserEntityState(_ context.Context, userID, ticker string) (*models.UserEntityState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.users[userID+"|"+ticker]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) UpsertUserEntityState(_ context.Context, st models.UserEntityState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[st.UserID+"|"+st.Ticker] = st
	return nil
}

func (m *memStore) Watchlists(_ context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.watch))
	for u, ts := range m.watch {
		out[u] = append([]string(nil), ts...)
	}
	return out, nil
}

func (m *memStore) Watch(_ context.Context, userID, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watch[userID] = append(m.watch[userID], ticker)
	return nil
}

func (m *memStore) Unwatch(_ context.Context, userID, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.watch[userID][:0]
	for _, t := range m.watch[userID] {
		if t != ticker {
			kept = append(kept, t)
		}
	}
	m.watch[userID] = kept
	return nil
}

func (m *memStore) SaveAlert(_ context.Context, userID string, a models.Alert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[userID] = append(m.alerts[userID], a)
	return a.ID, nil
}

func (m *memStore) RecentAlerts(_ context.Context, userID string, limit int) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.alerts[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]models.Alert(nil), all...), nil
}

func (m *memStore) SaveRunSummary(_ context.Context, s models.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, s)
	return nil
}

func (m *memStore) LatestRun(_ context.Context, kind string) (*models.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Kind == kind {
			s := m.runs[i]
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

// ════════════════════════════════════════════════════════════════════════
// Fixtures
// ════════════════════════════════════════════════════════════════════════

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekdayBars generates one bar per weekday over [start, end], with the close
// taken from closeAt(i) for the i-th bar.
func weekdayBars(ticker string, start, end time.Time, closeAt func(i int) float64) []models.PriceBar {
	var bars []models.PriceBar
	i := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if utils.IsWeekend(d) {
			continue
		}
		bars = append(bars, models.PriceBar{Ticker: ticker, Date: d, Close: models.Ptr(closeAt(i))})
		i++
	}
	return bars
}

// quarterlyFundamentals generates n quarterly periods ending 2017-12-31,
// 2018-03-31, ... with constant figures: revenue 100 and the given EBITDA per
// quarter, 10 shares, no debt or cash, EPS 1.
func quarterlyFundamentals(ticker string, n int, ebitdaPerQuarter float64) []models.FundamentalPeriod {
	periods := make([]models.FundamentalPeriod, 0, n)
	for i := 0; i < n; i++ {
		end := time.Date(2018, time.Month(3*i+1), 0, 0, 0, 0, 0, time.UTC)
		periods = append(periods, models.FundamentalPeriod{
			Ticker:            ticker,
			PeriodEnd:         end,
			PeriodType:        models.PeriodQuarter,
			Revenue:           models.Ptr(100.0),
			EBITDA:            models.Ptr(ebitdaPerQuarter),
			TotalDebt:         models.Ptr(0.0),
			Cash:              models.Ptr(0.0),
			SharesOutstanding: models.Ptr(10.0),
			EPS:               models.Ptr(1.0),
		})
	}
	return periods
}

// seedFlat loads a ticker with eight years of flat 100.00 closes and constant
// fundamentals giving a steady 10x EV/EBITDA.
func seedFlat(m *memStore, ticker string) {
	m.prices[ticker] = weekdayBars(ticker, day(2018, time.March, 1), day(2026, time.February, 27),
		func(int) float64 { return 100 })
	m.funds[ticker] = quarterlyFundamentals(ticker, 34, 25)
}

func newTestPipeline(m *memStore) *Pipeline {
	return New(m, m, 2)
}

// ════════════════════════════════════════════════════════════════════════
// Daily
// ════════════════════════════════════════════════════════════════════════

func TestDaily_regimeTransitionEndToEnd(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	seedFlat(m, "ACME")
	m.watch["u1"] = []string{"ACME"}
	p := newTestPipeline(m)

	// First run bootstraps every dimension from unknown: state is recorded
	// but nothing alerts.
	run1, err := p.Daily(ctx, day(2026, time.February, 27))
	if err != nil {
		t.Fatal(err)
	}
	if run1.AlertsSent != 0 {
		t.Fatalf("bootstrap run sent %d alerts, want 0", run1.AlertsSent)
	}
	if len(run1.Results) != 1 || run1.Results[0].Outcome != models.OutcomeOK {
		t.Fatalf("results = %+v", run1.Results)
	}
	st := m.users["u1|ACME"]
	if st.LastValuationRegime != models.RegimeNormal {
		t.Fatalf("bootstrap regime = %s, want normal", st.LastValuationRegime)
	}
	if st.LastValuationMultiple == nil || *st.LastValuationMultiple != 10 {
		t.Fatalf("bootstrap multiple = %v, want 10", st.LastValuationMultiple)
	}

	// A collapse to 6.00 drops the multiple to 0.6x: cheap. Exactly one
	// alert, the regime transition, carrying before-vs-now numbers.
	m.prices["ACME"] = append(m.prices["ACME"], models.PriceBar{
		Ticker: "ACME", Date: day(2026, time.March, 2), Close: models.Ptr(6.0),
	})
	run2, err := p.Daily(ctx, day(2026, time.March, 2))
	if err != nil {
		t.Fatal(err)
	}
	if run2.AlertsSent != 1 {
		t.Fatalf("transition run sent %d alerts, want 1", run2.AlertsSent)
	}
	alerts := m.alerts["u1"]
	if len(alerts) != 1 {
		t.Fatalf("user has %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.AlertType != models.AlertValuationRegimeChange {
		t.Errorf("alert type = %s", a.AlertType)
	}
	if !strings.Contains(a.BeforeVsNow, "10x → 0.6x") {
		t.Errorf("before vs now missing multiples:\n%s", a.BeforeVsNow)
	}
	if m.users["u1|ACME"].LastValuationRegime != models.RegimeCheap {
		t.Error("state did not advance to cheap")
	}

	// Re-running the same date finds no new prices and sends nothing.
	run3, err := p.Daily(ctx, day(2026, time.March, 2))
	if err != nil {
		t.Fatal(err)
	}
	if run3.AlertsSent != 0 {
		t.Errorf("repeat run sent %d alerts, want 0", run3.AlertsSent)
	}
	if run3.Results[0].Outcome != models.OutcomeSkip {
		t.Errorf("repeat run outcome = %s, want skip", run3.Results[0].Outcome)
	}
	if len(m.alerts["u1"]) != 1 {
		t.Errorf("repeat run duplicated alerts: %d", len(m.alerts["u1"]))
	}
}

func TestDaily_triggerCooldown(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	// A slow uptrend with a cheap multiple keeps the value-plus-momentum
	// template firing every day.
	m.prices["RISE"] = weekdayBars("RISE", day(2018, time.March, 1), day(2026, time.February, 27),
		func(i int) float64 { return 100 + 0.005*float64(i) })
	m.funds["RISE"] = quarterlyFundamentals("RISE", 34, 25)
	m.watch["u1"] = []string{"RISE"}
	p := newTestPipeline(m)

	next := func(d time.Time, close float64) {
		m.mu.Lock()
		m.prices["RISE"] = append(m.prices["RISE"], models.PriceBar{
			Ticker: "RISE", Date: d, Close: models.Ptr(close),
		})
		m.mu.Unlock()
	}

	run1, err := p.Daily(ctx, day(2026, time.February, 27))
	if err != nil {
		t.Fatal(err)
	}
	if run1.AlertsSent != 1 {
		t.Fatalf("first run sent %d alerts, want the one trigger alert", run1.AlertsSent)
	}
	if a := m.alerts["u1"][0]; a.AlertType != models.AlertTemplateTrigger {
		t.Fatalf("alert type = %s", a.AlertType)
	}

	// Three days later the template fires again but is inside the cooldown.
	next(day(2026, time.March, 2), 110.5)
	run2, err := p.Daily(ctx, day(2026, time.March, 2))
	if err != nil {
		t.Fatal(err)
	}
	if run2.AlertsSent != 0 {
		t.Fatalf("cooldown run sent %d alerts, want 0", run2.AlertsSent)
	}

	// Ten days after the original alert the cooldown has lapsed.
	next(day(2026, time.March, 9), 110.6)
	run3, err := p.Daily(ctx, day(2026, time.March, 9))
	if err != nil {
		t.Fatal(err)
	}
	if run3.AlertsSent != 1 {
		t.Fatalf("post-cooldown run sent %d alerts, want 1", run3.AlertsSent)
	}
}

func TestDaily_perTickerFailureIsolation(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	seedFlat(m, "ACME")
	seedFlat(m, "BAD")
	m.fundsErr["BAD"] = errors.New("vendor payload malformed")
	m.watch["u1"] = []string{"ACME", "BAD"}
	p := newTestPipeline(m)

	sum, err := p.Daily(ctx, day(2026, time.February, 27))
	if err != nil {
		t.Fatalf("one bad ticker aborted the batch: %v", err)
	}
	byTicker := make(map[string]models.TickerResult)
	for _, r := range sum.Results {
		byTicker[r.Ticker] = r
	}
	if byTicker["ACME"].Outcome != models.OutcomeOK {
		t.Errorf("ACME = %+v", byTicker["ACME"])
	}
	if byTicker["BAD"].Outcome != models.OutcomeFail {
		t.Errorf("BAD = %+v", byTicker["BAD"])
	}
}

func TestDaily_storeOutageAborts(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	seedFlat(m, "ACME")
	m.pricesErr["ACME"] = fmt.Errorf("read prices: %w", store.ErrStoreUnavailable)
	m.watch["u1"] = []string{"ACME"}
	p := newTestPipeline(m)

	if _, err := p.Daily(ctx, day(2026, time.February, 27)); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want store outage", err)
	}
}

// ════════════════════════════════════════════════════════════════════════
// Weekly and backfill
// ════════════════════════════════════════════════════════════════════════

func TestWeekly_publishesStats(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	seedFlat(m, "ACME")
	m.watch["u1"] = []string{"ACME"}
	p := newTestPipeline(m)

	sum, err := p.Weekly(ctx, day(2026, time.February, 27))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Results[0].Outcome != models.OutcomeOK {
		t.Fatalf("result = %+v", sum.Results[0])
	}
	stat, ok := m.stats[statKey("ACME", models.MetricEVEBITDA, StatsWindowDays)]
	if !ok {
		t.Fatal("no stats row written")
	}
	if stat.Count != StatsWindowDays {
		t.Errorf("count = %d, want %d", stat.Count, StatsWindowDays)
	}
	if stat.P10 != 10 || stat.P50 != 10 || stat.P90 != 10 {
		t.Errorf("percentiles = %v %v %v, want all 10", stat.P10, stat.P50, stat.P90)
	}
	if stat.OutliersRemoved != 0 {
		t.Errorf("outliers removed = %d", stat.OutliersRemoved)
	}
	if !stat.AsOfDate.Equal(day(2026, time.February, 27)) {
		t.Errorf("as-of = %v", stat.AsOfDate)
	}
}

func TestWeekly_insufficientHistorySkips(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	m.prices["NEWB"] = weekdayBars("NEWB", day(2026, time.January, 2), day(2026, time.February, 27),
		func(int) float64 { return 50 })
	m.watch["u1"] = []string{"NEWB"}
	p := newTestPipeline(m)

	sum, err := p.Weekly(ctx, day(2026, time.February, 27))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Results[0].Outcome != models.OutcomeSkip {
		t.Fatalf("result = %+v", sum.Results[0])
	}
	if len(m.stats) != 0 {
		t.Error("stats written despite insufficient history")
	}
}

func TestBackfill_rebuildsFeaturesAndState(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	seedFlat(m, "ACME")
	m.watch["u1"] = []string{"ACME"}
	p := newTestPipeline(m)
	p.now = func() time.Time { return day(2026, time.February, 27) }

	sum, err := p.Backfill(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Kind != "backfill" || sum.Results[0].Outcome != models.OutcomeOK {
		t.Fatalf("summary = %+v", sum)
	}
	if got, want := len(m.features["ACME"]), len(m.prices["ACME"]); got != want {
		t.Errorf("feature rows = %d, want %d", got, want)
	}
	st, ok := m.indicator["ACME"]
	if !ok {
		t.Fatal("no indicator state written")
	}
	if !st.LastPriceDate.Equal(day(2026, time.February, 27)) {
		t.Errorf("last price date = %v", st.LastPriceDate)
	}
	if st.EMA200 == nil {
		t.Error("EMA200 not seeded by backfill")
	}

	// A daily run straight after the backfill finds nothing new to compute.
	run, err := p.Daily(ctx, day(2026, time.February, 27))
	if err != nil {
		t.Fatal(err)
	}
	if run.Results[0].Outcome != models.OutcomeSkip {
		t.Errorf("post-backfill daily = %+v", run.Results[0])
	}
}

func TestMonthlySamples(t *testing.T) {
	bars := weekdayBars("ACME", day(2026, time.January, 2), day(2026, time.March, 10),
		func(i int) float64 { return 100 + float64(i) })
	samples := monthlySamples(bars, nil)
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}
	// Each sample sits on the month's last trading day.
	if !samples[0].Date.Equal(day(2026, time.January, 30)) {
		t.Errorf("january sample on %v", samples[0].Date)
	}
	if !samples[1].Date.Equal(day(2026, time.February, 27)) {
		t.Errorf("february sample on %v", samples[1].Date)
	}
	if !samples[2].Date.Equal(day(2026, time.March, 10)) {
		t.Errorf("march sample on %v", samples[2].Date)
	}
	// No fundamentals: every multiple is unavailable.
	for _, s := range samples {
		if s.EVEBITDA != nil || s.EVRevenue != nil {
			t.Errorf("sample %v has a multiple without fundamentals", s.Date)
		}
	}
}
