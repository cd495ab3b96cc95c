package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// SQLiteStore implements both TimeSeriesStore and MetaStore on one embedded
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite %s: %w: %w", path, ErrStoreUnavailable, err)
	}

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL,
			volume REAL,
			PRIMARY KEY (ticker, date)
		);`,
		`CREATE TABLE IF NOT EXISTS fundamentals (
			ticker             TEXT NOT NULL,
			period_end         TEXT NOT NULL,
			period_type        TEXT NOT NULL,
			revenue            REAL,
			ebitda             REAL,
			operating_income   REAL,
			total_debt         REAL,
			cash               REAL,
			shares_outstanding REAL,
			eps                REAL,
			PRIMARY KEY (ticker, period_end, period_type)
		);`,
		`CREATE TABLE IF NOT EXISTS feature_rows (
			ticker           TEXT NOT NULL,
			date             TEXT NOT NULL,
			close            REAL NOT NULL,
			volume           REAL,
			ema_200          REAL,
			ema_50           REAL,
			prev_close       REAL,
			prev_ema_200     REAL,
			prev_ema_50      REAL,
			market_cap       REAL,
			enterprise_value REAL,
			multiple         REAL,
			metric_type      TEXT NOT NULL,
			denom_ttm        REAL,
			PRIMARY KEY (ticker, date)
		);`,
		`CREATE TABLE IF NOT EXISTS indicator_state (
			ticker          TEXT PRIMARY KEY,
			last_price_date TEXT NOT NULL,
			last_close      REAL,
			prev_close      REAL,
			prev_ema_200    REAL,
			prev_ema_50     REAL,
			ema_200         REAL,
			ema_50          REAL,
			seed_closes     TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS valuation_stats (
			ticker           TEXT NOT NULL,
			metric           TEXT NOT NULL,
			window_days      INTEGER NOT NULL,
			asof_date        TEXT NOT NULL,
			count            INTEGER NOT NULL,
			p10              REAL NOT NULL,
			p20              REAL NOT NULL,
			p50              REAL NOT NULL,
			p80              REAL NOT NULL,
			p90              REAL NOT NULL,
			outliers_removed INTEGER NOT NULL,
			PRIMARY KEY (ticker, metric, window_days)
		);`,
		`CREATE TABLE IF NOT EXISTS user_entity_state (
			user_id                   TEXT NOT NULL,
			ticker                    TEXT NOT NULL,
			last_valuation_regime     TEXT NOT NULL,
			last_valuation_percentile REAL,
			last_valuation_multiple   REAL,
			last_trend_position       TEXT NOT NULL,
			last_trend_cross_date     TEXT,
			last_eps_direction        TEXT NOT NULL,
			last_eps_value            REAL,
			last_close                REAL,
			last_evaluated_at         TEXT NOT NULL,
			last_alerted              TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (user_id, ticker)
		);`,
		`CREATE TABLE IF NOT EXISTS watchlists (
			user_id  TEXT NOT NULL,
			ticker   TEXT NOT NULL,
			added_at TEXT NOT NULL,
			PRIMARY KEY (user_id, ticker)
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			ticker            TEXT NOT NULL,
			alert_type        TEXT NOT NULL,
			headline          TEXT NOT NULL,
			what_changed      TEXT NOT NULL,
			why_it_matters    TEXT NOT NULL,
			before_vs_now     TEXT NOT NULL,
			what_didnt_change TEXT NOT NULL,
			data_snapshot     TEXT,
			sent_at           TEXT NOT NULL,
			opened_at         TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_sent ON alerts (user_id, sent_at DESC);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			run_date    TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			alerts_sent INTEGER NOT NULL,
			results     TEXT
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
// TimeSeriesStore
// ════════════════════════════════════════════════════════════════════════════

func (s *SQLiteStore) ReadPrices(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date`, ticker, utils.FormatDay(start), utils.FormatDay(end))
	if err != nil {
		return nil, fmt.Errorf("read prices %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.PriceBar
	for rows.Next() {
		var day string
		var open, high, low, closePx, volume sql.NullFloat64
		if err := rows.Scan(&day, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, fmt.Errorf("scan price bar %s: %w", ticker, err)
		}
		d, err := utils.ParseDay(day)
		if err != nil {
			return nil, err
		}
		out = append(out, models.PriceBar{
			Ticker: ticker, Date: d,
			Open: pf(open), High: pf(high), Low: pf(low),
			Close: pf(closePx), Volume: pf(volume),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WritePrices(ctx context.Context, ticker string, bars []models.PriceBar) (int, error) {
	return s.upsertBatch(ctx, len(bars), `
		INSERT INTO price_bars (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`,
		func(i int) []any {
			b := bars[i]
			return []any{ticker, utils.FormatDay(b.Date), nf(b.Open), nf(b.High), nf(b.Low), nf(b.Close), nf(b.Volume)}
		})
}

func (s *SQLiteStore) ReadFundamentals(ctx context.Context, ticker string) ([]models.FundamentalPeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period_end, period_type, revenue, ebitda, operating_income,
		       total_debt, cash, shares_outstanding, eps
		FROM fundamentals
		WHERE ticker = ?
		ORDER BY period_end`, ticker)
	if err != nil {
		return nil, fmt.Errorf("read fundamentals %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.FundamentalPeriod
	for rows.Next() {
		var end, ptype string
		var rev, ebitda, opInc, debt, cash, shares, eps sql.NullFloat64
		if err := rows.Scan(&end, &ptype, &rev, &ebitda, &opInc, &debt, &cash, &shares, &eps); err != nil {
			return nil, fmt.Errorf("scan fundamental %s: %w", ticker, err)
		}
		d, err := utils.ParseDay(end)
		if err != nil {
			return nil, err
		}
		out = append(out, models.FundamentalPeriod{
			Ticker: ticker, PeriodEnd: d, PeriodType: models.PeriodType(ptype),
			Revenue: pf(rev), EBITDA: pf(ebitda), OperatingIncome: pf(opInc),
			TotalDebt: pf(debt), Cash: pf(cash), SharesOutstanding: pf(shares), EPS: pf(eps),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WriteFundamentals(ctx context.Context, ticker string, periods []models.FundamentalPeriod) (int, error) {
	return s.upsertBatch(ctx, len(periods), `
		INSERT INTO fundamentals (ticker, period_end, period_type, revenue, ebitda,
			operating_income, total_debt, cash, shares_outstanding, eps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, period_end, period_type) DO UPDATE SET
			revenue = excluded.revenue, ebitda = excluded.ebitda,
			operating_income = excluded.operating_income, total_debt = excluded.total_debt,
			cash = excluded.cash, shares_outstanding = excluded.shares_outstanding,
			eps = excluded.eps`,
		func(i int) []any {
			p := periods[i]
			return []any{ticker, utils.FormatDay(p.PeriodEnd), string(p.PeriodType),
				nf(p.Revenue), nf(p.EBITDA), nf(p.OperatingIncome),
				nf(p.TotalDebt), nf(p.Cash), nf(p.SharesOutstanding), nf(p.EPS)}
		})
}

func (s *SQLiteStore) ReadFeatures(ctx context.Context, ticker string, start, end time.Time) ([]models.FeatureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, close, volume, ema_200, ema_50, prev_close, prev_ema_200,
		       prev_ema_50, market_cap, enterprise_value, multiple, metric_type, denom_ttm
		FROM feature_rows
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date`, ticker, utils.FormatDay(start), utils.FormatDay(end))
	if err != nil {
		return nil, fmt.Errorf("read features %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.FeatureRow
	for rows.Next() {
		var day, metric string
		var closePx float64
		var volume, e200, e50, pc, pe200, pe50, mc, ev, mult, denom sql.NullFloat64
		if err := rows.Scan(&day, &closePx, &volume, &e200, &e50, &pc, &pe200, &pe50,
			&mc, &ev, &mult, &metric, &denom); err != nil {
			return nil, fmt.Errorf("scan feature row %s: %w", ticker, err)
		}
		d, err := utils.ParseDay(day)
		if err != nil {
			return nil, err
		}
		out = append(out, models.FeatureRow{
			Date: d, Ticker: ticker, Close: closePx, Volume: pf(volume),
			EMA200: pf(e200), EMA50: pf(e50),
			PrevClose: pf(pc), PrevEMA200: pf(pe200), PrevEMA50: pf(pe50),
			MarketCap: pf(mc), EnterpriseValue: pf(ev), Multiple: pf(mult),
			MetricType: models.MetricType(metric), DenomTTM: pf(denom),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WriteFeatures(ctx context.Context, ticker string, frs []models.FeatureRow) (int, error) {
	return s.upsertBatch(ctx, len(frs), `
		INSERT INTO feature_rows (ticker, date, close, volume, ema_200, ema_50,
			prev_close, prev_ema_200, prev_ema_50, market_cap, enterprise_value,
			multiple, metric_type, denom_ttm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET
			close = excluded.close, volume = excluded.volume,
			ema_200 = excluded.ema_200, ema_50 = excluded.ema_50,
			prev_close = excluded.prev_close, prev_ema_200 = excluded.prev_ema_200,
			prev_ema_50 = excluded.prev_ema_50, market_cap = excluded.market_cap,
			enterprise_value = excluded.enterprise_value, multiple = excluded.multiple,
			metric_type = excluded.metric_type, denom_ttm = excluded.denom_ttm`,
		func(i int) []any {
			f := frs[i]
			return []any{ticker, utils.FormatDay(f.Date), f.Close, nf(f.Volume),
				nf(f.EMA200), nf(f.EMA50), nf(f.PrevClose), nf(f.PrevEMA200), nf(f.PrevEMA50),
				nf(f.MarketCap), nf(f.EnterpriseValue), nf(f.Multiple),
				string(f.MetricType), nf(f.DenomTTM)}
		})
}

// upsertBatch runs one statement per row inside a transaction.
func (s *SQLiteStore) upsertBatch(ctx context.Context, n int, query string, args func(i int) []any) (int, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return 0, fmt.Errorf("upsert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
// MetaStore
// ════════════════════════════════════════════════════════════════════════════

func (s *SQLiteStore) IndicatorState(ctx context.Context, ticker string) (*models.IndicatorState, error) {
	var lastDate string
	var seeds sql.NullString
	var lastClose, prevClose, pe200, pe50, e200, e50 sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_price_date, last_close, prev_close, prev_ema_200, prev_ema_50,
		       ema_200, ema_50, seed_closes
		FROM indicator_state WHERE ticker = ?`, ticker).
		Scan(&lastDate, &lastClose, &prevClose, &pe200, &pe50, &e200, &e50, &seeds)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("indicator state %s: %w", ticker, err)
	}
	d, err := utils.ParseDay(lastDate)
	if err != nil {
		return nil, err
	}
	st := &models.IndicatorState{
		Ticker: ticker, LastPriceDate: d,
		LastClose: pf(lastClose), PrevClose: pf(prevClose),
		PrevEMA200: pf(pe200), PrevEMA50: pf(pe50),
		EMA200: pf(e200), EMA50: pf(e50),
	}
	if seeds.Valid && seeds.String != "" {
		if err := json.Unmarshal([]byte(seeds.String), &st.SeedCloses); err != nil {
			return nil, fmt.Errorf("decode seed closes %s: %w", ticker, err)
		}
	}
	return st, nil
}

func (s *SQLiteStore) UpsertIndicatorState(ctx context.Context, st models.IndicatorState) error {
	var seeds any
	if len(st.SeedCloses) > 0 {
		b, err := json.Marshal(st.SeedCloses)
		if err != nil {
			return fmt.Errorf("encode seed closes %s: %w", st.Ticker, err)
		}
		seeds = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indicator_state (ticker, last_price_date, last_close, prev_close,
			prev_ema_200, prev_ema_50, ema_200, ema_50, seed_closes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			last_price_date = excluded.last_price_date, last_close = excluded.last_close,
			prev_close = excluded.prev_close, prev_ema_200 = excluded.prev_ema_200,
			prev_ema_50 = excluded.prev_ema_50, ema_200 = excluded.ema_200,
			ema_50 = excluded.ema_50, seed_closes = excluded.seed_closes`,
		st.Ticker, utils.FormatDay(st.LastPriceDate), nf(st.LastClose), nf(st.PrevClose),
		nf(st.PrevEMA200), nf(st.PrevEMA50), nf(st.EMA200), nf(st.EMA50), seeds)
	if err != nil {
		return fmt.Errorf("upsert indicator state %s: %w", st.Ticker, err)
	}
	return nil
}

func (s *SQLiteStore) ValuationStats(ctx context.Context, ticker string, metric models.MetricType, windowDays int) (*models.ValuationStat, error) {
	st := models.ValuationStat{Ticker: ticker, Metric: metric, WindowDays: windowDays}
	var asof string
	err := s.db.QueryRowContext(ctx, `
		SELECT asof_date, count, p10, p20, p50, p80, p90, outliers_removed
		FROM valuation_stats WHERE ticker = ? AND metric = ? AND window_days = ?`,
		ticker, string(metric), windowDays).
		Scan(&asof, &st.Count, &st.P10, &st.P20, &st.P50, &st.P80, &st.P90, &st.OutliersRemoved)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("valuation stats %s/%s: %w", ticker, metric, err)
	}
	if st.AsOfDate, err = utils.ParseDay(asof); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteStore) UpsertValuationStats(ctx context.Context, stat models.ValuationStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO valuation_stats (ticker, metric, window_days, asof_date, count,
			p10, p20, p50, p80, p90, outliers_removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, metric, window_days) DO UPDATE SET
			asof_date = excluded.asof_date, count = excluded.count,
			p10 = excluded.p10, p20 = excluded.p20, p50 = excluded.p50,
			p80 = excluded.p80, p90 = excluded.p90,
			outliers_removed = excluded.outliers_removed`,
		stat.Ticker, string(stat.Metric), stat.WindowDays, utils.FormatDay(stat.AsOfDate),
		stat.Count, stat.P10, stat.P20, stat.P50, stat.P80, stat.P90, stat.OutliersRemoved)
	if err != nil {
		return fmt.Errorf("upsert valuation stats %s/%s: %w", stat.Ticker, stat.Metric, err)
	}
	return nil
}

func (s *SQLiteStore) UserEntityState(ctx context.Context, userID, ticker string) (*models.UserEntityState, error) {
	st := models.UserEntityState{UserID: userID, Ticker: ticker}
	var regime, trend, eps, evalAt, alerted string
	var crossDate sql.NullString
	var pct, mult, epsVal, lastClose sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_valuation_regime, last_valuation_percentile, last_valuation_multiple,
		       last_trend_position, last_trend_cross_date, last_eps_direction,
		       last_eps_value, last_close, last_evaluated_at, last_alerted
		FROM user_entity_state WHERE user_id = ? AND ticker = ?`, userID, ticker).
		Scan(&regime, &pct, &mult, &trend, &crossDate, &eps, &epsVal, &lastClose, &evalAt, &alerted)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user entity state %s/%s: %w", userID, ticker, err)
	}
	st.LastValuationRegime = models.Regime(regime)
	st.LastValuationPercentile = pf(pct)
	st.LastValuationMultiple = pf(mult)
	st.LastTrendPosition = models.TrendPosition(trend)
	st.LastEPSDirection = models.EPSDirection(eps)
	st.LastEPSValue = pf(epsVal)
	st.LastClose = pf(lastClose)
	if crossDate.Valid {
		d, err := utils.ParseDay(crossDate.String)
		if err != nil {
			return nil, err
		}
		st.LastTrendCrossDate = &d
	}
	if st.LastEvaluatedAt, err = time.Parse(time.RFC3339, evalAt); err != nil {
		return nil, fmt.Errorf("parse last_evaluated_at %s/%s: %w", userID, ticker, err)
	}
	if alerted != "" && alerted != "{}" {
		if err := json.Unmarshal([]byte(alerted), &st.LastAlerted); err != nil {
			return nil, fmt.Errorf("parse last_alerted %s/%s: %w", userID, ticker, err)
		}
	}
	return &st, nil
}

func (s *SQLiteStore) UpsertUserEntityState(ctx context.Context, st models.UserEntityState) error {
	var crossDate any
	if st.LastTrendCrossDate != nil {
		crossDate = utils.FormatDay(*st.LastTrendCrossDate)
	}
	alerted := []byte("{}")
	if len(st.LastAlerted) > 0 {
		var err error
		if alerted, err = json.Marshal(st.LastAlerted); err != nil {
			return fmt.Errorf("encode last_alerted %s/%s: %w", st.UserID, st.Ticker, err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_entity_state (user_id, ticker, last_valuation_regime,
			last_valuation_percentile, last_valuation_multiple, last_trend_position,
			last_trend_cross_date, last_eps_direction, last_eps_value, last_close,
			last_evaluated_at, last_alerted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, ticker) DO UPDATE SET
			last_valuation_regime = excluded.last_valuation_regime,
			last_valuation_percentile = excluded.last_valuation_percentile,
			last_valuation_multiple = excluded.last_valuation_multiple,
			last_trend_position = excluded.last_trend_position,
			last_trend_cross_date = excluded.last_trend_cross_date,
			last_eps_direction = excluded.last_eps_direction,
			last_eps_value = excluded.last_eps_value,
			last_close = excluded.last_close,
			last_evaluated_at = excluded.last_evaluated_at,
			last_alerted = excluded.last_alerted`,
		st.UserID, st.Ticker, string(st.LastValuationRegime),
		nf(st.LastValuationPercentile), nf(st.LastValuationMultiple),
		string(st.LastTrendPosition), crossDate, string(st.LastEPSDirection),
		nf(st.LastEPSValue), nf(st.LastClose), st.LastEvaluatedAt.Format(time.RFC3339),
		string(alerted))
	if err != nil {
		return fmt.Errorf("upsert user entity state %s/%s: %w", st.UserID, st.Ticker, err)
	}
	return nil
}

func (s *SQLiteStore) Watchlists(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, ticker FROM watchlists ORDER BY user_id, ticker`)
	if err != nil {
		return nil, fmt.Errorf("read watchlists: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var user, ticker string
		if err := rows.Scan(&user, &ticker); err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		out[user] = append(out[user], ticker)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Watch(ctx context.Context, userID, ticker string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlists (user_id, ticker, added_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, ticker) DO NOTHING`,
		userID, ticker, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("watch %s/%s: %w", userID, ticker, err)
	}
	return nil
}

func (s *SQLiteStore) Unwatch(ctx context.Context, userID, ticker string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watchlists WHERE user_id = ? AND ticker = ?`, userID, ticker)
	if err != nil {
		return fmt.Errorf("unwatch %s/%s: %w", userID, ticker, err)
	}
	return nil
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, userID string, a models.Alert) (string, error) {
	snapshot, err := json.Marshal(a.DataSnapshot)
	if err != nil {
		return "", fmt.Errorf("encode alert snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, ticker, alert_type, headline, what_changed,
			why_it_matters, before_vs_now, what_didnt_change, data_snapshot, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, userID, a.Ticker, string(a.AlertType), a.Headline, a.WhatChanged,
		a.WhyItMatters, a.BeforeVsNow, a.WhatDidntChange, string(snapshot),
		a.SentAt.Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("save alert %s: %w", a.Ticker, err)
	}
	return a.ID, nil
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, alert_type, headline, what_changed, why_it_matters,
		       before_vs_now, what_didnt_change, data_snapshot, sent_at, opened_at
		FROM alerts WHERE user_id = ?
		ORDER BY sent_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		var atype, sentAt string
		var snapshot, openedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.Ticker, &atype, &a.Headline, &a.WhatChanged,
			&a.WhyItMatters, &a.BeforeVsNow, &a.WhatDidntChange, &snapshot, &sentAt, &openedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.AlertType = models.AlertType(atype)
		if a.SentAt, err = time.Parse(time.RFC3339, sentAt); err != nil {
			return nil, fmt.Errorf("parse alert sent_at: %w", err)
		}
		if openedAt.Valid {
			t, err := time.Parse(time.RFC3339, openedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse alert opened_at: %w", err)
			}
			a.OpenedAt = &t
		}
		if snapshot.Valid && snapshot.String != "" {
			if err := json.Unmarshal([]byte(snapshot.String), &a.DataSnapshot); err != nil {
				return nil, fmt.Errorf("decode alert snapshot: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, sum models.RunSummary) error {
	results, err := json.Marshal(sum.Results)
	if err != nil {
		return fmt.Errorf("encode run results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, kind, run_date, started_at, finished_at, alerts_sent, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = excluded.finished_at, alerts_sent = excluded.alerts_sent,
			results = excluded.results`,
		sum.RunID, sum.Kind, utils.FormatDay(sum.RunDate),
		sum.StartedAt.Format(time.RFC3339), sum.FinishedAt.Format(time.RFC3339),
		sum.AlertsSent, string(results))
	if err != nil {
		return fmt.Errorf("save run summary %s: %w", sum.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context, kind string) (*models.RunSummary, error) {
	var sum models.RunSummary
	var runDate, startedAt, finishedAt string
	var results sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, kind, run_date, started_at, finished_at, alerts_sent, results
		FROM runs WHERE kind = ?
		ORDER BY started_at DESC LIMIT 1`, kind).
		Scan(&sum.RunID, &sum.Kind, &runDate, &startedAt, &finishedAt, &sum.AlertsSent, &results)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s run: %w", kind, err)
	}
	if sum.RunDate, err = utils.ParseDay(runDate); err != nil {
		return nil, err
	}
	if sum.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("parse run started_at: %w", err)
	}
	if sum.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return nil, fmt.Errorf("parse run finished_at: %w", err)
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &sum.Results); err != nil {
			return nil, fmt.Errorf("decode run results: %w", err)
		}
	}
	return &sum, nil
}

// nf converts a nullable float into a driver value.
func nf(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// pf converts a scanned nullable column back into a pointer.
func pf(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
