// Package store persists StockPulse's time-series and metadata. The
// time-series side (prices, fundamentals, feature rows) has two backends:
// an embedded SQLite database and an S3-compatible object store laid out in
// monthly partitions. Metadata (indicator state, user state, stats, alerts,
// runs) lives in SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
)

var (
	// ErrStoreUnavailable marks the one failure class that aborts a whole
	// batch. Everything else degrades per ticker.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned for lookups of rows that do not exist.
	ErrNotFound = errors.New("not found")
)

// TimeSeriesStore reads and writes the per-ticker, date-ordered datasets.
// Writes are upserts keyed by date: re-writing the same rows is a no-op.
type TimeSeriesStore interface {
	ReadPrices(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error)
	WritePrices(ctx context.Context, ticker string, bars []models.PriceBar) (int, error)

	ReadFundamentals(ctx context.Context, ticker string) ([]models.FundamentalPeriod, error)
	WriteFundamentals(ctx context.Context, ticker string, periods []models.FundamentalPeriod) (int, error)

	ReadFeatures(ctx context.Context, ticker string, start, end time.Time) ([]models.FeatureRow, error)
	WriteFeatures(ctx context.Context, ticker string, rows []models.FeatureRow) (int, error)
}

// MetaStore holds the mutable per-ticker and per-user state plus alert and
// run history.
type MetaStore interface {
	IndicatorState(ctx context.Context, ticker string) (*models.IndicatorState, error)
	UpsertIndicatorState(ctx context.Context, st models.IndicatorState) error

	ValuationStats(ctx context.Context, ticker string, metric models.MetricType, windowDays int) (*models.ValuationStat, error)
	UpsertValuationStats(ctx context.Context, stat models.ValuationStat) error

	UserEntityState(ctx context.Context, userID, ticker string) (*models.UserEntityState, error)
	UpsertUserEntityState(ctx context.Context, st models.UserEntityState) error

	// Watchlists returns user -> watched tickers for every user.
	Watchlists(ctx context.Context) (map[string][]string, error)
	Watch(ctx context.Context, userID, ticker string) error
	Unwatch(ctx context.Context, userID, ticker string) error

	SaveAlert(ctx context.Context, userID string, a models.Alert) (string, error)
	RecentAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error)

	SaveRunSummary(ctx context.Context, s models.RunSummary) error
	LatestRun(ctx context.Context, kind string) (*models.RunSummary, error)
}
