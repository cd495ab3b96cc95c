// StockPulse — valuation-regime watching and alerting for stock watchlists.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/seenimoa/stockpulse/api"
	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/infra"
	"github.com/seenimoa/stockpulse/internal/pipeline"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockpulse",
	Short: "StockPulse — valuation-regime watching and alerting",
	Long: `StockPulse watches stock watchlists, recomputes technical and valuation
features after each close, classifies every ticker's valuation regime against
its own five-year history, and turns regime and trend transitions into
structured email alerts.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("date", "", "run date override (YYYY-MM-DD, default: today)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(weeklyCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(unwatchCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// openStores builds the time-series and metadata stores from config.
// Metadata always lives in SQLite; the time-series side is SQLite or an
// S3-compatible bucket depending on store.timeseries.
func openStores(ctx context.Context) (store.TimeSeriesStore, store.MetaStore, error) {
	sqlStore, err := store.OpenSQLite(cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	switch cfg.Store.Timeseries {
	case "sqlite":
		return sqlStore, sqlStore, nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.S3.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Store.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Store.S3.Endpoint)
				o.UsePathStyle = true
			}
		})
		limiter := infra.NewRateLimiter(cfg.Store.S3.RatePerSec, time.Second)
		return store.NewS3Store(client, cfg.Store.S3.Bucket, limiter), sqlStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown store.timeseries backend %q", cfg.Store.Timeseries)
	}
}

func newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	ts, meta, err := openStores(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.New(ts, meta, cfg.Pipeline.Workers), nil
}

// runDate resolves the --date flag, defaulting to today.
func runDate(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("date")
	if raw == "" {
		return utils.Day(time.Now().UTC()), nil
	}
	d, err := utils.ParseDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", raw, err)
	}
	return d, nil
}

func printRunSummary(sum *models.RunSummary) {
	ok, skip, fail := sum.Counts()
	fmt.Printf("Run %s (%s) for %s\n", sum.RunID, sum.Kind, utils.FormatDay(sum.RunDate))
	fmt.Printf("  tickers: %d ok, %d skipped, %d failed\n", ok, skip, fail)
	fmt.Printf("  alerts:  %d sent\n", sum.AlertsSent)
	for _, r := range sum.Results {
		if r.Outcome == models.OutcomeOK {
			continue
		}
		fmt.Printf("  %-10s %-6s %s\n", r.Ticker, r.Outcome, r.Reason)
	}
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("StockPulse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Daily Command ---

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run the daily batch over all watched tickers",
	Long: `Recompute features for every watched ticker, evaluate the template
catalog, detect per-user transitions and persist the resulting alerts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		asOf, err := runDate(cmd)
		if err != nil {
			return err
		}
		sum, err := p.Daily(ctx, asOf)
		if err != nil {
			return fmt.Errorf("daily run: %w", err)
		}
		printRunSummary(sum)
		return nil
	},
}

// --- Weekly Command ---

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Refresh valuation percentile stats for all watched tickers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		asOf, err := runDate(cmd)
		if err != nil {
			return err
		}
		sum, err := p.Weekly(ctx, asOf)
		if err != nil {
			return fmt.Errorf("weekly run: %w", err)
		}
		printRunSummary(sum)
		return nil
	},
}

// --- Backfill Command ---

var backfillCmd = &cobra.Command{
	Use:   "backfill [ticker...]",
	Short: "Rebuild feature history from stored prices and fundamentals",
	Long: `Recompute the full feature history for the given tickers (or every
watched ticker when none are given). Indicator state is rebuilt from scratch,
so a backfill also repairs state after an EMA drift or a data correction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		sum, err := p.Backfill(ctx, args)
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		printRunSummary(sum)
		return nil
	},
}

// --- Watch / Unwatch Commands ---

var watchCmd = &cobra.Command{
	Use:   "watch [user] [ticker]",
	Short: "Add a ticker to a user's watchlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, meta, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		if err := meta.Watch(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		fmt.Printf("✅ %s now watching %s\n", args[0], args[1])
		return nil
	},
}

var unwatchCmd = &cobra.Command{
	Use:   "unwatch [user] [ticker]",
	Short: "Remove a ticker from a user's watchlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, meta, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		if err := meta.Unwatch(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("unwatch: %w", err)
		}
		fmt.Printf("✅ %s stopped watching %s\n", args[0], args[1])
		return nil
	},
}

// --- Alerts Command ---

var alertsCmd = &cobra.Command{
	Use:   "alerts [user]",
	Short: "Show a user's most recent alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, meta, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		alerts, err := meta.RecentAlerts(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts.")
			return nil
		}
		for i, a := range alerts {
			if i > 0 {
				fmt.Println("───────────────────────────────────────")
			}
			fmt.Println(a.FormatEmail())
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().Int("limit", 10, "maximum number of alerts to show")
}

// --- Serve Command (scheduler + API server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the batch scheduler and the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		ts, meta, err := openStores(ctx)
		if err != nil {
			return err
		}
		p := pipeline.New(ts, meta, cfg.Pipeline.Workers)

		sched, err := pipeline.NewScheduler(p, cfg.Pipeline.DailySchedule, cfg.Pipeline.WeeklySchedule)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		log.Printf("main: serving API on %s (daily %q, weekly %q)",
			addr, cfg.Pipeline.DailySchedule, cfg.Pipeline.WeeklySchedule)
		return api.NewServer(cfg, meta, version).ListenAndServe(addr)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  StockPulse — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:      %s (%s)\n", version, commit)
		fmt.Printf("  Time (UTC):   %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    Time series:   %s\n", cfg.Store.Timeseries)
		if cfg.Store.Timeseries == "s3" {
			fmt.Printf("    Bucket:        %s (%s)\n", cfg.Store.S3.Bucket, cfg.Store.S3.Region)
		} else {
			fmt.Printf("    Database:      %s\n", cfg.Store.SQLitePath)
		}
		fmt.Printf("    Workers:       %d\n", cfg.Pipeline.Workers)
		fmt.Printf("    Daily batch:   %s\n", cfg.Pipeline.DailySchedule)
		fmt.Printf("    Weekly batch:  %s\n", cfg.Pipeline.WeeklySchedule)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		// Credentials status
		creds := config.CheckCredentials(cfg)
		if len(creds) > 0 {
			fmt.Println("  Credentials:")
			for _, c := range creds {
				status := "❌ not set"
				if c.IsSet {
					status = fmt.Sprintf("✅ set (%s: %s)", c.Source, c.Masked)
				}
				fmt.Printf("    %-25s %s\n", c.Name+":", status)
			}
			fmt.Println()
		}

		// Latest runs
		_, meta, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("  Last runs:")
		for _, kind := range []string{"daily", "weekly"} {
			sum, err := meta.LatestRun(cmd.Context(), kind)
			if err != nil {
				fmt.Printf("    %-8s never\n", kind+":")
				continue
			}
			ok, skip, fail := sum.Counts()
			fmt.Printf("    %-8s %s (%d ok / %d skip / %d fail, %d alerts)\n",
				kind+":", utils.FormatDay(sum.RunDate), ok, skip, fail, sum.AlertsSent)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
