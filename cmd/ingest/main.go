// Command ingest is the operational CLI: single-date runs, range backfills,
// retrying gaps and listing dates the warehouse is missing.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/tokenledger/tokenledger/internal/anthropic"
	"github.com/tokenledger/tokenledger/internal/classify"
	"github.com/tokenledger/tokenledger/internal/config"
	"github.com/tokenledger/tokenledger/internal/cursor"
	"github.com/tokenledger/tokenledger/internal/database"
	"github.com/tokenledger/tokenledger/internal/ingestion"
	"github.com/tokenledger/tokenledger/internal/logging"
	"github.com/tokenledger/tokenledger/internal/models"
	"github.com/tokenledger/tokenledger/internal/secrets"
)

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	pipeline *ingestion.Pipeline
	costs    *database.CostRepository
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// setup wires the full pipeline the way the server does, minus the HTTP
// surface and metrics endpoint.
func setup(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	resolver := secrets.NewResolver()
	anthropicKey, err := resolver.Get("ANTHROPIC_ADMIN_KEY")
	if err != nil {
		return nil, err
	}
	cursorKey, err := resolver.Get("CURSOR_API_KEY")
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	classifier, err := classify.LoadFromFile(cfg.Anthropic.SurfaceMappingPath, cfg.Anthropic.CodeWorkspaceID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load surface mapping: %w", err)
	}

	costRepo := database.NewCostRepository(db)

	pipeline := ingestion.NewPipeline(
		anthropic.NewClient(cfg.Anthropic.BaseURL, anthropicKey, logger),
		cursor.NewClient(cfg.Cursor.BaseURL, cursorKey, logger),
		costRepo,
		database.NewUsageRepository(db),
		database.NewProductivityRepository(db),
		database.NewSpendRepository(db),
		database.NewRunLogRepository(db),
		classifier,
		nil,
		ingestion.Config{
			DailyCostCeilingUSD: cfg.Ingest.DailyCostCeilingUSD,
			IDEPerRequestUSD:    cfg.Cursor.PerRequestUSD,
		},
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		pipeline: pipeline,
		costs:    costRepo,
	}, nil
}

func parseDateFlag(value string) (time.Time, error) {
	date, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return date, nil
}

func yesterday() time.Time {
	return models.MidnightUTC(time.Now().UTC()).AddDate(0, 0, -1)
}

func newRunCmd() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest a single date (default: yesterday)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			date := yesterday()
			if dateFlag != "" {
				var err error
				if date, err = parseDateFlag(dateFlag); err != nil {
					return err
				}
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.pipeline.IngestDate(ctx, date)
			if err != nil {
				return err
			}

			fmt.Printf("ingested %s: %d cost, %d usage, %d productivity, %d spend rows\n",
				models.FormatDate(date),
				stats.CostRows, stats.UsageRows, stats.ProductivityRows, stats.SpendRows)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "activity date to ingest (YYYY-MM-DD)")
	return cmd
}

func rangeFlags(cmd *cobra.Command, startFlag, endFlag *string) {
	cmd.Flags().StringVar(startFlag, "start-date", "", "first date of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(endFlag, "end-date", "", "last date of the range, inclusive (YYYY-MM-DD, default: yesterday)")
	_ = cmd.MarkFlagRequired("start-date")
}

func parseRange(startFlag, endFlag string) (time.Time, time.Time, error) {
	start, err := parseDateFlag(startFlag)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	end := yesterday()
	if endFlag != "" {
		if end, err = parseDateFlag(endFlag); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s",
			models.FormatDate(end), models.FormatDate(start))
	}
	return start, end, nil
}

func driveDates(ctx context.Context, a *app, dates []time.Time, sleep time.Duration) error {
	if len(dates) == 0 {
		fmt.Println("nothing to ingest")
		return nil
	}

	driver := ingestion.NewDriver(a.pipeline, sleep, a.logger)
	result, err := driver.Run(ctx, dates)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d dates failed", len(result.Failed))
	}
	return nil
}

func newBackfillCmd() *cobra.Command {
	var startFlag, endFlag string
	var sleepSeconds int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest every date in a range, pacing between dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			start, end, err := parseRange(startFlag, endFlag)
			if err != nil {
				return err
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sleep := time.Duration(sleepSeconds) * time.Second
			if sleep == 0 {
				sleep = a.cfg.Ingest.PacingInterval
			}
			return driveDates(ctx, a, ingestion.DateRange(start, end), sleep)
		},
	}

	rangeFlags(cmd, &startFlag, &endFlag)
	cmd.Flags().IntVar(&sleepSeconds, "sleep", 0, "seconds to pause between dates (default: INGEST_PACING_SECONDS)")
	return cmd
}

func newRetryCmd() *cobra.Command {
	var startFlag, endFlag string
	var allMissing bool
	var sleepSeconds int

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-ingest only the dates in a range with no cost rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !allMissing && startFlag == "" {
				return fmt.Errorf("either --start-date or --all-missing is required")
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var start, end time.Time
			if allMissing {
				// Scan the whole ingested history for gaps: from the earliest
				// date in the warehouse through yesterday.
				present, err := a.costs.DistinctDates(ctx,
					time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
					yesterday().AddDate(0, 0, 1))
				if err != nil {
					return err
				}
				if len(present) == 0 {
					fmt.Println("warehouse is empty, nothing to retry")
					return nil
				}
				start, end = present[0], yesterday()
			} else {
				if start, end, err = parseRange(startFlag, endFlag); err != nil {
					return err
				}
			}

			missing, err := ingestion.MissingDates(ctx, a.costs, start, end)
			if err != nil {
				return err
			}

			sleep := time.Duration(sleepSeconds) * time.Second
			if sleep == 0 {
				sleep = a.cfg.Ingest.PacingInterval
			}
			return driveDates(ctx, a, missing, sleep)
		},
	}

	cmd.Flags().StringVar(&startFlag, "start-date", "", "first date of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endFlag, "end-date", "", "last date of the range, inclusive (YYYY-MM-DD, default: yesterday)")
	cmd.Flags().BoolVar(&allMissing, "all-missing", false, "detect and re-ingest every gap since the earliest ingested date")
	cmd.Flags().IntVar(&sleepSeconds, "sleep", 0, "seconds to pause between dates (default: INGEST_PACING_SECONDS)")
	return cmd
}

func newMissingCmd() *cobra.Command {
	var startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "missing",
		Short: "List dates in a range with no cost rows in the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			start, end, err := parseRange(startFlag, endFlag)
			if err != nil {
				return err
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			missing, err := ingestion.MissingDates(ctx, a.costs, start, end)
			if err != nil {
				return err
			}

			if len(missing) == 0 {
				fmt.Println("no missing dates")
				return nil
			}
			for _, d := range missing {
				fmt.Println(models.FormatDate(d))
			}
			return nil
		},
	}

	rangeFlags(cmd, &startFlag, &endFlag)
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Usage and billing warehouse loader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newBackfillCmd(), newRetryCmd(), newMissingCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
