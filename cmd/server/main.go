package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/tokenledger/tokenledger/internal/anthropic"
	"github.com/tokenledger/tokenledger/internal/auth"
	"github.com/tokenledger/tokenledger/internal/classify"
	"github.com/tokenledger/tokenledger/internal/config"
	"github.com/tokenledger/tokenledger/internal/cursor"
	"github.com/tokenledger/tokenledger/internal/database"
	"github.com/tokenledger/tokenledger/internal/ingestion"
	"github.com/tokenledger/tokenledger/internal/logging"
	"github.com/tokenledger/tokenledger/internal/metrics"
	"github.com/tokenledger/tokenledger/internal/scheduler"
	"github.com/tokenledger/tokenledger/internal/secrets"
	"github.com/tokenledger/tokenledger/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting tokenledger server")

	resolver := secrets.NewResolver()
	anthropicKey, err := resolver.Get("ANTHROPIC_ADMIN_KEY")
	if err != nil {
		logger.Error("failed to resolve admin api key", "error", err)
		os.Exit(1)
	}
	cursorKey, err := resolver.Get("CURSOR_API_KEY")
	if err != nil {
		logger.Error("failed to resolve ide api key", "error", err)
		os.Exit(1)
	}
	logger.Debug("credentials resolved",
		"anthropic_key", secrets.Redact(anthropicKey),
		"cursor_key", secrets.Redact(cursorKey),
	)

	authCfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load auth config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.Database.URL != "" {
		logger.Info("connecting to database", "url", database.RedactURL(cfg.Database.URL))
	} else {
		logger.Info("connecting to database via cloud sql socket")
	}
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	classifier, err := classify.LoadFromFile(cfg.Anthropic.SurfaceMappingPath, cfg.Anthropic.CodeWorkspaceID)
	if err != nil {
		logger.Error("failed to load surface mapping", "error", err)
		os.Exit(1)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	costRepo := database.NewCostRepository(db)
	usageRepo := database.NewUsageRepository(db)
	productivityRepo := database.NewProductivityRepository(db)
	spendRepo := database.NewSpendRepository(db)
	runLogRepo := database.NewRunLogRepository(db)

	reports := anthropic.NewClient(cfg.Anthropic.BaseURL, anthropicKey, logger)
	ide := cursor.NewClient(cfg.Cursor.BaseURL, cursorKey, logger)

	pipeline := ingestion.NewPipeline(
		reports, ide,
		costRepo, usageRepo, productivityRepo, spendRepo, runLogRepo,
		classifier, collector,
		ingestion.Config{
			DailyCostCeilingUSD: cfg.Ingest.DailyCostCeilingUSD,
			IDEPerRequestUSD:    cfg.Cursor.PerRequestUSD,
		},
		logger,
	)

	daily := scheduler.NewDailyScheduler(pipeline, runLogRepo, cfg.Ingest.ScheduleHourUTC, logger)
	go daily.Start(ctx)
	defer daily.Stop()

	handlers, err := server.NewHandlers(pipeline, runLogRepo, db, authCfg, logger)
	if err != nil {
		logger.Error("failed to init handlers", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg.Server, logger, handlers.Mux(collector))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("tokenledger server started", "port", cfg.Server.Port)

	waitForSignal(logger)

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
