// Kestrel - Credit default risk from alternative transaction data.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/quality"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Local development overrides; missing file is fine
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Overlay YAML config file when present
	configPath := os.Getenv("KESTREL_CONFIG")
	if configPath == "" {
		configPath = "kestrel.yaml"
	}
	if err := cfg.LoadFile(configPath, os.Getenv("KESTREL_CONFIG") == ""); err != nil {
		slog.Error("failed to load config file", "path", configPath, "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"k", cfg.Pipeline.K,
		"seed", cfg.Pipeline.Seed,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Quality Rule Engine
	engine, err := quality.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize quality engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadQualityRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load quality rules", "error", err)
		os.Exit(1)
	}
	slog.Info("quality engine initialized", "rules_count", engine.RulesCount())

	// Initialize Gate Engine
	gateEngine := quality.NewGateEngine()

	// Load gates from database (no hardcoded defaults - configure via API)
	if err := loadQualityGatesFromDatabase(ctx, repo, gateEngine); err != nil {
		slog.Error("failed to load quality gates", "error", err)
		os.Exit(1)
	}
	slog.Info("gate engine initialized", "gates_count", gateEngine.GateCount())

	// Initialize Pipeline Runner
	runner := pipeline.NewRunner(repo, busImpl, engine, gateEngine, cfg.Pipeline)
	slog.Info("pipeline runner initialized",
		"woe_bins", cfg.Pipeline.WoEBins,
		"iv_threshold", cfg.Pipeline.IVThreshold,
	)

	// Initialize Scoring Service
	scoringService := scoring.NewService(repo, cacheImpl, scoring.NewScorer())
	slog.Info("scoring service initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, scoringService)

		workerCfg := worker.Config{
			TenantIDs:   tenantList(),
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(workerCfg.TenantIDs))
		}
	}

	// Schedule periodic re-fits when a cron expression is configured
	var scheduler *cron.Cron
	if cfg.Pipeline.RefitSchedule != "" {
		scheduler = cron.New()
		tenants := tenantList()
		if len(tenants) == 0 {
			slog.Warn("refit schedule configured but KESTREL_TENANTS is empty; nothing to schedule")
		}
		for _, tenantID := range tenants {
			id := tenantID
			_, err := scheduler.AddFunc(cfg.Pipeline.RefitSchedule, func() {
				if _, err := runner.Run(context.Background(), id); err != nil {
					slog.Error("scheduled pipeline run failed", "tenant_id", id, "error", err)
				}
			})
			if err != nil {
				slog.Error("failed to schedule re-fit", "tenant_id", id, "error", err)
				os.Exit(1)
			}
		}
		scheduler.Start()
		slog.Info("re-fit scheduler started",
			"schedule", cfg.Pipeline.RefitSchedule,
			"tenant_count", len(tenants),
		)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, gateEngine, runner, scoringService, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the scheduler first so no new run starts mid-shutdown
	if scheduler != nil {
		schedCtx := scheduler.Stop()
		<-schedCtx.Done()
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for quality rules and gates that apply to all tenants.
const GlobalTenantID = "*"

// tenantList parses the comma-separated KESTREL_TENANTS variable.
func tenantList() []string {
	raw := os.Getenv("KESTREL_TENANTS")
	if raw == "" {
		return nil
	}
	var tenants []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// loadQualityRulesFromDatabase loads rules from the database into the engine.
// All rules must be configured via POST /quality/rules - no hardcoded defaults.
func loadQualityRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *quality.Engine) error {
	dbRules, err := repo.ListQualityRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list quality rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading quality rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no quality rules in database - configure via POST /quality/rules")
	return nil
}

// loadQualityGatesFromDatabase loads gates from the database into the engine.
// All gates must be configured via POST /quality/gates - no hardcoded defaults.
func loadQualityGatesFromDatabase(ctx context.Context, repo domain.Repository, engine *quality.GateEngine) error {
	dbGates, err := repo.ListQualityGates(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list quality gates from database", "error", err)
		return nil // Start with empty gates - they can be added via API
	}

	if len(dbGates) > 0 {
		slog.Info("loading quality gates from database", "count", len(dbGates))
		engine.LoadGates(dbGates)
		return nil
	}

	slog.Info("no quality gates in database - configure via POST /quality/gates")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║    Credit Risk from Transaction Data      ║")
	fmt.Println("  ║     A score for every ledger.             ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions               - Ingest a ledger row")
	fmt.Println("    GET  /transactions/{id}          - Get transaction by ID")
	fmt.Println("    POST /pipeline/run               - Run the label + fit pipeline")
	fmt.Println("    GET  /pipeline/artifacts         - List frozen artifact bundles")
	fmt.Println("    GET  /pipeline/artifacts/{ver}   - Get an artifact bundle")
	fmt.Println("    GET  /rfm/{customerId}           - Get a customer's RFM summary")
	fmt.Println("    GET  /rfm/{customerId}/preview   - Compute RFM live from the ledger")
	fmt.Println("    GET  /segments/{customerId}      - Get a customer's segment")
	fmt.Println("    POST /models                     - Register model parameters")
	fmt.Println("    GET  /models/{version}           - Get model parameters")
	fmt.Println("    POST /score                      - Score a customer")
	fmt.Println("    GET  /scores/{id}                - Get a past score event")
	fmt.Println("    GET  /quality/rules              - List quality rules")
	fmt.Println("    POST /quality/rules              - Create a quality rule")
	fmt.Println("    POST /quality/rules/reload       - Hot-reload rules")
	fmt.Println("    GET  /quality/gates              - List quality gates")
	fmt.Println("    POST /quality/gates              - Create a quality gate")
	fmt.Println("    POST /quality/gates/reload       - Hot-reload gates")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println("    GET  /metrics                    - Prometheus metrics")
	fmt.Println()
}
