/*
main.go - Application entry point

PURPOSE:
  Wires configuration, logging, the store, the optional Redis cache and
  the HTTP API, and exposes them as subcommands.

COMMANDS:
  serve                                  Start the HTTP server
  recompute --facility ID --month YYYY-MM
                                         Rescore one period and exit
  migrate                                Create or update the schema

STARTUP SEQUENCE (serve):
  1. Load config (env, optional .env)
  2. Build zap logger
  3. Open store (sqlite or postgres) and migrate
  4. Load rules (defaults, overlaid by RULES_FILE)
  5. Connect Redis when REDIS_ADDR is set (failure -> run without cache)
  6. Build engine, handler, router, scheduler
  7. Serve with graceful shutdown

ENVIRONMENT:
  See config/config.go for every key and its default.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and the database
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/remuneration-engine/api"
	"github.com/warp/remuneration-engine/cache"
	"github.com/warp/remuneration-engine/catalog"
	"github.com/warp/remuneration-engine/config"
	"github.com/warp/remuneration-engine/factory"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/logging"
	"github.com/warp/remuneration-engine/remuneration"
	"github.com/warp/remuneration-engine/store/postgres"
	"github.com/warp/remuneration-engine/store/sqlite"
	"github.com/warp/remuneration-engine/telemetry"
	"go.uber.org/zap"
)

const serviceName = "remuneration-engine"

func main() {
	rootCmd := &cobra.Command{
		Use:          "remuneration-server",
		Short:        "Facility performance incentive engine",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func recomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute remuneration for one facility and month",
		RunE: func(cmd *cobra.Command, args []string) error {
			facilityID, _ := cmd.Flags().GetString("facility")
			monthStr, _ := cmd.Flags().GetString("month")
			month, err := generic.ParseReportMonth(monthStr)
			if err != nil {
				return err
			}
			return runRecompute(cmd.Context(), facilityID, month)
		},
	}
	cmd.Flags().String("facility", "", "Facility ID")
	cmd.Flags().String("month", "", "Report month (YYYY-MM)")
	_ = cmd.MarkFlagRequired("facility")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Schema up to date", zap.String("driver", cfg.DBDriver))
			return nil
		},
	}
}

// =============================================================================
// WIRING
// =============================================================================

// backend is what both database stores provide.
type backend interface {
	api.Store
	Migrate(ctx context.Context) error
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st := postgres.New(pool)
		return st, st.Close, nil
	default:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return st, func() { st.Close() }, nil
	}
}

// app is everything serve and recompute share.
type app struct {
	store     backend
	engine    *remuneration.Engine
	submitter *remuneration.Submitter
	reports   remuneration.ReportSource
	close     func()
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers := []func(){closeStore}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := st.Migrate(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Database ready", zap.String("driver", cfg.DBDriver))

	rules, err := factory.LoadRulesFile(cfg.RulesFile, catalog.DefaultRules())
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load rules: %w", err)
	}

	diag, err := telemetry.New(logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	opts := []remuneration.Option{remuneration.WithDiagnostics(diag)}
	var submitOpts []remuneration.SubmitterOption
	var reports remuneration.ReportSource = remuneration.StoreReports{Store: st}

	if cfg.CacheEnabled() {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Redis unavailable, running without report cache", zap.Error(err))
		} else {
			closers = append(closers, func() { client.Close() })
			summaries := cache.NewSummaryCache(cache.NewRedisKVStore(client), cfg.CacheTTL, logger.Named("cache"))
			opts = append(opts, remuneration.WithRecomputeHook(summaries.Hook()))
			submitOpts = append(submitOpts, remuneration.WithReplacedHook(summaries.InvalidateHook()))
			reports = cache.NewReadThrough(summaries, reports)
			logger.Info("Report cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
		}
	}

	engine := remuneration.NewEngine(st, rules, opts...)
	return &app{
		store:     st,
		engine:    engine,
		submitter: remuneration.NewSubmitter(st, engine, submitOpts...),
		reports:   reports,
		close:     closeAll,
	}, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func runServer() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	handler := api.NewHandler(a.store, a.engine, logger.Named("api"))
	handler.Submitter = a.submitter
	handler.Reports = a.reports
	router := api.NewRouter(handler, cfg.CORSOrigins)

	scheduler := api.NewRecomputeScheduler(a.store, a.engine, logger)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		scheduler.Stop()
		logger.Error("Server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server stopped")
	return nil
}

func runRecompute(ctx context.Context, facilityID string, month generic.ReportMonth) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Recompute(ctx, facilityID, month)
	if err != nil {
		return fmt.Errorf("recompute %s %s: %w", facilityID, month, err)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(remuneration.ReportFromResult(res))
}
