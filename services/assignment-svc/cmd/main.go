// Package main is the entry point for assignment-svc.
//
// assignment-svc computes a static user equilibrium on a directed road network.
// It reads a TNTP network and trip table, runs the Method of Successive
// Averages with BPR link costs, and writes link flows and zone-to-zone travel
// times as reports.
//
// # Service Overview
//
// The binary runs one assignment per invocation and also manages the run
// history kept in PostgreSQL:
//   - run          Solve the configured network and write reports (default)
//   - runs         List stored runs, newest first
//   - show <id>    Print one stored run with its convergence history
//   - delete <id>  Delete a stored run
//   - stats        Aggregate statistics over stored runs
//   - flush-cache  Drop every cached assignment result
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        CLI Driver                           │
//	│  (cmd/main.go) flags → config overrides → wiring            │
//	├─────────────────────────────────────────────────────────────┤
//	│                      Service Layer                          │
//	│  (internal/service - AssignmentService)                     │
//	│  - Result cache lookup and store                            │
//	│  - Metrics, tracing, run history                            │
//	├─────────────────────────────────────────────────────────────┤
//	│                     Assignment Layer                        │
//	│  (internal/assignment) MSA solver, AON loader, worker pool  │
//	│  (internal/algorithms) Dijkstra, BPR volume-delay           │
//	├─────────────────────────────────────────────────────────────┤
//	│                    Input / Output Layer                     │
//	│  (internal/loader) TNTP network, trip table, centroids      │
//	│  (internal/report) text, csv, json, markdown, excel, pdf    │
//	│  (internal/repository) run history in PostgreSQL            │
//	└─────────────────────────────────────────────────────────────┘
//
// # Configuration
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags
//  2. Environment variables (prefix: TRAFFIC_)
//  3. Config file (-config, CONFIG_PATH, config.yaml, /etc/trafficassign/config.yaml)
//  4. Default values
//
// Key configuration options (environment variable format):
//
//	# Input
//	TRAFFIC_INPUT_NETWORK_FILE   - TNTP network file (flag: -network)
//	TRAFFIC_INPUT_DEMAND_FILE    - TNTP trip table (flag: -demand)
//	TRAFFIC_INPUT_CENTROID_FILE  - Optional "zone: node ..." mapping (flag: -centroids)
//
//	# Solver
//	TRAFFIC_SOLVER_MAX_ITERATIONS     - Iteration cap (default: 1000, flag: -max-iter)
//	TRAFFIC_SOLVER_TOLERANCE          - Relative gap target (default: 1e-4, flag: -tol)
//	TRAFFIC_SOLVER_WORKERS            - AON workers, 0 = NumCPU (flag: -workers)
//	TRAFFIC_SOLVER_UNREACHABLE_POLICY - fail or skip (default: fail, flag: -policy)
//
//	# Reports
//	TRAFFIC_REPORT_FORMATS    - Comma separated: text, csv, json, markdown, excel, pdf
//	TRAFFIC_REPORT_OUTPUT_DIR - Output directory; empty prints text to stdout
//
//	# Cache / History
//	TRAFFIC_CACHE_ENABLED    - Cache solved results (memory or redis); the memory
//	                           driver dies with the process, so CLI hits need redis
//	TRAFFIC_DATABASE_ENABLED - Store run history in PostgreSQL
//
// # Exit Codes
//
//	0 - Success (including runs that hit the iteration cap, logged as a warning)
//	1 - Internal failure, or canceled (SIGINT/SIGTERM) before the first iteration
//	2 - Malformed or inconsistent input files
//	3 - A demanded OD pair has no connecting path
//	4 - Invalid options, configuration or arguments
//	5 - Database, cache or report output failure
//
// # Usage Examples
//
//	assignment-svc -network SiouxFalls_net.tntp -demand SiouxFalls_trips.tntp
//
//	assignment-svc -network net.tntp -demand trips.tntp \
//	  -formats text,excel,pdf -out ./reports -tags baseline
//
//	TRAFFIC_DATABASE_ENABLED=true assignment-svc runs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trafficassign/migrations"
	"trafficassign/pkg/apperror"
	"trafficassign/pkg/cache"
	"trafficassign/pkg/config"
	"trafficassign/pkg/database"
	"trafficassign/pkg/logger"
	"trafficassign/pkg/metrics"
	"trafficassign/pkg/telemetry"
	"trafficassign/services/assignment-svc/internal/assignment"
	"trafficassign/services/assignment-svc/internal/repository"
	"trafficassign/services/assignment-svc/internal/service"
)

func main() {
	// =========================================================================
	// Flags
	// =========================================================================
	//
	// Only flags set explicitly become config overrides, so an unset flag
	// never hides a value from the config file or the environment.
	cli := newCLI()
	if err := cli.parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperror.ExitCode(err))
	}

	// =========================================================================
	// Configuration Loading
	// =========================================================================
	loaderOpts := []config.LoaderOption{config.WithOverrides(cli.overrides())}
	if cli.configPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigPaths(cli.configPath))
	}
	cfgLoader := config.NewLoader(loaderOpts...)
	cfg, err := cfgLoader.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(apperror.ExitCode(apperror.Wrap(err, apperror.CodeInvalidOptions, "invalid configuration")))
	}

	// =========================================================================
	// Logger Initialization
	// =========================================================================
	//
	// Logs go to stderr by default so that the text report on stdout stays
	// clean. output=file enables rotation via lumberjack.
	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	for _, w := range cfgLoader.Warnings() {
		logger.Log.Debug("config file not loaded", "reason", w)
	}

	// =========================================================================
	// Graceful Shutdown
	// =========================================================================
	//
	// SIGINT/SIGTERM cancel the context. The solver keeps the last committed
	// iteration, or fails with CANCELED if none completed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, cfg, cli)
	stop()
	if err != nil {
		logger.Log.Error("assignment-svc failed",
			slog.String("code", string(apperror.Code(err))),
			slog.Any("error", err),
		)
	}
	os.Exit(apperror.ExitCode(err))
}

// run владеет всеми ресурсами процесса; defer-ы отрабатывают до os.Exit
func run(ctx context.Context, cfg *config.Config, cli *cliFlags) error {
	// =========================================================================
	// Tracing Initialization
	// =========================================================================
	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     true,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Log.Warn("failed to flush telemetry", "error", err)
				}
			}()
			logger.Log.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	// =========================================================================
	// Metrics Initialization
	// =========================================================================
	//
	// The endpoint lives only as long as the process; it is meant for long
	// solves where iteration progress is scraped while the run is active.
	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	if cfg.Metrics.Enabled {
		prometheus.MustRegister(metrics.NewRuntimeCollector(cfg.Metrics.Namespace, cfg.Metrics.Subsystem))
		srv := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path)
		go func() {
			logger.Log.Info("metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// =========================================================================
	// Run History (PostgreSQL)
	// =========================================================================
	var svcOpts []service.Option
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.RunMigrations(ctx, db.Pool(), cfg.Database.AutoMigrate,
			migrations.PostgresMigrations, "postgres"); err != nil {
			return err
		}
		svcOpts = append(svcOpts, service.WithRepository(repository.NewPostgresRunRepository(db)))
		logger.Log.Info("run history enabled", "host", cfg.Database.Host, "database", cfg.Database.Database)
	}

	// =========================================================================
	// Result Cache
	// =========================================================================
	//
	// A cache that cannot connect is not fatal: the run proceeds uncached.
	if cfg.Cache.Enabled {
		if processLocalCache(cfg.Cache) {
			logger.Log.Warn("memory cache does not outlive the process: every CLI run misses and flush-cache has nothing to remove; use cache.driver=redis",
				"driver", cfg.Cache.Driver)
		}
		c, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			logger.Log.Warn("failed to init cache, continuing without it", "error", err)
		} else {
			ac := cache.NewAssignmentCache(c, cfg.Cache.DefaultTTL)
			defer ac.Close()
			svcOpts = append(svcOpts, service.WithCache(ac, cfg.Cache.DefaultTTL))
			logger.Log.Info("result cache enabled", "driver", cfg.Cache.Driver)
		}
	}

	// =========================================================================
	// Service
	// =========================================================================
	svc, err := service.NewAssignmentService(cfg.App.Version, solverOptions(cfg), svcOpts...)
	if err != nil {
		return err
	}

	switch cli.command {
	case cmdRun:
		return runAssignment(ctx, cfg, svc, cli.tags, os.Stdout)
	case cmdRuns:
		return listRuns(ctx, svc, os.Stdout, cli.limit)
	case cmdShow:
		return showRun(ctx, svc, os.Stdout, cli.runID)
	case cmdDelete:
		return deleteRun(ctx, svc, cli.runID)
	case cmdStats:
		return runStatistics(ctx, svc, os.Stdout, cli.window)
	case cmdFlushCache:
		n, err := svc.InvalidateCache(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "removed %d cached results\n", n)
		return nil
	}
	return apperror.Newf(apperror.CodeInvalidArgument, "unknown command %q", cli.command)
}

// solverOptions переносит секцию solver в параметры решателя
func solverOptions(cfg *config.Config) assignment.Options {
	opts := assignment.DefaultOptions()
	opts.MaxIterations = cfg.Solver.MaxIterations
	opts.Tolerance = cfg.Solver.Tolerance
	opts.Workers = cfg.Solver.Workers
	opts.ProgressEvery = cfg.Solver.ProgressEvery
	opts.MaxDuration = cfg.Solver.MaxDuration
	opts.UnreachablePolicy = assignment.UnreachablePolicy(cfg.Solver.UnreachablePolicy)
	opts.KeepHistory = cfg.Solver.KeepHistory
	return opts
}

// runName имя прогона: input.name или имя файла сети без расширений TNTP
func runName(cfg *config.Config) string {
	if cfg.Input.Name != "" {
		return cfg.Input.Name
	}
	base := filepath.Base(cfg.Input.NetworkFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_net")
}

// processLocalCache сообщает, что кэш живёт только внутри процесса
func processLocalCache(cfg config.CacheConfig) bool {
	return cfg.Enabled && cfg.Driver != "redis"
}
