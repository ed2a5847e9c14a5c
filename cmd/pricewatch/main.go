// Command pricewatch is the retail price tracking daemon.
//
// Usage:
//
//	pricewatch -db prices.db -serve                  # scheduler + HTTP API
//	pricewatch -db prices.db -run                    # one cycle, print summary
//	pricewatch -db prices.db -import catalog.yaml    # load catalog
//	pricewatch -db prices.db -health                 # print health report
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quellen/pricewatch/dbopen"
	"github.com/quellen/pricewatch/health"
	"github.com/quellen/pricewatch/httpapi"
	"github.com/quellen/pricewatch/schedule"
	"github.com/quellen/pricewatch/store"
	"github.com/quellen/pricewatch/tracker"
)

func main() {
	configPath := flag.String("config", "", "path to pricewatch.yaml config file")
	dbPath := flag.String("db", "pricewatch.db", "path to the SQLite database")
	importPath := flag.String("import", "", "import a catalog YAML file and exit")
	runOnce := flag.Bool("run", false, "run one scrape cycle and exit")
	serve := flag.Bool("serve", false, "run the scheduler and HTTP API")
	addr := flag.String("addr", ":8090", "HTTP listen address for -serve")
	healthCheck := flag.Bool("health", false, "print the health report and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *importPath, *addr, *runOnce, *serve, *healthCheck); err != nil {
		logger.Error("pricewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, importPath, addr string, runOnce, serve, healthCheck bool) error {
	cfg := tracker.Config{}
	if configPath != "" {
		loaded, err := tracker.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := store.ApplySchema(ctx, db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	st := store.NewWithPath(db, dbPath)

	if importPath != "" {
		return runImport(ctx, st, importPath)
	}
	if healthCheck {
		return runHealth(ctx, st, cfg, logger)
	}
	if runOnce {
		return runCycle(ctx, st, cfg, logger)
	}
	if serve {
		return runServe(ctx, st, cfg, logger, addr)
	}

	fmt.Fprintln(os.Stderr, "usage: pricewatch -serve | -run | -import <file> | -health")
	return errors.New("no mode selected")
}

func runImport(ctx context.Context, st *store.Store, path string) error {
	res, err := st.ImportCatalogFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import catalog: %w", err)
	}
	return printJSON(res)
}

func runHealth(ctx context.Context, st *store.Store, cfg tracker.Config, logger *slog.Logger) error {
	mon := health.New(st, healthConfig(cfg), logger)
	rep := mon.Check(ctx)
	if err := printJSON(rep); err != nil {
		return err
	}
	if rep.Status == health.Unhealthy {
		return errors.New("system unhealthy")
	}
	return nil
}

func runCycle(ctx context.Context, st *store.Store, cfg tracker.Config, logger *slog.Logger) error {
	svc := tracker.New(st, cfg, tracker.WithLogger(logger))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer svc.Close()

	sum, err := svc.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}
	return printJSON(sum)
}

func runServe(ctx context.Context, st *store.Store, cfg tracker.Config, logger *slog.Logger, addr string) error {
	svc := tracker.New(st, cfg, tracker.WithLogger(logger))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer svc.Close()

	mon := health.New(st, healthConfig(cfg), logger)
	runner := schedule.New(st, func(ctx context.Context) error {
		_, err := svc.RunCycle(ctx)
		return err
	}, logger)

	api := httpapi.New(st, svc, mon, runner, logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("pricewatch: http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthConfig(cfg tracker.Config) health.Config {
	return health.Config{
		SuccessRateMin:  cfg.HealthSuccessRateMin,
		StaleMax:        cfg.HealthStaleMax,
		ErrorRateMax:    cfg.HealthErrorRateMax,
		StalenessWindow: cfg.StalenessWindow,
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}
