// Command inteltool collects threat indicators from the configured feeds
// and merges them into the deduplicating alerts ledger. It runs once by
// default; --daemon keeps it collecting on an interval and serves the
// HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/inteltool/inteltool/internal/api"
	"github.com/inteltool/inteltool/internal/config"
	"github.com/inteltool/inteltool/internal/feeds"
	"github.com/inteltool/inteltool/internal/fetch"
	"github.com/inteltool/inteltool/internal/ledger"
	"github.com/inteltool/inteltool/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to YAML config")
	collectors := flag.String("collectors", "", "Comma-separated collectors to run (overrides config)")
	top := flag.String("top", "", "Show most-reported values for the date (YYYY-MM-DD) and exit")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	daemon := flag.Bool("daemon", false, "Run continuously and serve the HTTP API")
	addr := flag.String("addr", "", "HTTP listen address for daemon mode (overrides config)")
	ledgerPath := flag.String("ledger", "", "Path to the alerts ledger (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if *collectors != "" {
		cfg.ActiveCollectors = config.SplitList(*collectors)
	}
	if *ledgerPath != "" {
		cfg.LedgerPath = *ledgerPath
	}
	if *addr != "" {
		cfg.Daemon.ListenAddr = *addr
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	printCollectorStatus(cfg)

	led := ledger.Open(cfg.LedgerPath)

	// ── Top-reported query ────────────────────────────────────────────────────
	if *top != "" {
		if err := printTopReported(led, *top); err != nil {
			slog.Error("top-reported query failed", "err", err)
			os.Exit(1)
		}
		return
	}

	client := fetch.New()
	pipe := pipeline.New(led, cfg.DataDir)

	if !*daemon {
		if err := runOnce(context.Background(), pipe, loader, client); err != nil {
			slog.Error("collection failed", "err", err)
			os.Exit(1)
		}
		return
	}

	// ── Daemon mode ──────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		slog.Info("config hot-reloaded", "collectors", newCfg.ActiveCollectors)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(pipe, loader, led, client)
	srv := &http.Server{
		Addr:         cfg.Daemon.ListenAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("server starting", "addr", cfg.Daemon.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Collection loop ───────────────────────────────────────────────────────
	interval := time.Duration(cfg.Daemon.IntervalMinutes) * time.Minute
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := runOnce(ctx, pipe, loader, client); err != nil {
				slog.Error("collection failed", "err", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel()
	slog.Info("goodbye")
}

// runOnce builds collectors from the current config and runs one
// collection cycle.
func runOnce(ctx context.Context, pipe *pipeline.Pipeline, loader *config.Loader, client *fetch.Client) error {
	cfg := loader.Config()
	collectors, err := feeds.Build(cfg, client)
	if err != nil {
		return err
	}
	result, err := pipe.Run(ctx, collectors)
	if err != nil {
		var afs *pipeline.AllFeedsSkippedError
		if errors.As(err, &afs) {
			slog.Error("run aborted", "err", afs)
			return err
		}
		return err
	}
	slog.Info("run finished",
		"run_id", result.RunID,
		"collected", result.Collected,
		"added", result.Added,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return nil
}

// printCollectorStatus shows which collectors are active and which have a
// credential configured.
func printCollectorStatus(cfg *config.Config) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Collector", "Active", "API Key"})
	active := make(map[string]bool, len(cfg.ActiveCollectors))
	for _, name := range cfg.ActiveCollectors {
		active[name] = true
	}
	for _, name := range config.KnownCollectors {
		table.Append([]string{name, yesNo(active[name]), yesNo(cfg.APIKey(name) != "")})
	}
	table.Render()
}

func printTopReported(led *ledger.Ledger, date string) error {
	top, err := led.TopReported(date, 10)
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Printf("no IOCs found for date %s\n", date)
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"IOC", "Reports"})
	for _, vc := range top {
		table.Append([]string{vc.Value, strconv.Itoa(vc.Count)})
	}
	table.Render()
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
