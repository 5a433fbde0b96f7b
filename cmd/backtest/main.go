package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"panelsim/internal/config"
	"panelsim/internal/domain"
	"panelsim/internal/report"
	"panelsim/internal/simulator"
	"panelsim/internal/store"
	"panelsim/internal/strategy"
	"panelsim/internal/strategy/builtins"
	"panelsim/internal/telemetry"
	"panelsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", os.Getenv(config.EnvConfigPath), "path to YAML config (default $"+config.EnvConfigPath+")")
	strategies := flag.String("strategy", "", "strategy name, or a comma-separated list to sweep")
	frequency := flag.String("frequency", "", "rebalance frequency: daily, weekly, monthly or yearly")
	start := flag.String("start", "", "first date of the simulation (YYYY-MM-DD)")
	end := flag.String("end", "", "last date of the simulation (YYYY-MM-DD)")
	initialValue := flag.Float64("initial-value", 0, "starting portfolio value")
	maxLong := flag.Float64("max-long", 0, "cap on summed long weight")
	maxShort := flag.Float64("max-short", 0, "cap on summed short weight")
	riskFree := flag.Float64("rf", 0, "per-period risk-free rate for the Sharpe ratio")
	workers := flag.Int("workers", 0, "concurrent runs in a sweep")
	exclude := flag.String("exclude", "", "comma-separated tickers to drop from the panel")
	history := flag.Bool("history", false, "save results to the run-history database")
	verbose := flag.Bool("verbose", false, "print the value history of each run")
	metricsPath := flag.String("metrics-textfile", "", "write Prometheus metrics to this file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags given on the command line win over the config file.
	flag.Visit(func(f *flag.Flag) {
		b := &cfg.Backtest
		switch f.Name {
		case "strategy":
			b.Strategies = splitList(*strategies)
		case "frequency":
			b.Frequency = *frequency
		case "start":
			b.StartDate = *start
		case "end":
			b.EndDate = *end
		case "initial-value":
			b.InitialValue = *initialValue
		case "max-long":
			b.MaxLong = *maxLong
		case "max-short":
			b.MaxShort = *maxShort
		case "rf":
			b.RiskFreeRate = *riskFree
		case "workers":
			b.Workers = *workers
		case "exclude":
			b.Exclude = splitList(*exclude)
		case "metrics-textfile":
			cfg.Telemetry.TextfilePath = *metricsPath
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	simCfg, _ := cfg.Backtest.SimConfig()

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	registry := strategy.NewRegistry()
	builtins.Register(registry)
	jobs, err := simulator.JobsFromRegistry(registry, cfg.Backtest.Strategies)
	if err != nil {
		log.Fatalf("resolving strategies: %v", err)
	}
	if len(jobs) == 0 {
		log.Fatalf("no strategy given; available: %s", strings.Join(registry.List(), ", "))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	p, err := pstore.LoadPanel(ctx, simCfg.Start, simCfg.End)
	if err != nil {
		log.Fatalf("loading panel: %v", err)
	}
	if len(cfg.Backtest.Exclude) > 0 {
		if p, err = p.DeleteTickers(cfg.Backtest.Exclude...); err != nil {
			log.Fatalf("excluding tickers: %v", err)
		}
		slog.Info("tickers excluded", "tickers", cfg.Backtest.Exclude, "remaining", len(p.Tickers()))
	}

	recorder := telemetry.NewRecorder()
	slog.Info("starting backtest",
		"strategies", cfg.Backtest.Strategies,
		"frequency", simCfg.Frequency,
		"start", domain.FormatDate(simCfg.Start),
		"end", domain.FormatDate(simCfg.End),
	)
	outcomes := simulator.Sweep(ctx, p, jobs, simCfg, cfg.Backtest.Workers, simulator.WithObserver(recorder))

	var hist *store.SQLiteStore
	if *history {
		hist, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening run history: %v", err)
		}
		defer hist.Close()
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", o.Name, o.Err)
			continue
		}
		if err := report.WriteResult(os.Stdout, o.Result, *verbose); err != nil {
			slog.Error("writing report failed", "error", err)
		}
		if hist != nil {
			if err := hist.SaveRun(ctx, store.RecordFromResult(o.Result)); err != nil {
				failed++
				slog.Error("saving run failed", "key", o.Result.Key(), "error", err)
			}
		}
	}

	if len(outcomes) > 1 {
		fmt.Println()
		if err := report.WriteSweep(os.Stdout, outcomes); err != nil {
			slog.Error("writing sweep summary failed", "error", err)
		}
	}

	if path := cfg.Telemetry.TextfilePath; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			slog.Error("writing metrics failed", "error", err)
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		os.Exit(130)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
