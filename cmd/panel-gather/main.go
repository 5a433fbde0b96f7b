package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panelsim/internal/config"
	"panelsim/internal/gather"
	"panelsim/internal/store"
	"panelsim/internal/util"
)

func main() {
	cfgPath := flag.String("config", os.Getenv(config.EnvConfigPath), "path to YAML config (default $"+config.EnvConfigPath+")")
	csvPath := flag.String("csv", "", "import observations from this CSV instead of calling Alpaca")
	tickersPath := flag.String("tickers", "", "CSV with a ticker column (overrides gather.tickers_csv)")
	start := flag.String("start", "", "first date to fetch (overrides gather.start_date)")
	end := flag.String("end", "", "last date to fetch; empty means today")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *tickersPath != "" {
		cfg.Gather.TickersCSV = *tickersPath
	}
	if *start != "" {
		cfg.Gather.StartDate = *start
	}
	if *end != "" {
		cfg.Gather.EndDate = *end
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	if *csvPath != "" {
		if err := importCSV(ctx, pstore, *csvPath); err != nil {
			log.Fatalf("import failed: %v", err)
		}
		return
	}

	if cfg.Gather.TickersCSV == "" {
		log.Fatalf("no ticker list: set gather.tickers_csv or -tickers")
	}
	f, err := os.Open(cfg.Gather.TickersCSV)
	if err != nil {
		log.Fatalf("opening ticker list: %v", err)
	}
	tickers, err := store.ReadTickersCSV(f)
	f.Close()
	if err != nil {
		log.Fatalf("reading ticker list: %v", err)
	}

	rng, err := gather.ParseDateRange(cfg.Gather.StartDate, cfg.Gather.EndDate)
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	client := gather.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	g := gather.NewAlpacaGatherer(client, pstore, gather.AlpacaOptions{
		Tickers:     tickers,
		Range:       rng,
		Feed:        cfg.Alpaca.Feed,
		BatchSize:   cfg.Gather.BatchSize,
		MaxWorkers:  cfg.Gather.MaxWorkers,
		RatePerMin:  cfg.Gather.RateLimitPerMin,
		MaxAttempts: cfg.Gather.MaxAttempts,
		RetryDelay:  2 * time.Second,
	})

	slog.Info("starting gatherer", "name", g.Name(), "tickers", len(tickers))
	if err := g.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}

func importCSV(ctx context.Context, ps *store.ParquetStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	obs, err := store.ReadObservationsCSV(f)
	if err != nil {
		return err
	}
	if err := ps.WriteObservations(ctx, obs); err != nil {
		return err
	}
	slog.Info("csv imported", "path", path, "rows", len(obs))
	return nil
}
