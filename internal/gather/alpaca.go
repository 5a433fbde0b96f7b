package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"panelsim/internal/domain"
	"panelsim/internal/store"
	"panelsim/internal/util"
)

var _ Gatherer = (*AlpacaGatherer)(nil)

// BarClient is the subset of the Alpaca market-data client used here.
type BarClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// AlpacaOptions configures an AlpacaGatherer.
type AlpacaOptions struct {
	Tickers     []string
	Range       DateRange
	Feed        string
	BatchSize   int // tickers per API call
	MaxWorkers  int
	RatePerMin  int // API calls per minute; 0 disables limiting
	MaxAttempts int
	RetryDelay  time.Duration
}

// AlpacaGatherer fetches daily OHLCV bars from the Alpaca market-data API
// and writes them to a PanelStore as observations. Alpaca carries no
// fundamentals, so ratio features are left at zero.
type AlpacaGatherer struct {
	client  BarClient
	store   store.PanelStore
	opts    AlpacaOptions
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaClient builds a market-data client. An empty dataURL uses the
// Alpaca default.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// NewAlpacaGatherer creates a gatherer writing to s.
func NewAlpacaGatherer(client BarClient, s store.PanelStore, opts AlpacaOptions) *AlpacaGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Feed == "" {
		opts.Feed = "sip"
	}
	return &AlpacaGatherer{
		client:  client,
		store:   s,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RatePerMin),
		log:     slog.Default().With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaGatherer) Name() string { return "alpaca-daily" }

// Run fetches bars for every configured ticker in batches. A failed batch is
// logged and skipped; Run reports how many failed once all are attempted.
func (g *AlpacaGatherer) Run(ctx context.Context) error {
	if len(g.opts.Tickers) == 0 {
		return errors.New("no tickers to gather")
	}

	var batches [][]string
	for i := 0; i < len(g.opts.Tickers); i += g.opts.BatchSize {
		end := min(i+g.opts.BatchSize, len(g.opts.Tickers))
		batches = append(batches, g.opts.Tickers[i:end])
	}

	g.log.Info("starting alpaca-daily",
		"tickers", len(g.opts.Tickers),
		"batches", len(batches),
		"start", domain.FormatDate(g.opts.Range.Start),
		"end", domain.FormatDate(g.opts.Range.End),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg       sync.WaitGroup
		rows     atomic.Int64
		failed   atomic.Int64
		runStart = time.Now()
	)
	workers := min(g.opts.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				n, err := g.runBatch(ctx, batches[idx])
				if err != nil {
					failed.Add(1)
					g.log.Error("batch failed",
						"batch", fmt.Sprintf("%d/%d", idx+1, len(batches)),
						"err", err,
					)
					continue
				}
				rows.Add(int64(n))
				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", idx+1, len(batches)),
					"rows", n,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	g.log.Info("complete",
		"rows", rows.Load(),
		"failed_batches", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	return nil
}

func (g *AlpacaGatherer) runBatch(ctx context.Context, tickers []string) (int, error) {
	var bars map[string][]marketdata.Bar
	err := util.Retry(ctx, g.opts.MaxAttempts, g.opts.RetryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		bars, err = g.client.GetMultiBars(tickers, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     g.opts.Range.Start,
			End:       g.opts.Range.End.AddDate(0, 0, 1),
			Feed:      marketdata.Feed(g.opts.Feed),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("GetMultiBars: %w", err)
	}

	obs := BarsToObservations(bars)
	if len(obs) == 0 {
		return 0, nil
	}
	if err := g.store.WriteObservations(ctx, obs); err != nil {
		return 0, fmt.Errorf("writing observations: %w", err)
	}
	return len(obs), nil
}

// BarsToObservations converts Alpaca daily bars keyed by symbol into panel
// observations dated by the bar's calendar day in New York.
func BarsToObservations(bars map[string][]marketdata.Bar) []domain.Observation {
	var obs []domain.Observation
	for symbol, list := range bars {
		for _, b := range list {
			obs = append(obs, domain.Observation{
				Ticker: symbol,
				Date:   domain.Day(b.Timestamp.In(util.Eastern())),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: float64(b.Volume),
			})
		}
	}
	return obs
}
