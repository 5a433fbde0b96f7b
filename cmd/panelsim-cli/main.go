package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"panelsim/internal/config"
	"panelsim/internal/domain"
	"panelsim/internal/panel"
	"panelsim/internal/report"
	"panelsim/internal/store"
	"panelsim/internal/strategy"
	"panelsim/internal/strategy/builtins"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: panelsim-cli <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version         Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  strategies      List registered strategies\n")
		fmt.Fprintf(os.Stderr, "  features        List panel features\n")
		fmt.Fprintf(os.Stderr, "  tickers         List tickers in the panel store\n")
		fmt.Fprintf(os.Stderr, "  feature <ticker> <name> [start] [end]\n")
		fmt.Fprintf(os.Stderr, "                  Print one feature series for a ticker\n")
		fmt.Fprintf(os.Stderr, "  runs            List saved runs\n")
		fmt.Fprintf(os.Stderr, "  show <key>      Print one saved run\n")
		fmt.Fprintf(os.Stderr, "  delete <key>    Delete one saved run\n")
		fmt.Fprintf(os.Stderr, "\nThe config file is read from $%s.\n", config.EnvConfigPath)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "version":
		fmt.Printf("panelsim-cli %s\n", version)
		return nil

	case "strategies":
		r := strategy.NewRegistry()
		builtins.Register(r)
		for _, name := range r.List() {
			s, err := r.New(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-22s lookback=%d signature=%s\n", name, s.RequiredNumberDates(), strategy.Signature(s))
		}
		return nil

	case "features":
		for _, name := range append(append([]string(nil), domain.FeatureNames...), domain.FeaturePrice) {
			desc, _ := domain.FeatureDescription(name)
			fmt.Printf("%-18s %s\n", name, desc)
		}
		return nil
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd == "tickers" {
		tickers, err := store.NewParquetStore(cfg.Storage.DataDir).ListTickers(ctx)
		if err != nil {
			return err
		}
		for _, t := range tickers {
			fmt.Println(t)
		}
		return nil
	}

	if cmd == "feature" {
		return printFeature(ctx, store.NewParquetStore(cfg.Storage.DataDir), cfg.Backtest, args)
	}

	hist, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer hist.Close()

	switch cmd {
	case "runs":
		runs, err := hist.ListRuns(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSTRATEGY\tSHARPE\tRETURN/DD\tSAVED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.Key, r.Strategy, report.FormatOptional(r.Sharpe), report.FormatOptional(r.ReturnToDrawdown),
				r.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return tw.Flush()

	case "show":
		if len(args) != 1 {
			return errors.New("show needs a run key")
		}
		r, err := hist.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("key:            %s\n", r.Key)
		fmt.Printf("run id:         %s\n", r.RunID)
		fmt.Printf("strategy:       %s (%s)\n", r.Strategy, r.Signature)
		fmt.Printf("range:          %s .. %s %s\n", domain.FormatDate(r.Start), domain.FormatDate(r.End), r.Frequency)
		fmt.Printf("portfolio:      value=%g long<=%g short<=%g rf=%g\n", r.InitialValue, r.MaxLong, r.MaxShort, r.RiskFreeRate)
		fmt.Printf("sharpe:         %s\n", report.FormatOptional(r.Sharpe))
		fmt.Printf("return/dd:      %s\n", report.FormatOptional(r.ReturnToDrawdown))
		fmt.Printf("cap breaches:   %d\n", r.CapBreaches)
		return report.WriteValueHistory(os.Stdout, r.TradedDates, r.ValueHistory)

	case "delete":
		if len(args) != 1 {
			return errors.New("delete needs a run key")
		}
		return hist.DeleteRun(ctx, args[0])
	}

	flag.Usage()
	return fmt.Errorf("unknown command: %s", cmd)
}

// printFeature prints a ticker's feature series between optional start and
// end dates, which default to the configured backtest range.
func printFeature(ctx context.Context, ps *store.ParquetStore, bt config.Backtest, args []string) error {
	if len(args) < 2 || len(args) > 4 {
		return errors.New("feature needs a ticker, a feature name and optional start and end dates")
	}
	ticker, name := args[0], args[1]
	if _, err := domain.FeatureDescription(name); err != nil {
		return err
	}

	startArg, endArg := bt.StartDate, bt.EndDate
	if len(args) > 2 {
		startArg = args[2]
	}
	if len(args) > 3 {
		endArg = args[3]
	}
	start, err := domain.ParseDate(startArg)
	if err != nil {
		return err
	}
	end, err := domain.ParseDate(endArg)
	if err != nil {
		return err
	}

	obs, err := ps.ReadObservations(ctx, ticker, start, end)
	if err != nil {
		return err
	}
	p, err := panel.New([]string{ticker}, obs)
	if err != nil {
		return err
	}
	values, dates, err := p.Feature(ticker, name, start, end)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DATE\t%s\n", strings.ToUpper(name))
	for i, d := range dates {
		fmt.Fprintf(tw, "%s\t%s\n", domain.FormatDate(d), report.FormatValue(values[i]))
	}
	return tw.Flush()
}
