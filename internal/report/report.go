// Package report renders simulation results for the terminal.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"time"

	"panelsim/internal/domain"
	"panelsim/internal/simulator"
)

// WriteResult prints the metrics of one run. With verbose set the value after
// every traded date is listed first.
func WriteResult(w io.Writer, res *simulator.Result, verbose bool) error {
	fmt.Fprintf(w, "%s (%s)\n", res.Strategy, res.Key())
	if verbose {
		if err := WriteValueHistory(w, res.TradedDates, res.ValueHistory); err != nil {
			return err
		}
	}

	m := res.Metrics
	sharpe := "undefined"
	if m.SharpeDefined {
		sharpe = FormatValue(m.Sharpe)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  sharpe\t%s\n", sharpe)
	fmt.Fprintf(tw, "  return/drawdown\t%s\n", FormatValue(m.ReturnToDrawdown))
	fmt.Fprintf(tw, "  final value\t%s\n", FormatValue(m.FinalValue))
	fmt.Fprintf(tw, "  total return\t%s\n", FormatReturn(m.TotalReturn))
	fmt.Fprintf(tw, "  periods\t%s\n", FormatInt(m.Periods))
	fmt.Fprintf(tw, "  cap breaches\t%s\n", FormatInt(res.CapBreaches))
	fmt.Fprintf(tw, "  elapsed\t%s\n", res.Elapsed.Round(time.Millisecond))
	return tw.Flush()
}

// WriteValueHistory prints the starting value followed by the value after
// each traded date. history must be one longer than dates.
func WriteValueHistory(w io.Writer, dates []time.Time, history []float64) error {
	if len(history) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\tvalue\treturn\t")
	fmt.Fprintf(tw, "start\t%s\t\t\n", FormatValue(history[0]))
	for i, d := range dates {
		if i+1 >= len(history) {
			break
		}
		ret := history[i+1]/history[i] - 1
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", domain.FormatDate(d), FormatValue(history[i+1]), FormatReturn(ret))
	}
	return tw.Flush()
}

// WriteSweep prints one row per outcome, best Sharpe first. Runs with an
// undefined Sharpe sort after defined ones and failed runs come last.
func WriteSweep(w io.Writer, outcomes []simulator.Outcome) error {
	rows := append([]simulator.Outcome(nil), outcomes...)
	sort.SliceStable(rows, func(i, j int) bool {
		return sweepRank(rows[i]) > sweepRank(rows[j])
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tSHARPE\tRETURN/DD\tTOTAL\tBREACHES\tSTATUS")
	for _, o := range rows {
		if o.Result == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%v\n", o.Name, o.Err)
			continue
		}
		m := o.Result.Metrics
		sharpe := "-"
		if m.SharpeDefined {
			sharpe = FormatValue(m.Sharpe)
		}
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.Name, sharpe, FormatValue(m.ReturnToDrawdown), FormatReturn(m.TotalReturn),
			o.Result.CapBreaches, status)
	}
	return tw.Flush()
}

func sweepRank(o simulator.Outcome) float64 {
	switch {
	case o.Result == nil || o.Err != nil:
		return math.Inf(-1)
	case !o.Result.Metrics.SharpeDefined:
		return -math.MaxFloat64
	}
	return o.Result.Metrics.Sharpe
}
