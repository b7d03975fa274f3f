package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hed1ad/goledger/pkg/detectors"
	"github.com/hed1ad/goledger/pkg/io/csv"
	"github.com/hed1ad/goledger/pkg/record"
	"github.com/hed1ad/goledger/pkg/stats/welford"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "goledger",
		Short:         "Query a CSV ledger with indexed, streaming analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return a.writeMetrics(cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "goledger.yaml", "YAML config file (optional)")
	root.PersistentFlags().StringVarP(&a.ledgerPath, "file", "f", "", "CSV ledger to load")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newRangeCmd(a),
		newMonthCmd(a),
		newTopCmd(a),
		newCategoriesCmd(a),
		newTrendCmd(a),
		newAnomaliesCmd(a),
		newBudgetsCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
	)
	return root
}

func newRangeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "range START END",
		Short: "List records dated within [START, END] (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range args {
				if _, err := record.ParseDate(d); err != nil {
					return err
				}
			}
			printRecords(cmd.OutOrStdout(), a.book.Range(args[0], args[1]))
			return nil
		},
	}
}

func newMonthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "month YYYY-MM",
		Short: "List the records of one month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := record.ParseDate(args[0] + "-01"); err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), a.book.Month(args[0]))
			return nil
		},
	}
}

func newTopCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the largest expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printRecords(cmd.OutOrStdout(), a.book.Top(k))
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of records")
	return cmd
}

func newCategoriesCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Rank categories by total spending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for i, c := range a.book.Categories(k) {
				fmt.Fprintf(w, "%2d. %-16s %12s\n", i+1, c.Category, csv.FormatAmount(c.Amount))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of categories (0 for all)")
	return cmd
}

func newTrendCmd(a *app) *cobra.Command {
	var end string
	var days bool
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Summarize the trailing window of daily totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, ok, err := a.book.Trend(end)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(w, "no records in window")
				return nil
			}

			direction := "flat"
			switch {
			case tr.Direction > 0:
				direction = "rising"
			case tr.Direction < 0:
				direction = "falling"
			}
			fmt.Fprintf(w, "window:   %s .. %s (%d days with records, %d-day window)\n",
				tr.StartDate, tr.EndDate, tr.Days, a.cfg.WindowDays)
			fmt.Fprintf(w, "income:   %s total, %s/day\n", csv.FormatAmount(tr.TotalInflow), csv.FormatAmount(tr.AvgInflow))
			fmt.Fprintf(w, "expenses: %s total, %s/day\n", csv.FormatAmount(tr.TotalOutflow), csv.FormatAmount(tr.AvgOutflow))
			fmt.Fprintf(w, "spending: %s (%+.2f/day)\n", direction, tr.Direction)

			if days {
				for _, d := range a.book.Days() {
					fmt.Fprintf(w, "  %s  in %10s  out %10s  (%d)\n",
						d.Date, csv.FormatAmount(d.Inflow), csv.FormatAmount(d.Outflow), d.Count)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "last day of the window (default: newest record)")
	cmd.Flags().BoolVar(&days, "days", false, "list the daily totals")
	return cmd
}

func newAnomaliesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "anomalies",
		Short: "List records and days whose amount is unusual",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.book.ScanDaily()

			w := cmd.OutOrStdout()
			scores := a.book.Anomalies()
			if len(scores) == 0 {
				fmt.Fprintln(w, "no anomalies")
				return nil
			}
			for _, s := range scores {
				printScore(w, s)
			}
			fmt.Fprintf(w, "%d anomalies (threshold %.1f)\n", len(scores), a.cfg.Anomaly.Threshold)
			return nil
		},
	}
}

func newBudgetsCmd(a *app) *cobra.Command {
	var alertsOnly bool
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Show category budgets, most consumed first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := a.book.Budgets()
			if alertsOnly {
				entries = a.book.Alerts()
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no budgets")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(w, "%-16s %10s / %-10s %6.1f%%  %s\n",
					e.Key, csv.FormatAmount(e.Spent), csv.FormatAmount(e.Limit), e.Priority, e.Level())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&alertsOnly, "alerts", false, "only budgets at or above queue.alert_threshold")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show streaming statistics per series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			tr := a.book.Tracker()
			printSummary(w, "expenses", tr.OutflowStats())
			printSummary(w, "income", tr.InflowStats())
			for _, c := range tr.Categories() {
				if s, ok := tr.CategoryStats(c); ok {
					printSummary(w, "  "+c, s)
				}
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export OUT.csv",
		Short: "Write every record to a CSV file, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := csv.Create(args[0])
			if err != nil {
				return err
			}
			if err := w.WriteAll(a.book.Records()); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", a.book.Len(), args[0])
			return nil
		},
	}
}

func printRecords(w io.Writer, records []record.Record) {
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-7s %12s  %-16s %s\n",
			r.Date, r.Kind, csv.FormatAmount(r.Amount), r.Category, r.Note)
	}
	fmt.Fprintf(w, "%d records\n", len(records))
}

func printScore(w io.Writer, s detectors.Score) {
	fmt.Fprintf(w, "[%s] %s  %s\n", s.Severity, s.Record.Date, s.Description)
}

func printSummary(w io.Writer, name string, s welford.Summary) {
	fmt.Fprintf(w, "%-18s n=%-5d mean=%-10.2f sd=%-10.2f min=%-10.2f max=%-10.2f anomalies=%d\n",
		name, s.Count, s.Mean, s.StdDev, s.Min, s.Max, s.Anomalies)
}
