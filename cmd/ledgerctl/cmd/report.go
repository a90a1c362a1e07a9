package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ukydev/vehicle-ledger/internal/models"
	"github.com/ukydev/vehicle-ledger/internal/reminders"
)

func newRemindersCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "List armed maintenance reminders, most pressing first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := e.ledger.GetUpcomingServices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if e.asJSON {
				return printJSON(out, rs)
			}
			if len(rs) == 0 {
				fmt.Fprintln(out, "No reminders armed.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STATUS\tSERVICE\tSUPPLIER\tDUE\tREMAINING")
			for _, r := range rs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Status, r.Service, r.Supplier, due(r), remaining(r))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			counts := reminders.Counts(rs)
			fmt.Fprintf(out, "\n%d overdue, %d urgent, %d warning, %d upcoming\n",
				counts[reminders.StatusOverdue], counts[reminders.StatusUrgent],
				counts[reminders.StatusWarning], counts[reminders.StatusUpcoming])
			return nil
		},
	}
}

func due(r reminders.Reminder) string {
	switch {
	case r.DueDate != nil:
		return r.DueDate.String()
	case r.DueKm != nil:
		return fmt.Sprintf("%.0f km", *r.DueKm)
	}
	return "-"
}

func remaining(r reminders.Reminder) string {
	if r.Unit == reminders.UnitKm {
		return fmt.Sprintf("%.0f km", r.Remaining)
	}
	return fmt.Sprintf("%.0f days", r.Remaining)
}

func newEfficiencyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "efficiency",
		Short: "Summarize fuel consumption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := e.ledger.GetFuelEfficiency(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if e.asJSON {
				return printJSON(out, summary)
			}
			if summary == nil {
				fmt.Fprintln(out, "Not enough fill-ups yet: at least two with distance and fuel are needed.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tODOMETER\tDISTANCE\tLITERS\tKM/L\tL/100KM")
			for _, iv := range summary.Intervals {
				fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%.2f\t%.2f\t%.2f\n",
					iv.Date, iv.Odometer, iv.Distance, iv.Liters, iv.KmPerLiter, iv.LitersPer100Km)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\naverage %.2f km/L, %.2f L/100km over %.0f km; %.4f per km\n",
				summary.AvgKmPerLiter, summary.AvgLitersPer100Km, summary.TotalDistance, summary.CostPerKm)
			return nil
		},
	}
}

func newTotalsCmd(e *env) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:       "totals [kind]",
		Short:     "Show running savings totals and their breakdown",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(models.TotalSavings), string(models.TotalCarSavings)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if rebuild {
				if err := e.ledger.RebuildTotals(ctx); err != nil {
					return err
				}
			}

			kinds := models.TotalKinds
			if len(args) == 1 {
				kinds = []models.TotalKind{models.TotalKind(args[0])}
			}

			out := cmd.OutOrStdout()
			for _, kind := range kinds {
				b, err := e.ledger.GetBreakdown(ctx, kind)
				if err != nil {
					return err
				}
				if e.asJSON {
					if err := printJSON(out, b); err != nil {
						return err
					}
					continue
				}
				total, err := e.ledger.GetRunningTotal(ctx, kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %.2f (%d entries)\n", kind, total.Total, total.RecordCount)
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, bucket := range b.Buckets {
					fmt.Fprintf(tw, "  %s\t%.2f\t%.2f%%\n", bucket.Source, bucket.Amount, bucket.Percent)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if b.Goal > 0 {
					fmt.Fprintf(out, "  goal %.2f, %.2f%% reached\n", b.Goal, b.Progress)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "recompute totals from the raw entries first")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
