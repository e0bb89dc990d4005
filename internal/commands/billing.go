package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/billing"
	"github.com/edubill-dev/edubill/internal/model"
)

func newPolicyCommand() *cobra.Command {
	var months int
	var start, end, cycle string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show which billing cycles a course duration allows",
		Example: `  edubill policy --months 5
  edubill policy --start 2025-01-01 --end 2025-06-30 --cycle quarterly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if start != "" || end != "" {
				s, err := parseDate("start", start)
				if err != nil {
					return err
				}
				e, err := parseDate("end", end)
				if err != nil {
					return err
				}
				months = billing.DurationMonths(s, e)
			}
			return printPolicy(cmd.OutOrStdout(), months, cycle)
		},
	}

	cmd.Flags().IntVar(&months, "months", 0, "course duration in months")
	cmd.Flags().StringVar(&start, "start", "", "course start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "course end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&cycle, "cycle", "", "billing cycle to check")
	cmd.MarkFlagsRequiredTogether("start", "end")
	cmd.MarkFlagsMutuallyExclusive("months", "start")

	return cmd
}

func printPolicy(w io.Writer, months int, cycle string) error {
	fmt.Fprintf(w, "Duration: %d month(s)\n", months)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tMIN MONTHS\tALLOWED")
	for _, o := range billing.Options(months) {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Cycle, o.MinMonths, yesNo(o.Enabled))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if cycle == "" {
		return nil
	}
	selected, err := model.ParseBillingCycle(cycle)
	if err != nil {
		return err
	}
	effective, err := billing.CheckDuration(selected, months)
	if err != nil {
		fmt.Fprintf(w, "Warning: %v; using %s\n", err, effective)
		return nil
	}
	fmt.Fprintf(w, "%s is allowed\n", effective)
	return nil
}

func newObligationsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "obligations <account-id>",
		Aliases: []string{"schedule"},
		Short:   "Show the billing schedule and payable cycles of an account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				views, err := a.billing.Obligations(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printObligations(cmd.OutOrStdout(), views)
			})
		},
	}
}

func printObligations(w io.Writer, views []billing.EnrollmentView) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No active enrollments.")
		return nil
	}
	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(w)
		}
		name := v.Course.Name
		if name == "" {
			name = v.Course.ID
		}
		fmt.Fprintf(w, "%s (%s): %d cycle(s), total %s, paid %s, outstanding %s\n",
			name, v.Course.PaymentType, v.Projection.TotalCycles,
			v.TotalFee.StringFixed(2), v.TotalPaid.StringFixed(2), v.TotalOutstanding.StringFixed(2))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CYCLE\tDUE\tAMOUNT\tSTATUS\tCHARGE")
		rows := append(append([]billing.Obligation{}, v.History...), v.Obligations...)
		for _, o := range rows {
			charge := "-"
			if o.Charge != nil {
				charge = o.Charge.ID
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				o.Cycle.Label, o.Cycle.DueDate.Format(time.DateOnly), o.Cycle.Amount.StringFixed(2), o.Status, charge)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, c := range v.Orphans {
			fmt.Fprintf(w, "Unmatched charge %s: %q %s\n", c.ID, c.Period, c.Amount.StringFixed(2))
		}
	}
	return nil
}

func parseDate(flag, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, model.Invalid(flag, "must be a YYYY-MM-DD date")
	}
	return t, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
