package commands

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/model"
)

type postingFlags struct {
	amount      string
	description string
	reference   string
	on          string
}

func (f *postingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, e.g. 150.00 (required)")
	cmd.Flags().StringVar(&f.description, "description", "", "description (required)")
	cmd.Flags().StringVar(&f.reference, "reference", "", "external reference")
	cmd.Flags().StringVar(&f.on, "on", "", "schedule for this date (YYYY-MM-DD) instead of posting now")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("description")
}

func (f *postingFlags) run(cmd *cobra.Command, g *globalFlags, accountID string, txType model.TransactionType) error {
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return model.Invalid("amount", fmt.Sprintf("%q is not a number", f.amount))
	}
	params := ledger.PostParams{
		AccountID:   accountID,
		Amount:      amount,
		Description: f.description,
		Reference:   f.reference,
	}

	return withApp(cmd.Context(), g, func(a *app) error {
		ctx := cmd.Context()
		var tx model.Transaction
		switch {
		case f.on != "":
			when, err := parseDate("on", f.on)
			if err != nil {
				return err
			}
			tx, err = a.ledger.Schedule(ctx, ledger.ScheduleParams{PostParams: params, Type: txType, ScheduledFor: &when})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s %s %s for %s (id %s)\n",
				tx.Reference, tx.Type, amount.StringFixed(2), when.Format(time.DateOnly), tx.ID)
			return nil
		case txType == model.TypeTopUp:
			tx, err = a.ledger.TopUp(ctx, params)
		default:
			tx, err = a.ledger.Charge(ctx, params)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Posted %s %s, balance %s\n",
			tx.Reference, tx.Amount.StringFixed(2), tx.BalanceAfter.StringFixed(2))
		return nil
	})
}

func newTopUpCommand(g *globalFlags) *cobra.Command {
	var f postingFlags
	cmd := &cobra.Command{
		Use:   "topup <account-id>",
		Short: "Credit an account, now or on a scheduled date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, g, args[0], model.TypeTopUp)
		},
	}
	f.register(cmd)
	return cmd
}

func newChargeCommand(g *globalFlags) *cobra.Command {
	var f postingFlags
	cmd := &cobra.Command{
		Use:   "charge <account-id>",
		Short: "Debit an account, now or on a scheduled date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, g, args[0], model.TypeCharge)
		},
	}
	f.register(cmd)
	return cmd
}

func newExecuteCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <transaction-id>",
		Short: "Execute a scheduled entry now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				tx, err := a.ledger.Execute(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Executed %s, balance %s\n", tx.Reference, tx.BalanceAfter.StringFixed(2))
				return nil
			})
		},
	}
}

func newCancelCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <transaction-id>",
		Short: "Cancel a scheduled entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				tx, err := a.ledger.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", tx.Reference)
				return nil
			})
		},
	}
}

func newRunScheduledCommand(g *globalFlags) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "run-scheduled",
		Short: "Execute every scheduled entry that is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				cutoff := a.ledger.Now()
				if asOf != "" {
					d, err := parseDate("as-of", asOf)
					if err != nil {
						return err
					}
					cutoff = d
				}
				report, err := a.ledger.ExecuteDue(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "treat entries due on or before this date as due (default now)")
	return cmd
}

func printReport(w io.Writer, report ledger.ExecutionReport) {
	for _, tx := range report.Executed {
		fmt.Fprintf(w, "Executed %s %s, balance %s\n", tx.Reference, tx.Amount.StringFixed(2), tx.BalanceAfter.StringFixed(2))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "Skipped %s: %v\n", f.ID, f.Err)
	}
	fmt.Fprintf(w, "%d executed, %d skipped\n", len(report.Executed), len(report.Failed))
}

func newLedgerCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the transaction log",
	}
	cmd.AddCommand(newLedgerListCommand(g), newLedgerVerifyCommand(g))
	return cmd
}

func newLedgerListCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <account-id>",
		Short: "List an account's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				entries, err := a.ledger.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func printEntries(w io.Writer, entries []model.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tTYPE\tSTATUS\tAMOUNT\tBALANCE\tDATE\tDESCRIPTION")
	for _, tx := range entries {
		date := tx.CreatedAt
		balance := "-"
		switch {
		case tx.PostedAt != nil:
			date = *tx.PostedAt
			balance = tx.BalanceAfter.StringFixed(2)
		case tx.ScheduledFor != nil:
			date = *tx.ScheduledFor
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Reference, tx.Type, tx.Status, tx.Amount.StringFixed(2), balance, date.Format(time.DateOnly), tx.Description)
	}
	return tw.Flush()
}

func newLedgerVerifyCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [account-id]",
		Short: "Check ledger invariants for one or every account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(a *app) error {
				results := map[string][]ledger.InvariantError{}
				if len(args) == 1 {
					violations, err := a.ledger.VerifyAccount(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					results[args[0]] = violations
				} else {
					var err error
					results, err = a.ledger.VerifyAll(cmd.Context())
					if err != nil {
						return err
					}
				}
				return printVerification(cmd.OutOrStdout(), results)
			})
		},
	}
}

func printVerification(w io.Writer, results map[string][]ledger.InvariantError) error {
	ids := make([]string, 0, len(results))
	total := 0
	for id, v := range results {
		ids = append(ids, id)
		total += len(v)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, v := range results[id] {
			fmt.Fprintf(w, "%s: %v\n", id, v)
		}
	}
	if total > 0 {
		return fmt.Errorf("%d invariant violation(s)", total)
	}
	fmt.Fprintln(w, "Ledger OK")
	return nil
}
