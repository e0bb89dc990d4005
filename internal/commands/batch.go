package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/eligibility"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/model"
)

type criteriaFlags struct {
	minAge, maxAge         int
	minBalance, maxBalance string
	schooling              string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.minAge, "min-age", -1, "minimum holder age")
	cmd.Flags().IntVar(&f.maxAge, "max-age", -1, "maximum holder age")
	cmd.Flags().StringVar(&f.minBalance, "min-balance", "", "minimum account balance")
	cmd.Flags().StringVar(&f.maxBalance, "max-balance", "", "maximum account balance")
	cmd.Flags().StringVar(&f.schooling, "schooling", "", "in_school, not_in_school or graduated")
}

func (f *criteriaFlags) criteria() (eligibility.Criteria, error) {
	var c eligibility.Criteria
	if f.minAge >= 0 {
		c.MinAge = &f.minAge
	}
	if f.maxAge >= 0 {
		c.MaxAge = &f.maxAge
	}
	for _, b := range []struct {
		flag string
		raw  string
		dst  **decimal.Decimal
	}{
		{"min-balance", f.minBalance, &c.MinBalance},
		{"max-balance", f.maxBalance, &c.MaxBalance},
	} {
		if b.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(b.raw)
		if err != nil {
			return c, model.Invalid(b.flag, fmt.Sprintf("%q is not a number", b.raw))
		}
		*b.dst = &d
	}
	if f.schooling != "" {
		st, err := model.ParseSchoolingStatus(f.schooling)
		if err != nil {
			return c, model.Invalid("schooling", err.Error())
		}
		c.SchoolingStatus = &st
	}
	return c, nil
}

func newBatchTopUpCommand(g *globalFlags) *cobra.Command {
	var cf criteriaFlags
	var description, mode, amount string
	var preview bool

	cmd := &cobra.Command{
		Use:   "batch-topup",
		Short: "Credit every account matching the criteria",
		Example: `  edubill batch-topup --description "Bursary 2025" --amount 100 --min-age 13 --max-age 16
  edubill batch-topup --description "Grant" --amount 1000 --mode distribute_evenly --schooling in_school --preview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := cf.criteria()
			if err != nil {
				return err
			}
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return model.Invalid("amount", fmt.Sprintf("%q is not a number", amount))
			}
			distribution, err := model.ParseDistributionMode(mode)
			if err != nil {
				return model.Invalid("mode", err.Error())
			}

			return withApp(cmd.Context(), g, func(a *app) error {
				w := cmd.OutOrStdout()
				if preview {
					cands, plan, err := a.ledger.Preview(cmd.Context(), criteria, distribution, amt)
					if err != nil {
						return err
					}
					ids := eligibility.AccountIDs(cands)
					fmt.Fprintf(w, "Eligible: %s\n", strings.Join(ids, ", "))
					printPlan(w, plan)
					return nil
				}

				result, err := a.ledger.BatchTopUp(cmd.Context(), ledger.BatchParams{
					Description: description,
					Mode:        distribution,
					Amount:      amt,
					Criteria:    criteria,
				})
				if err != nil {
					return err
				}
				printPlan(w, result.Allocation)
				for _, f := range result.Failures {
					fmt.Fprintf(w, "Failed %s: %v\n", f.ID, f.Err)
				}
				if result.Batch == nil {
					return fmt.Errorf("no account was credited")
				}
				fmt.Fprintf(w, "Batch %s: %s credited to %d account(s)\n",
					result.Batch.ID, result.Batch.TotalAmount.StringFixed(2), result.Batch.AccountCount)
				return nil
			})
		},
	}

	cf.register(cmd)
	cmd.Flags().StringVar(&description, "description", "", "description (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount per account, or total with distribute_evenly (required)")
	cmd.Flags().StringVar(&mode, "mode", string(model.DistributePerAccount), "per_account or distribute_evenly")
	cmd.Flags().BoolVar(&preview, "preview", false, "show the eligible accounts without posting")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func printPlan(w io.Writer, plan eligibility.Allocation) {
	fmt.Fprintf(w, "%d account(s) x %s = %s", plan.Count, plan.PerAccount.StringFixed(2), plan.Total.StringFixed(2))
	if plan.Remainder.IsPositive() {
		fmt.Fprintf(w, " (%s undistributed)", plan.Remainder.StringFixed(2))
	}
	fmt.Fprintln(w)
}
