package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/notify"
	"github.com/edubill-dev/edubill/internal/payment"
)

func newPayCommand(g *globalFlags) *cobra.Command {
	var chargeIDs []string
	var method, last4, brand string

	cmd := &cobra.Command{
		Use:   "pay <account-id>",
		Short: "Settle outstanding charges from the balance, a card, or both",
		Example: `  edubill pay acct-1 --charge m1 --method balance
  edubill pay acct-1 --charge m1 --charge a1 --method combined --card-last4 4242`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := payment.CheckoutParams{
				AccountID: args[0],
				ChargeIDs: chargeIDs,
				Method:    model.PaymentMethod(method),
			}
			if last4 != "" {
				params.Instrument = &model.Instrument{Brand: brand, Last4: last4}
			}

			return withApp(cmd.Context(), g, func(a *app) error {
				unsubscribe := a.bus.Subscribe(func(_ context.Context, n notify.Notice) {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", n.Kind, n.Title, n.Message)
				})
				defer unsubscribe()

				receipt, err := a.payments.Checkout(cmd.Context(), params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reference %s, balance %s\n",
					receipt.Transaction.Reference, receipt.Transaction.BalanceAfter.StringFixed(2))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&chargeIDs, "charge", nil, "charge ID to settle (repeatable, required)")
	cmd.Flags().StringVar(&method, "method", string(model.MethodBalance), "balance, card or combined")
	cmd.Flags().StringVar(&last4, "card-last4", "", "last four digits of the card")
	cmd.Flags().StringVar(&brand, "card-brand", "", "card brand")
	_ = cmd.MarkFlagRequired("charge")

	return cmd
}
