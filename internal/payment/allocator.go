// Package payment settles selected outstanding charges from the stored
// balance, an external instrument, or both.
package payment

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// AllocationInput is what Allocate splits.
type AllocationInput struct {
	Charges    []model.OutstandingCharge
	Method     model.PaymentMethod
	Balance    decimal.Decimal
	Instrument *model.Instrument
}

// Allocation is the computed balance/instrument split of a checkout.
type Allocation struct {
	Method      model.PaymentMethod
	Total       decimal.Decimal
	BalanceUsed decimal.Decimal
	External    decimal.Decimal
	Instrument  *model.Instrument
}

// BalanceAfter is the stored balance once the allocation is applied.
func (a Allocation) BalanceAfter(balance decimal.Decimal) decimal.Decimal {
	return balance.Sub(a.BalanceUsed)
}

// Legs returns the funding legs of the payment entry: a balance leg and/or a
// card leg tagged with the instrument's last 4 digits.
func (a Allocation) Legs() []model.PaymentLeg {
	var legs []model.PaymentLeg
	if a.BalanceUsed.IsPositive() {
		legs = append(legs, model.PaymentLeg{Method: model.MethodBalance, Amount: a.BalanceUsed})
	}
	if a.External.IsPositive() {
		leg := model.PaymentLeg{Method: model.MethodCard, Amount: a.External}
		if a.Instrument != nil {
			leg.Last4 = a.Instrument.Last4
		}
		legs = append(legs, leg)
	}
	return legs
}

// Total sums the charge amounts.
func Total(charges []model.OutstandingCharge) decimal.Decimal {
	return lo.Reduce(charges, func(sum decimal.Decimal, c model.OutstandingCharge, _ int) decimal.Decimal {
		return sum.Add(c.Amount)
	}, decimal.Zero)
}

// AvailableMethods lists the payment methods offered for a balance and total.
func AvailableMethods(balance, total decimal.Decimal) []model.PaymentMethod {
	var methods []model.PaymentMethod
	if balance.GreaterThanOrEqual(total) {
		methods = append(methods, model.MethodBalance)
	}
	methods = append(methods, model.MethodCard)
	if balance.IsPositive() && balance.LessThan(total) {
		methods = append(methods, model.MethodCombined)
	}
	return methods
}

// Allocate computes how a selection of charges is funded. It has no side
// effects; a failed allocation changes nothing.
func Allocate(in AllocationInput) (Allocation, error) {
	if err := validateSelection(in.Charges); err != nil {
		return Allocation{}, err
	}
	total := Total(in.Charges)
	a := Allocation{Method: in.Method, Total: total, BalanceUsed: decimal.Zero, External: decimal.Zero}

	switch in.Method {
	case model.MethodBalance:
		if in.Balance.LessThan(total) {
			return Allocation{}, fmt.Errorf("%w: balance %s, selected %s",
				model.ErrInsufficientBalance, in.Balance.StringFixed(2), total.StringFixed(2))
		}
		a.BalanceUsed = total
	case model.MethodCard:
		if !hasInstrument(in.Instrument) {
			return Allocation{}, model.ErrMissingPaymentInstrument
		}
		a.External = total
		a.Instrument = in.Instrument
	case model.MethodCombined:
		if !in.Balance.IsPositive() || !in.Balance.LessThan(total) {
			return Allocation{}, model.Invalid("method", "combined payment needs a balance between zero and the selected total")
		}
		if !hasInstrument(in.Instrument) {
			return Allocation{}, model.ErrMissingPaymentInstrument
		}
		a.BalanceUsed = decimal.Min(in.Balance, total)
		a.External = total.Sub(a.BalanceUsed)
		a.Instrument = in.Instrument
	default:
		return Allocation{}, model.Invalid("method", fmt.Sprintf("unknown payment method %q", in.Method))
	}
	return a, nil
}

func hasInstrument(inst *model.Instrument) bool {
	return inst != nil && inst.Last4 != ""
}

func validateSelection(charges []model.OutstandingCharge) error {
	if len(charges) == 0 {
		return model.Invalid("charge_ids", "select at least one charge")
	}
	accountID := charges[0].AccountID
	seen := make(map[string]bool, len(charges))
	for _, c := range charges {
		if c.AccountID != accountID {
			return model.Invalid("charge_ids", "charges belong to different accounts")
		}
		if seen[c.ID] {
			return model.Invalid("charge_ids", fmt.Sprintf("charge %s selected twice", c.ID))
		}
		seen[c.ID] = true
		if c.IsPaid() {
			return fmt.Errorf("%w: charge %s already paid", model.ErrChargeNotPayable, c.ID)
		}
		if err := model.ValidateAmount("amount", c.Amount); err != nil {
			return fmt.Errorf("charge %s: %w", c.ID, err)
		}
	}
	return nil
}
