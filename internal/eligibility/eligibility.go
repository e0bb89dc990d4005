// Package eligibility selects accounts for batch financial operations and
// splits a batch amount across them.
package eligibility

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// Candidate is an account together with its holder, if known.
type Candidate struct {
	Account model.Account
	Holder  *model.Holder
}

// Criteria narrows a batch to matching accounts. Nil fields are not applied;
// only active accounts ever match.
type Criteria struct {
	MinAge          *int                   `json:"min_age,omitempty"`
	MaxAge          *int                   `json:"max_age,omitempty"`
	MinBalance      *decimal.Decimal       `json:"min_balance,omitempty"`
	MaxBalance      *decimal.Decimal       `json:"max_balance,omitempty"`
	SchoolingStatus *model.SchoolingStatus `json:"schooling_status,omitempty"`
}

// Validate rejects negative or inverted bounds.
func (c Criteria) Validate() error {
	if c.MinAge != nil && *c.MinAge < 0 {
		return model.Invalid("min_age", "must not be negative")
	}
	if c.MaxAge != nil && *c.MaxAge < 0 {
		return model.Invalid("max_age", "must not be negative")
	}
	if c.MinAge != nil && c.MaxAge != nil && *c.MinAge > *c.MaxAge {
		return model.Invalid("min_age", "greater than max_age")
	}
	if c.MinBalance != nil && c.MaxBalance != nil && c.MinBalance.GreaterThan(*c.MaxBalance) {
		return model.Invalid("min_balance", "greater than max_balance")
	}
	if c.SchoolingStatus != nil {
		if _, err := model.ParseSchoolingStatus(string(*c.SchoolingStatus)); err != nil {
			return model.Invalid("schooling_status", err.Error())
		}
	}
	return nil
}

func (c Criteria) needsHolder() bool {
	return c.MinAge != nil || c.MaxAge != nil || c.SchoolingStatus != nil
}

// Matches reports whether cand passes every criterion on date asOf.
func (c Criteria) Matches(cand Candidate, asOf time.Time) bool {
	if cand.Account.Status != model.AccountActive {
		return false
	}
	if c.needsHolder() && cand.Holder == nil {
		return false
	}
	if cand.Holder != nil {
		age := cand.Holder.AgeAt(asOf)
		if c.MinAge != nil && age < *c.MinAge {
			return false
		}
		if c.MaxAge != nil && age > *c.MaxAge {
			return false
		}
		if c.SchoolingStatus != nil && cand.Holder.SchoolingStatus != *c.SchoolingStatus {
			return false
		}
	}
	balance := cand.Account.Balance
	if c.MinBalance != nil && balance.LessThan(*c.MinBalance) {
		return false
	}
	if c.MaxBalance != nil && balance.GreaterThan(*c.MaxBalance) {
		return false
	}
	return true
}

// Apply returns the candidates matching c, in input order.
func Apply(cands []Candidate, c Criteria, asOf time.Time) []Candidate {
	return lo.Filter(cands, func(cand Candidate, _ int) bool {
		return c.Matches(cand, asOf)
	})
}

// Allocation is how a batch amount lands on the selected accounts.
type Allocation struct {
	Mode       model.DistributionMode `json:"mode"`
	Count      int                    `json:"count"`
	PerAccount decimal.Decimal        `json:"per_account"`
	Total      decimal.Decimal        `json:"total"`
	Remainder  decimal.Decimal        `json:"remainder"` // undistributed cents when splitting evenly
}

// Plan splits amount over count accounts. In per_account mode every account
// receives amount; in distribute_evenly mode each receives amount/count
// rounded down to the cent and the leftover is reported as Remainder.
func Plan(mode model.DistributionMode, amount decimal.Decimal, count int) (Allocation, error) {
	a := Allocation{Mode: mode, Count: count, PerAccount: decimal.Zero, Total: decimal.Zero, Remainder: decimal.Zero}
	if count < 0 {
		return a, model.Invalid("count", "must not be negative")
	}

	switch mode {
	case model.DistributePerAccount:
		a.PerAccount = amount
	case model.DistributeEvenly:
		if count == 0 {
			return a, nil
		}
		a.PerAccount = amount.Div(decimal.NewFromInt(int64(count))).RoundDown(2)
	default:
		return a, model.Invalid("mode", fmt.Sprintf("unknown distribution mode %q", mode))
	}

	a.Total = a.PerAccount.Mul(decimal.NewFromInt(int64(count)))
	if mode == model.DistributeEvenly {
		a.Remainder = amount.Sub(a.Total)
	}
	return a, nil
}

// AccountIDs returns the account IDs of cands.
func AccountIDs(cands []Candidate) []string {
	return lo.Map(cands, func(cand Candidate, _ int) string {
		return cand.Account.ID
	})
}
