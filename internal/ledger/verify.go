package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// InvariantError describes a single ledger invariant violation.
type InvariantError struct {
	Invariant   int
	EntryID     string
	Description string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("invariant %d [%s]: %s", e.Invariant, e.EntryID, e.Description)
}

// Verify replays one account's entries and checks 7 invariants:
//
//  1. entry IDs are unique
//  2. posted entries carry unique, positive posting sequences; others carry none
//  3. amounts have the sign of their type (top-ups positive, charges and payments negative)
//  4. amounts and balance snapshots have at most 2 decimal places
//  5. payment legs add up to the payment amount, and card legs name an instrument
//  6. each posted entry's balance_after equals the previous balance plus its balance effect, and is never negative
//  7. folding every posted entry from the opening balance reproduces the stored balance
func Verify(opening decimal.Decimal, entries []model.Transaction, current decimal.Decimal) []InvariantError {
	var errs []InvariantError

	// Invariant 1: unique IDs.
	seen := make(map[string]bool, len(entries))
	for _, tx := range entries {
		if seen[tx.ID] {
			errs = append(errs, InvariantError{Invariant: 1, EntryID: tx.ID, Description: "duplicate entry ID"})
		}
		seen[tx.ID] = true
	}

	var posted []model.Transaction
	sequences := make(map[int64]string)
	for _, tx := range entries {
		// Invariant 2: posting sequences.
		if tx.IsPosted() {
			switch {
			case tx.Sequence <= 0:
				errs = append(errs, InvariantError{Invariant: 2, EntryID: tx.ID, Description: "posted entry has no sequence"})
			case sequences[tx.Sequence] != "":
				errs = append(errs, InvariantError{
					Invariant:   2,
					EntryID:     tx.ID,
					Description: fmt.Sprintf("sequence %d already used by %s", tx.Sequence, sequences[tx.Sequence]),
				})
			default:
				sequences[tx.Sequence] = tx.ID
			}
			posted = append(posted, tx)
		} else if tx.Sequence != 0 {
			errs = append(errs, InvariantError{Invariant: 2, EntryID: tx.ID, Description: fmt.Sprintf("%s entry has sequence %d", tx.Status, tx.Sequence)})
		}

		// Invariant 3: sign by type.
		if tx.Type.Credits() != tx.Amount.IsPositive() || tx.Amount.IsZero() {
			errs = append(errs, InvariantError{
				Invariant:   3,
				EntryID:     tx.ID,
				Description: fmt.Sprintf("%s amount %s has the wrong sign", tx.Type, tx.Amount.StringFixed(2)),
			})
		}

		// Invariant 4: cents.
		if !model.IsCents(tx.Amount) || !model.IsCents(tx.BalanceAfter) {
			errs = append(errs, InvariantError{Invariant: 4, EntryID: tx.ID, Description: "more than 2 decimal places"})
		}

		// Invariant 5: payment legs.
		if len(tx.Legs) > 0 {
			sum := decimal.Zero
			for _, leg := range tx.Legs {
				sum = sum.Add(leg.Amount)
				if leg.Method == model.MethodCard && leg.Last4 == "" {
					errs = append(errs, InvariantError{Invariant: 5, EntryID: tx.ID, Description: "card leg without instrument"})
				}
			}
			if !sum.Equal(tx.Amount.Neg()) {
				errs = append(errs, InvariantError{
					Invariant:   5,
					EntryID:     tx.ID,
					Description: fmt.Sprintf("legs total %s, payment is %s", sum.StringFixed(2), tx.Amount.Neg().StringFixed(2)),
				})
			}
		}
	}

	sort.SliceStable(posted, func(i, j int) bool { return posted[i].Sequence < posted[j].Sequence })

	// Invariant 6: running balance chain.
	balance := opening
	for _, tx := range posted {
		balance = balance.Add(tx.BalanceEffect())
		if !tx.BalanceAfter.Equal(balance) {
			errs = append(errs, InvariantError{
				Invariant:   6,
				EntryID:     tx.ID,
				Description: fmt.Sprintf("balance_after %s, replay gives %s", tx.BalanceAfter.StringFixed(2), balance.StringFixed(2)),
			})
			balance = tx.BalanceAfter
		}
		if tx.BalanceAfter.IsNegative() {
			errs = append(errs, InvariantError{Invariant: 6, EntryID: tx.ID, Description: "negative balance"})
		}
	}

	// Invariant 7: stored balance.
	if !balance.Equal(current) {
		errs = append(errs, InvariantError{
			Invariant:   7,
			EntryID:     "",
			Description: fmt.Sprintf("stored balance %s, ledger gives %s", current.StringFixed(2), balance.StringFixed(2)),
		})
	}

	return errs
}

// Replay folds posted entries in posting order from opening and returns the
// resulting balance.
func Replay(opening decimal.Decimal, entries []model.Transaction) decimal.Decimal {
	posted := make([]model.Transaction, 0, len(entries))
	for _, tx := range entries {
		if tx.IsPosted() {
			posted = append(posted, tx)
		}
	}
	sort.SliceStable(posted, func(i, j int) bool { return posted[i].Sequence < posted[j].Sequence })

	balance := opening
	for _, tx := range posted {
		balance = balance.Add(tx.BalanceEffect())
	}
	return balance
}
