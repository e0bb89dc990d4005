package billing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// Status is the settlement state of a cycle in the obligations view.
type Status string

const (
	StatusPending Status = "pending" // payable now
	StatusOngoing Status = "ongoing" // visible, not payable yet
	StatusPaid    Status = "paid"
)

// Obligation pairs a generated cycle with its charge record, if one exists.
type Obligation struct {
	Cycle  Cycle
	Charge *model.OutstandingCharge
	Status Status
}

// Matched reports whether a charge record was found for the cycle.
func (o Obligation) Matched() bool {
	return o.Charge != nil
}

// Reconciliation is the merged view of a schedule and its charge records.
type Reconciliation struct {
	Obligations      []Obligation // unpaid cycles, in cycle order
	History          []Obligation // paid cycles
	Unmatched        []Cycle      // unpaid cycles with no charge record
	Orphans          []model.OutstandingCharge
	TotalFee         decimal.Decimal
	TotalPaid        decimal.Decimal
	TotalOutstanding decimal.Decimal
}

// Payable returns the obligation that may be paid now.
func (r Reconciliation) Payable() (Obligation, bool) {
	for _, o := range r.Obligations {
		if o.Status == StatusPending {
			return o, true
		}
	}
	return Obligation{}, false
}

// PayableOrder returns the matched unpaid charges in the order they must be
// settled.
func (r Reconciliation) PayableOrder() []model.OutstandingCharge {
	var out []model.OutstandingCharge
	for _, o := range r.Obligations {
		if o.Charge != nil {
			out = append(out, *o.Charge)
		}
	}
	return out
}

var cycleNumberRe = regexp.MustCompile(`(?i)\bcycle\s+(\d+)\b`)

// Reconcile merges generated cycles with the persisted charges of the same
// account and course.
//
// Charges are matched to cycles in three passes, each charge used at most
// once: exact full label, period text containing the bare period label, then
// a "Cycle {n}" reference to the still-unresolved cycle numbered n. Paid
// cycles move to History. Of the remaining cycles, the first one with a
// charge record is pending and all others are ongoing, so cycles settle
// strictly in order. One-time courses have a single cycle and skip sequencing.
func Reconcile(cycles []Cycle, charges []model.OutstandingCharge, paymentType model.PaymentType) Reconciliation {
	matched := make([]int, len(cycles)) // cycle index -> charge index+1
	used := make([]bool, len(charges))

	claim := func(ci int, pred func(model.OutstandingCharge) bool) {
		for i, ch := range charges {
			if !used[i] && pred(ch) {
				used[i] = true
				matched[ci] = i + 1
				return
			}
		}
	}

	for ci, c := range cycles {
		claim(ci, func(ch model.OutstandingCharge) bool {
			return strings.TrimSpace(ch.Period) == c.Label
		})
	}
	for ci, c := range cycles {
		if matched[ci] != 0 {
			continue
		}
		claim(ci, func(ch model.OutstandingCharge) bool {
			return strings.Contains(ch.Period, c.Period)
		})
	}
	for i, ch := range charges {
		if used[i] {
			continue
		}
		m := cycleNumberRe.FindStringSubmatch(ch.Period)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		for ci, c := range cycles {
			if c.Number == n && matched[ci] == 0 {
				used[i] = true
				matched[ci] = i + 1
				break
			}
		}
	}

	r := Reconciliation{
		TotalFee:  decimal.Zero,
		TotalPaid: decimal.Zero,
	}
	pendingAssigned := false
	for ci, c := range cycles {
		r.TotalFee = r.TotalFee.Add(c.Amount)

		o := Obligation{Cycle: c, Status: StatusOngoing}
		if idx := matched[ci]; idx != 0 {
			ch := charges[idx-1]
			o.Charge = &ch
		}

		switch {
		case o.Charge != nil && o.Charge.IsPaid():
			o.Status = StatusPaid
			r.TotalPaid = r.TotalPaid.Add(o.Charge.Amount)
			r.History = append(r.History, o)
			continue
		case o.Charge == nil:
			r.Unmatched = append(r.Unmatched, c)
		case paymentType == model.PaymentOneTime:
			o.Status = StatusPending
		case !pendingAssigned:
			o.Status = StatusPending
			pendingAssigned = true
		}
		r.Obligations = append(r.Obligations, o)
	}

	for i, ch := range charges {
		if !used[i] {
			r.Orphans = append(r.Orphans, ch)
		}
	}
	r.TotalOutstanding = r.TotalFee.Sub(r.TotalPaid)
	return r
}
