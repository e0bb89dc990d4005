package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Enrollment links an account holder to a course. Removal deactivates it.
type Enrollment struct {
	ID        string    `json:"id" yaml:"id"`
	HolderID  string    `json:"holder_id" yaml:"holder_id"`
	AccountID string    `json:"account_id" yaml:"account_id"`
	CourseID  string    `json:"course_id" yaml:"course_id"`
	StartDate time.Time `json:"start_date" yaml:"start_date"` // anchors cycle generation
	Active    bool      `json:"active" yaml:"active"`
}

// ChargeStatus is the settlement state of an outstanding charge.
type ChargeStatus string

const (
	ChargeUnpaid  ChargeStatus = "unpaid"
	ChargeOverdue ChargeStatus = "overdue"
	ChargePaid    ChargeStatus = "paid"
)

// ParseChargeStatus validates a persisted charge status. Partial settlement
// is not supported, so "partial" rows are rejected rather than guessed at.
func ParseChargeStatus(s string) (ChargeStatus, error) {
	switch st := ChargeStatus(s); st {
	case ChargeUnpaid, ChargeOverdue, ChargePaid:
		return st, nil
	}
	return "", fmt.Errorf("unknown charge status %q", s)
}

// OutstandingCharge is an amount owed for one cycle. Rows are created by the
// fee run; this module only reads them and marks them paid.
type OutstandingCharge struct {
	ID        string          `json:"id" yaml:"id"`
	AccountID string          `json:"account_id" yaml:"account_id"`
	CourseID  string          `json:"course_id" yaml:"course_id"`
	Period    string          `json:"period" yaml:"period"` // free text, expected to match a generated cycle label
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
	DueDate   time.Time       `json:"due_date" yaml:"due_date"`
	Status    ChargeStatus    `json:"status" yaml:"status"`
	PaidAt    *time.Time      `json:"paid_at,omitempty" yaml:"paid_at,omitempty"`
}

// IsPaid reports whether the charge is settled.
func (c OutstandingCharge) IsPaid() bool {
	return c.Status == ChargePaid
}
