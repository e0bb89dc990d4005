package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an education account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
	AccountPending   AccountStatus = "pending"
)

// ParseAccountStatus validates a persisted account status.
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch st := AccountStatus(s); st {
	case AccountActive, AccountSuspended, AccountClosed, AccountPending:
		return st, nil
	}
	return "", fmt.Errorf("unknown account status %q", s)
}

// SchoolingStatus describes where an account holder is in their education.
type SchoolingStatus string

const (
	SchoolingInSchool    SchoolingStatus = "in_school"
	SchoolingNotInSchool SchoolingStatus = "not_in_school"
	SchoolingGraduated   SchoolingStatus = "graduated"
)

// ParseSchoolingStatus validates a persisted schooling status.
func ParseSchoolingStatus(s string) (SchoolingStatus, error) {
	switch st := SchoolingStatus(s); st {
	case SchoolingInSchool, SchoolingNotInSchool, SchoolingGraduated:
		return st, nil
	}
	return "", fmt.Errorf("unknown schooling status %q", s)
}

// Holder is the person an education account belongs to.
type Holder struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	BirthDate       time.Time       `json:"birth_date" yaml:"birth_date"`
	SchoolingStatus SchoolingStatus `json:"schooling_status" yaml:"schooling_status"`
}

// AgeAt returns the holder's age in whole years on the given date.
func (h Holder) AgeAt(at time.Time) int {
	age := at.Year() - h.BirthDate.Year()
	if at.Month() < h.BirthDate.Month() ||
		(at.Month() == h.BirthDate.Month() && at.Day() < h.BirthDate.Day()) {
		age--
	}
	return age
}

// Account holds a stored balance. Balance only changes through ledger postings.
type Account struct {
	ID             string          `json:"id"`
	HolderID       string          `json:"holder_id"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"opening_balance"` // balance before the first ledger entry
	Status         AccountStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Instrument is an external payment instrument, such as a saved card.
type Instrument struct {
	ID    string `json:"id,omitempty"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4" validate:"required,len=4,numeric"`
}
