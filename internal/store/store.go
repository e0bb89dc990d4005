// Package store declares the persistence collaborators of the billing core.
// Implementations live in the memory, postgres and workspace packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/audit"
	"github.com/edubill-dev/edubill/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// AccountStore reads accounts and persists new balances.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
}

// HolderStore reads account holders.
type HolderStore interface {
	GetHolder(ctx context.Context, id string) (model.Holder, error)
}

// ChargeFilter narrows ListCharges. Empty fields match everything.
type ChargeFilter struct {
	AccountID string
	CourseID  string
}

// ChargeStore reads outstanding charges and settles them.
type ChargeStore interface {
	ListCharges(ctx context.Context, filter ChargeFilter) ([]model.OutstandingCharge, error)
	GetCharge(ctx context.Context, id string) (model.OutstandingCharge, error)
	MarkPaid(ctx context.Context, id string, at time.Time) error
}

// LedgerStore is the append-only transaction log. Append assigns the ID,
// creation time and, for completed entries, the posting sequence. The only
// permitted changes afterwards are Complete and Cancel of a pending entry.
type LedgerStore interface {
	Append(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	Get(ctx context.Context, id string) (model.Transaction, error)
	ListByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)
	ListPending(ctx context.Context, dueBy time.Time) ([]model.Transaction, error)
	Complete(ctx context.Context, id string, balanceAfter decimal.Decimal, at time.Time) (model.Transaction, error)
	Cancel(ctx context.Context, id string) (model.Transaction, error)
	AppendBatch(ctx context.Context, batch model.Batch) (model.Batch, error)
}

// EnrollmentFilter narrows ListActiveEnrollments. Empty fields match everything.
type EnrollmentFilter struct {
	HolderID  string
	AccountID string
	CourseID  string
}

// EnrollmentStore lists active enrollments.
type EnrollmentStore interface {
	ListActiveEnrollments(ctx context.Context, filter EnrollmentFilter) ([]model.Enrollment, error)
}

// CourseStore reads course payment configuration.
type CourseStore interface {
	GetCourse(ctx context.Context, id string) (model.Course, error)
}

// AuditSink is a write-only event log.
type AuditSink interface {
	Emit(ctx context.Context, e audit.Event) error
}

// Stores bundles the collaborators visible inside a unit of work.
type Stores struct {
	Accounts    AccountStore
	Holders     HolderStore
	Charges     ChargeStore
	Ledger      LedgerStore
	Enrollments EnrollmentStore
	Courses     CourseStore
}

// UnitOfWork runs fn so that either every write it makes through the given
// Stores is persisted or none is.
type UnitOfWork interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Backend is a complete store implementation.
type Backend interface {
	UnitOfWork
	Stores() Stores
}

// Matches reports whether e passes the filter.
func (f EnrollmentFilter) Matches(e model.Enrollment) bool {
	return (f.HolderID == "" || e.HolderID == f.HolderID) &&
		(f.AccountID == "" || e.AccountID == f.AccountID) &&
		(f.CourseID == "" || e.CourseID == f.CourseID)
}

// Matches reports whether c passes the filter.
func (f ChargeFilter) Matches(c model.OutstandingCharge) bool {
	return (f.AccountID == "" || c.AccountID == f.AccountID) &&
		(f.CourseID == "" || c.CourseID == f.CourseID)
}
