// Package ledger is the only writer of account balances. Every balance change
// is an append-only ledger entry whose balance snapshot is computed under a
// per-account lock inside a single unit of work.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/audit"
	"github.com/edubill-dev/edubill/internal/metrics"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

// Service posts ledger entries.
type Service struct {
	backend store.Backend
	audit   store.AuditSink
	metrics *metrics.Collector
	logger  *slog.Logger
	locks   *accountLocks
	now     func() time.Time
	actor   string
}

// NewService creates a ledger Service. sink and collector may be nil.
func NewService(backend store.Backend, sink store.AuditSink, collector *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		audit:   sink,
		metrics: collector,
		logger:  logger,
		locks:   newAccountLocks(),
		now:     time.Now,
		actor:   "system",
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetActor names who is recorded in the audit log.
func (s *Service) SetActor(actor string) {
	s.actor = actor
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Mutation describes one balance-changing posting. Build returns the entry to
// post given the account as read inside the unit of work; Then runs in the
// same unit of work after the entry is appended and the balance stored.
type Mutation struct {
	AccountID string
	Type      model.TransactionType
	Build     func(ctx context.Context, st store.Stores, acct model.Account) (model.Transaction, error)
	Then      func(ctx context.Context, st store.Stores, posted model.Transaction) error
}

// Apply posts m atomically: balance_after = balance + balance effect, the
// entry is appended, the balance stored and Then run, or nothing persists.
// A posting that would leave the balance negative fails with
// ErrInsufficientBalance.
func (s *Service) Apply(ctx context.Context, m Mutation) (model.Transaction, error) {
	unlock := s.locks.lock(m.AccountID)
	defer unlock()

	var posted model.Transaction
	err := s.backend.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		acct, err := st.Accounts.GetAccount(ctx, m.AccountID)
		if err != nil {
			return fmt.Errorf("loading account: %w", err)
		}
		if acct.Status == model.AccountClosed {
			return model.Invalid("account_id", "account is closed")
		}

		tx, err := m.Build(ctx, st, acct)
		if err != nil {
			return err
		}
		tx.AccountID = acct.ID
		tx.Type = m.Type
		tx.Status = model.TxCompleted

		after := acct.Balance.Add(tx.BalanceEffect())
		if after.IsNegative() {
			return fmt.Errorf("%w: balance %s, posting needs %s",
				model.ErrInsufficientBalance, acct.Balance.StringFixed(2), tx.BalanceEffect().Neg().StringFixed(2))
		}
		tx.BalanceAfter = after
		now := s.now()
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		tx.PostedAt = &now

		posted, err = st.Ledger.Append(ctx, tx)
		if err != nil {
			return fmt.Errorf("appending entry: %w", err)
		}
		if err := st.Accounts.SetBalance(ctx, acct.ID, after); err != nil {
			return fmt.Errorf("storing balance: %w", err)
		}
		if m.Then != nil {
			return m.Then(ctx, st, posted)
		}
		return nil
	})

	s.metrics.RecordPosting(string(m.Type), err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "posting rejected",
			"account", m.AccountID,
			"type", m.Type,
			"error", err,
		)
		return model.Transaction{}, err
	}

	s.metrics.SetBalance(posted.AccountID, posted.BalanceAfter)
	s.logger.InfoContext(ctx, "posted",
		"account", posted.AccountID,
		"type", posted.Type,
		"reference", posted.Reference,
		"amount", posted.Amount.StringFixed(2),
		"balance_after", posted.BalanceAfter.StringFixed(2),
	)
	s.emit(ctx, audit.Event{
		Action:    string(posted.Type),
		AccountID: posted.AccountID,
		Reference: posted.Reference,
		Details:   fmt.Sprintf("%s %s, balance %s", posted.Description, posted.Amount.StringFixed(2), posted.BalanceAfter.StringFixed(2)),
	})
	return posted, nil
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.audit == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Actor == "" {
		e.Actor = s.actor
	}
	if err := s.audit.Emit(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", e.Action, "error", err)
	}
}

// PostParams holds the input of an immediate top-up or charge.
type PostParams struct {
	AccountID   string          `json:"account_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=200"`
	Reference   string          `json:"reference,omitempty" validate:"max=64"`
	BatchID     string          `json:"-"`
}

func (p PostParams) validate() error {
	if err := model.Check(p); err != nil {
		return err
	}
	return model.ValidateAmount("amount", p.Amount)
}

// TopUp credits an account immediately.
func (s *Service) TopUp(ctx context.Context, p PostParams) (model.Transaction, error) {
	if err := p.validate(); err != nil {
		return model.Transaction{}, err
	}
	return s.Apply(ctx, Mutation{
		AccountID: p.AccountID,
		Type:      model.TypeTopUp,
		Build:     entryFrom(p, p.Amount),
	})
}

// Charge debits an account immediately.
func (s *Service) Charge(ctx context.Context, p PostParams) (model.Transaction, error) {
	if err := p.validate(); err != nil {
		return model.Transaction{}, err
	}
	return s.Apply(ctx, Mutation{
		AccountID: p.AccountID,
		Type:      model.TypeCharge,
		Build:     entryFrom(p, p.Amount.Neg()),
	})
}

func entryFrom(p PostParams, signed decimal.Decimal) func(context.Context, store.Stores, model.Account) (model.Transaction, error) {
	return func(context.Context, store.Stores, model.Account) (model.Transaction, error) {
		return model.Transaction{
			Amount:      signed,
			Description: p.Description,
			Reference:   p.Reference,
			BatchID:     p.BatchID,
		}, nil
	}
}

// ScheduleParams holds the input of a future-dated top-up or charge.
type ScheduleParams struct {
	PostParams
	Type         model.TransactionType `json:"type" validate:"required,oneof=top_up charge"`
	ScheduledFor *time.Time            `json:"scheduled_for"`
}

// Schedule records a pending entry for a future date. The balance is not
// touched until the entry is executed.
func (s *Service) Schedule(ctx context.Context, p ScheduleParams) (model.Transaction, error) {
	if err := model.Check(p); err != nil {
		return model.Transaction{}, err
	}
	if err := model.ValidateAmount("amount", p.Amount); err != nil {
		return model.Transaction{}, err
	}
	if p.ScheduledFor == nil || p.ScheduledFor.IsZero() {
		return model.Transaction{}, model.Invalid("scheduled_for", "required when scheduling")
	}
	if !p.ScheduledFor.After(s.now()) {
		return model.Transaction{}, model.Invalid("scheduled_for", "must be in the future")
	}

	amount := p.Amount
	if !p.Type.Credits() {
		amount = amount.Neg()
	}
	when := *p.ScheduledFor

	var pending model.Transaction
	err := s.backend.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		acct, err := st.Accounts.GetAccount(ctx, p.AccountID)
		if err != nil {
			return fmt.Errorf("loading account: %w", err)
		}
		if acct.Status == model.AccountClosed {
			return model.Invalid("account_id", "account is closed")
		}
		pending, err = st.Ledger.Append(ctx, model.Transaction{
			AccountID:    acct.ID,
			Type:         p.Type,
			Amount:       amount,
			Reference:    p.Reference,
			Description:  p.Description,
			Status:       model.TxPending,
			CreatedAt:    s.now(),
			ScheduledFor: &when,
		})
		if err != nil {
			return fmt.Errorf("appending entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionSchedule,
		AccountID: pending.AccountID,
		Reference: pending.Reference,
		Details:   fmt.Sprintf("%s %s on %s", pending.Type, amount.StringFixed(2), when.Format(time.DateOnly)),
	})
	return pending, nil
}

// Execute completes a pending entry and applies its amount to the balance.
// If the balance cannot cover a scheduled charge, or the account has been
// closed since scheduling, the entry stays pending.
func (s *Service) Execute(ctx context.Context, txID string) (model.Transaction, error) {
	entry, err := s.backend.Stores().Ledger.Get(ctx, txID)
	if err != nil {
		return model.Transaction{}, err
	}

	unlock := s.locks.lock(entry.AccountID)
	defer unlock()

	var done model.Transaction
	err = s.backend.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		tx, err := st.Ledger.Get(ctx, txID)
		if err != nil {
			return err
		}
		if tx.Status != model.TxPending {
			return fmt.Errorf("%w: entry %s is %s", model.ErrInvalidTransition, tx.Reference, tx.Status)
		}
		acct, err := st.Accounts.GetAccount(ctx, tx.AccountID)
		if err != nil {
			return fmt.Errorf("loading account: %w", err)
		}
		if acct.Status == model.AccountClosed {
			return model.Invalid("account_id", "account is closed")
		}
		after := acct.Balance.Add(tx.BalanceEffect())
		if after.IsNegative() {
			return fmt.Errorf("%w: balance %s, entry %s needs %s",
				model.ErrInsufficientBalance, acct.Balance.StringFixed(2), tx.Reference, tx.Amount.Neg().StringFixed(2))
		}

		done, err = st.Ledger.Complete(ctx, tx.ID, after, s.now())
		if err != nil {
			return err
		}
		if err := st.Accounts.SetBalance(ctx, acct.ID, after); err != nil {
			return fmt.Errorf("storing balance: %w", err)
		}
		return nil
	})

	s.metrics.RecordPosting(string(entry.Type), err == nil)
	if err != nil {
		return model.Transaction{}, err
	}

	s.metrics.SetBalance(done.AccountID, done.BalanceAfter)
	s.emit(ctx, audit.Event{
		Action:    audit.ActionExecute,
		AccountID: done.AccountID,
		Reference: done.Reference,
		Details:   fmt.Sprintf("%s %s, balance %s", done.Type, done.Amount.StringFixed(2), done.BalanceAfter.StringFixed(2)),
	})
	return done, nil
}

// Cancel withdraws a pending entry. It never touches the balance.
func (s *Service) Cancel(ctx context.Context, txID string) (model.Transaction, error) {
	entry, err := s.backend.Stores().Ledger.Get(ctx, txID)
	if err != nil {
		return model.Transaction{}, err
	}

	unlock := s.locks.lock(entry.AccountID)
	defer unlock()

	var cancelled model.Transaction
	err = s.backend.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		cancelled, err = st.Ledger.Cancel(ctx, txID)
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionCancel,
		AccountID: cancelled.AccountID,
		Reference: cancelled.Reference,
	})
	return cancelled, nil
}

// Failure is one entry or account a bulk operation could not process.
type Failure struct {
	ID  string
	Err error
}

// ExecutionReport is the outcome of ExecuteDue.
type ExecutionReport struct {
	Executed []model.Transaction
	Failed   []Failure
}

// ExecuteDue executes every pending entry scheduled on or before asOf. Each
// entry is its own unit of work; failures are reported and skipped.
func (s *Service) ExecuteDue(ctx context.Context, asOf time.Time) (ExecutionReport, error) {
	due, err := s.backend.Stores().Ledger.ListPending(ctx, asOf)
	if err != nil {
		return ExecutionReport{}, fmt.Errorf("listing pending entries: %w", err)
	}

	var report ExecutionReport
	for _, tx := range due {
		done, err := s.Execute(ctx, tx.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "scheduled entry not executed", "reference", tx.Reference, "error", err)
			report.Failed = append(report.Failed, Failure{ID: tx.ID, Err: err})
			continue
		}
		report.Executed = append(report.Executed, done)
	}
	return report, nil
}

// History returns an account's entries in creation order.
func (s *Service) History(ctx context.Context, accountID string) ([]model.Transaction, error) {
	st := s.backend.Stores()
	if _, err := st.Accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return st.Ledger.ListByAccount(ctx, accountID)
}

// VerifyAccount replays an account's ledger against its stored balance.
func (s *Service) VerifyAccount(ctx context.Context, accountID string) ([]InvariantError, error) {
	st := s.backend.Stores()
	acct, err := st.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	entries, err := st.Ledger.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return Verify(acct.OpeningBalance, entries, acct.Balance), nil
}

// VerifyAll verifies every account and returns the violations by account ID.
func (s *Service) VerifyAll(ctx context.Context) (map[string][]InvariantError, error) {
	accounts, err := s.backend.Stores().Accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	out := make(map[string][]InvariantError)
	for _, a := range accounts {
		errs, err := s.VerifyAccount(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			out[a.ID] = errs
		}
	}
	return out, nil
}
