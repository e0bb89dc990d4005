package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/audit"
	"github.com/edubill-dev/edubill/internal/eligibility"
	"github.com/edubill-dev/edubill/internal/id"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

// BatchParams holds the input of a batch top-up.
type BatchParams struct {
	Description string                 `json:"description" validate:"required,max=200"`
	Mode        model.DistributionMode `json:"mode" validate:"required,oneof=per_account distribute_evenly"`
	Amount      decimal.Decimal        `json:"amount"`
	Criteria    eligibility.Criteria   `json:"criteria"`
}

func (p BatchParams) validate() error {
	if err := model.Check(p); err != nil {
		return err
	}
	if err := model.ValidateAmount("amount", p.Amount); err != nil {
		return err
	}
	return p.Criteria.Validate()
}

// BatchResult is the outcome of a batch top-up. Batch is nil when no account
// was credited.
type BatchResult struct {
	Batch      *model.Batch
	Allocation eligibility.Allocation
	Entries    []model.Transaction
	Failures   []Failure
}

// Preview selects the eligible accounts and plans the split without posting.
func (s *Service) Preview(ctx context.Context, criteria eligibility.Criteria, mode model.DistributionMode, amount decimal.Decimal) ([]eligibility.Candidate, eligibility.Allocation, error) {
	if err := criteria.Validate(); err != nil {
		return nil, eligibility.Allocation{}, err
	}
	cands, err := s.candidates(ctx)
	if err != nil {
		return nil, eligibility.Allocation{}, err
	}
	selected := eligibility.Apply(cands, criteria, s.now())
	plan, err := eligibility.Plan(mode, amount, len(selected))
	if err != nil {
		return nil, eligibility.Allocation{}, err
	}
	return selected, plan, nil
}

// BatchTopUp credits every eligible account. Each account is posted as its
// own unit of work: one account failing is reported in Failures and does not
// undo or block the others. One Batch record sums the credited accounts.
func (s *Service) BatchTopUp(ctx context.Context, p BatchParams) (BatchResult, error) {
	if err := p.validate(); err != nil {
		return BatchResult{}, err
	}

	selected, plan, err := s.Preview(ctx, p.Criteria, p.Mode, p.Amount)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Allocation: plan}
	if len(selected) == 0 {
		return result, model.ErrNoEligibleAccounts
	}
	if !plan.PerAccount.IsPositive() {
		return result, model.Invalid("amount", fmt.Sprintf("%s split over %d accounts is less than a cent each", p.Amount.StringFixed(2), len(selected)))
	}

	batchID := id.New()
	total := decimal.Zero
	for _, cand := range selected {
		tx, err := s.TopUp(ctx, PostParams{
			AccountID:   cand.Account.ID,
			Amount:      plan.PerAccount,
			Description: p.Description,
			BatchID:     batchID,
		})
		if err != nil {
			result.Failures = append(result.Failures, Failure{ID: cand.Account.ID, Err: err})
			s.emit(ctx, audit.Event{
				Action:    audit.ActionBatchFailure,
				AccountID: cand.Account.ID,
				Details:   err.Error(),
			})
			continue
		}
		result.Entries = append(result.Entries, tx)
		total = total.Add(tx.Amount)
	}
	s.metrics.RecordBatch(len(result.Entries), len(result.Failures))

	if len(result.Entries) == 0 {
		return result, nil
	}

	var batch model.Batch
	err = s.backend.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		batch, err = st.Ledger.AppendBatch(ctx, model.Batch{
			ID:           batchID,
			Description:  p.Description,
			Mode:         p.Mode,
			TotalAmount:  total,
			AccountCount: len(result.Entries),
			CreatedAt:    s.now(),
		})
		return err
	})
	if err != nil {
		return result, fmt.Errorf("recording batch: %w", err)
	}
	result.Batch = &batch

	s.emit(ctx, audit.Event{
		Action:    audit.ActionBatchTopUp,
		Reference: batch.ID,
		Details:   fmt.Sprintf("%s: %s to %d accounts", batch.Description, batch.TotalAmount.StringFixed(2), batch.AccountCount),
	})
	return result, nil
}

func (s *Service) candidates(ctx context.Context) ([]eligibility.Candidate, error) {
	st := s.backend.Stores()
	accounts, err := st.Accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	cands := make([]eligibility.Candidate, 0, len(accounts))
	for _, a := range accounts {
		cand := eligibility.Candidate{Account: a}
		if a.HolderID != "" {
			h, err := st.Holders.GetHolder(ctx, a.HolderID)
			switch {
			case err == nil:
				cand.Holder = &h
			case !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("loading holder %s: %w", a.HolderID, err)
			}
		}
		cands = append(cands, cand)
	}
	return cands, nil
}
