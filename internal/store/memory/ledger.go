package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/id"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

func (s *Store) references() []string {
	refs := make([]string, 0, len(s.st.ledger)+len(s.st.batches))
	for _, tx := range s.st.ledger {
		refs = append(refs, tx.Reference)
	}
	return refs
}

func (s *Store) Append(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.accounts[tx.AccountID]; !exists {
		return model.Transaction{}, fmt.Errorf("%w: account %s", store.ErrNotFound, tx.AccountID)
	}
	if tx.ID == "" {
		tx.ID = id.New()
	}
	for _, existing := range s.st.ledger {
		if existing.ID == tx.ID {
			return model.Transaction{}, fmt.Errorf("%w: transaction %s", store.ErrDuplicate, tx.ID)
		}
	}

	now := s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.Reference == "" {
		prefix := id.PrefixFor(string(tx.Type))
		tx.Reference = id.FormatReference(prefix, tx.CreatedAt, id.NextSequence(s.references(), prefix, tx.CreatedAt))
	}
	if tx.Status == model.TxCompleted {
		s.st.sequences[tx.AccountID]++
		tx.Sequence = s.st.sequences[tx.AccountID]
		if tx.PostedAt == nil {
			tx.PostedAt = &now
		}
	}

	s.st.ledger = append(s.st.ledger, tx)
	return tx, nil
}

func (s *Store) Get(ctx context.Context, txID string) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.st.ledger {
		if tx.ID == txID {
			return tx, nil
		}
	}
	return model.Transaction{}, fmt.Errorf("%w: transaction %s", store.ErrNotFound, txID)
}

func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, tx := range s.st.ledger {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) ListPending(ctx context.Context, dueBy time.Time) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, tx := range s.st.ledger {
		if tx.Status == model.TxPending && tx.ScheduledFor != nil && !tx.ScheduledFor.After(dueBy) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) Complete(ctx context.Context, txID string, balanceAfter decimal.Decimal, at time.Time) (model.Transaction, error) {
	return s.transition(txID, func(tx *model.Transaction) {
		s.st.sequences[tx.AccountID]++
		tx.Status = model.TxCompleted
		tx.BalanceAfter = balanceAfter
		tx.PostedAt = &at
		tx.Sequence = s.st.sequences[tx.AccountID]
	})
}

func (s *Store) Cancel(ctx context.Context, txID string) (model.Transaction, error) {
	return s.transition(txID, func(tx *model.Transaction) {
		tx.Status = model.TxCancelled
	})
}

func (s *Store) transition(txID string, apply func(tx *model.Transaction)) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.st.ledger {
		tx := &s.st.ledger[i]
		if tx.ID != txID {
			continue
		}
		if tx.Status != model.TxPending {
			return model.Transaction{}, fmt.Errorf("%w: transaction %s is %s", model.ErrInvalidTransition, txID, tx.Status)
		}
		apply(tx)
		return *tx, nil
	}
	return model.Transaction{}, fmt.Errorf("%w: transaction %s", store.ErrNotFound, txID)
}

func (s *Store) AppendBatch(ctx context.Context, batch model.Batch) (model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ID == "" {
		batch.ID = id.New()
	}
	for _, existing := range s.st.batches {
		if existing.ID == batch.ID {
			return model.Batch{}, fmt.Errorf("%w: batch %s", store.ErrDuplicate, batch.ID)
		}
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = s.now()
	}
	s.st.batches = append(s.st.batches, batch)
	return batch, nil
}

// Batches returns every recorded batch.
func (s *Store) Batches() []model.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Batch(nil), s.st.batches...)
}
