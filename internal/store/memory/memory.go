// Package memory is an in-process store backend. It is used by tests and, fed
// from the workspace files, by the CLI.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

var (
	_ store.AccountStore    = (*Store)(nil)
	_ store.HolderStore     = (*Store)(nil)
	_ store.ChargeStore     = (*Store)(nil)
	_ store.LedgerStore     = (*Store)(nil)
	_ store.EnrollmentStore = (*Store)(nil)
	_ store.CourseStore     = (*Store)(nil)
	_ store.Backend         = (*Store)(nil)
)

type state struct {
	accounts    map[string]model.Account
	holders     map[string]model.Holder
	courses     map[string]model.Course
	charges     map[string]model.OutstandingCharge
	chargeOrder []string
	enrollments []model.Enrollment
	ledger      []model.Transaction
	batches     []model.Batch
	sequences   map[string]int64 // last posting sequence per account
}

func (s state) clone() state {
	return state{
		accounts:    maps.Clone(s.accounts),
		holders:     maps.Clone(s.holders),
		courses:     maps.Clone(s.courses),
		charges:     maps.Clone(s.charges),
		chargeOrder: slices.Clone(s.chargeOrder),
		enrollments: slices.Clone(s.enrollments),
		ledger:      slices.Clone(s.ledger),
		batches:     slices.Clone(s.batches),
		sequences:   maps.Clone(s.sequences),
	}
}

// Store keeps all records in maps guarded by a RWMutex. Units of work run one
// at a time and are rolled back by restoring a snapshot.
type Store struct {
	unitMu sync.Mutex
	mu     sync.RWMutex
	st     state
	now    func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		st: state{
			accounts:  make(map[string]model.Account),
			holders:   make(map[string]model.Holder),
			courses:   make(map[string]model.Course),
			charges:   make(map[string]model.OutstandingCharge),
			sequences: make(map[string]int64),
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used for assigned timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Stores returns the store as a Stores bundle.
func (s *Store) Stores() store.Stores {
	return store.Stores{
		Accounts:    s,
		Holders:     s,
		Charges:     s,
		Ledger:      s,
		Enrollments: s,
		Courses:     s,
	}
}

// Atomically runs fn; if fn fails every change it made is discarded.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	s.unitMu.Lock()
	defer s.unitMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, s.Stores()); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[a.ID] = a
}

// PutHolder inserts or replaces an account holder.
func (s *Store) PutHolder(h model.Holder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.holders[h.ID] = h
}

// PutCourse inserts or replaces a course.
func (s *Store) PutCourse(c model.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.courses[c.ID] = c
}

// PutEnrollment inserts or replaces an enrollment.
func (s *Store) PutEnrollment(e model.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.st.enrollments {
		if existing.ID == e.ID {
			s.st.enrollments[i] = e
			return
		}
	}
	s.st.enrollments = append(s.st.enrollments, e)
}

// PutCharge inserts or replaces an outstanding charge.
func (s *Store) PutCharge(c model.OutstandingCharge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.st.charges[c.ID]; !exists {
		s.st.chargeOrder = append(s.st.chargeOrder, c.ID)
	}
	s.st.charges[c.ID] = c
}

// Restore loads ledger entries and batches as persisted, keeping their IDs,
// references and sequences.
func (s *Store) Restore(entries []model.Transaction, batches []model.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range entries {
		s.st.ledger = append(s.st.ledger, tx)
		if tx.Sequence > s.st.sequences[tx.AccountID] {
			s.st.sequences[tx.AccountID] = tx.Sequence
		}
	}
	s.st.batches = append(s.st.batches, batches...)
}

// Snapshot returns copies of every record, for persisting elsewhere.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Enrollments: slices.Clone(s.st.enrollments),
		Ledger:      slices.Clone(s.st.ledger),
		Batches:     slices.Clone(s.st.batches),
	}
	for _, k := range sortedKeys(s.st.accounts) {
		snap.Accounts = append(snap.Accounts, s.st.accounts[k])
	}
	for _, k := range sortedKeys(s.st.holders) {
		snap.Holders = append(snap.Holders, s.st.holders[k])
	}
	for _, k := range sortedKeys(s.st.courses) {
		snap.Courses = append(snap.Courses, s.st.courses[k])
	}
	for _, id := range s.st.chargeOrder {
		snap.Charges = append(snap.Charges, s.st.charges[id])
	}
	return snap
}

// Snapshot is a point-in-time copy of a Store.
type Snapshot struct {
	Accounts    []model.Account
	Holders     []model.Holder
	Courses     []model.Course
	Enrollments []model.Enrollment
	Charges     []model.OutstandingCharge
	Ledger      []model.Transaction
	Batches     []model.Batch
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.st.accounts[id]
	if !exists {
		return model.Account{}, fmt.Errorf("%w: account %s", store.ErrNotFound, id)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Account, 0, len(s.st.accounts))
	for _, k := range sortedKeys(s.st.accounts) {
		out = append(out, s.st.accounts[k])
	}
	return out, nil
}

func (s *Store) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.st.accounts[id]
	if !exists {
		return fmt.Errorf("%w: account %s", store.ErrNotFound, id)
	}
	a.Balance = balance
	s.st.accounts[id] = a
	return nil
}

func (s *Store) GetHolder(ctx context.Context, id string) (model.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.st.holders[id]
	if !exists {
		return model.Holder{}, fmt.Errorf("%w: holder %s", store.ErrNotFound, id)
	}
	return h, nil
}

func (s *Store) GetCourse(ctx context.Context, id string) (model.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.st.courses[id]
	if !exists {
		return model.Course{}, fmt.Errorf("%w: course %s", store.ErrNotFound, id)
	}
	return c, nil
}

func (s *Store) ListActiveEnrollments(ctx context.Context, filter store.EnrollmentFilter) ([]model.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Enrollment
	for _, e := range s.st.enrollments {
		if e.Active && filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListCharges(ctx context.Context, filter store.ChargeFilter) ([]model.OutstandingCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.OutstandingCharge
	for _, id := range s.st.chargeOrder {
		if c := s.st.charges[id]; filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetCharge(ctx context.Context, id string) (model.OutstandingCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.st.charges[id]
	if !exists {
		return model.OutstandingCharge{}, fmt.Errorf("%w: charge %s", store.ErrNotFound, id)
	}
	return c, nil
}

func (s *Store) MarkPaid(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.st.charges[id]
	if !exists {
		return fmt.Errorf("%w: charge %s", store.ErrNotFound, id)
	}
	if c.IsPaid() {
		return fmt.Errorf("%w: charge %s already paid", model.ErrInvalidTransition, id)
	}
	c.Status = model.ChargePaid
	c.PaidAt = &at
	s.st.charges[id] = c
	return nil
}
