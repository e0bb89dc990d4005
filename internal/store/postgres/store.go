// Package postgres is the PostgreSQL store backend, built on gorm. A unit of
// work is a database transaction and account rows read inside it are locked
// FOR UPDATE until it commits.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edubill-dev/edubill/internal/id"
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

// Store implements every store interface over a gorm.DB.
type Store struct {
	db   *gorm.DB
	inTx bool
	now  func() time.Time
}

// Open connects to the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock replaces the time source used for assigned timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
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

// Atomically runs fn inside a database transaction.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := &Store{db: tx, inTx: true, now: s.now}
		return fn(ctx, inner.Stores())
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error, what, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, what, key)
	}
	return fmt.Errorf("loading %s %s: %w", what, key, err)
}

// Accounts

func (s *Store) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	q := s.conn(ctx)
	if s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m AccountModel
	if err := q.Where("account_id = ?", accountID).First(&m).Error; err != nil {
		return model.Account{}, notFound(err, "account", accountID)
	}
	return accountFromModel(m)
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var rows []AccountModel
	if err := s.conn(ctx).Order("account_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	out := make([]model.Account, 0, len(rows))
	for _, r := range rows {
		a, err := accountFromModel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	res := s.conn(ctx).Model(&AccountModel{}).
		Where("account_id = ?", accountID).
		Update("account_balance", balance)
	if res.Error != nil {
		return fmt.Errorf("updating balance of %s: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: account %s", store.ErrNotFound, accountID)
	}
	return nil
}

func (s *Store) GetHolder(ctx context.Context, holderID string) (model.Holder, error) {
	var m HolderModel
	if err := s.conn(ctx).Where("holder_id = ?", holderID).First(&m).Error; err != nil {
		return model.Holder{}, notFound(err, "holder", holderID)
	}
	return holderFromModel(m), nil
}

func (s *Store) GetCourse(ctx context.Context, courseID string) (model.Course, error) {
	var m CourseModel
	if err := s.conn(ctx).Where("course_id = ?", courseID).First(&m).Error; err != nil {
		return model.Course{}, notFound(err, "course", courseID)
	}
	return courseFromModel(m)
}

func (s *Store) ListActiveEnrollments(ctx context.Context, filter store.EnrollmentFilter) ([]model.Enrollment, error) {
	q := s.conn(ctx).Where("enrollment_is_active = ?", true)
	if filter.HolderID != "" {
		q = q.Where("enrollment_holder_id = ?", filter.HolderID)
	}
	if filter.AccountID != "" {
		q = q.Where("enrollment_account_id = ?", filter.AccountID)
	}
	if filter.CourseID != "" {
		q = q.Where("enrollment_course_id = ?", filter.CourseID)
	}
	var rows []EnrollmentModel
	if err := q.Order("enrollment_start_date, enrollment_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	out := make([]model.Enrollment, len(rows))
	for i, r := range rows {
		out[i] = enrollmentFromModel(r)
	}
	return out, nil
}

// Charges

func (s *Store) ListCharges(ctx context.Context, filter store.ChargeFilter) ([]model.OutstandingCharge, error) {
	q := s.conn(ctx)
	if filter.AccountID != "" {
		q = q.Where("charge_account_id = ?", filter.AccountID)
	}
	if filter.CourseID != "" {
		q = q.Where("charge_course_id = ?", filter.CourseID)
	}
	var rows []ChargeModel
	if err := q.Order("charge_due_date, charge_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
	}
	out := make([]model.OutstandingCharge, 0, len(rows))
	for _, r := range rows {
		c, err := chargeFromModel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetCharge(ctx context.Context, chargeID string) (model.OutstandingCharge, error) {
	var m ChargeModel
	if err := s.conn(ctx).Where("charge_id = ?", chargeID).First(&m).Error; err != nil {
		return model.OutstandingCharge{}, notFound(err, "charge", chargeID)
	}
	return chargeFromModel(m)
}

func (s *Store) MarkPaid(ctx context.Context, chargeID string, at time.Time) error {
	res := s.conn(ctx).Model(&ChargeModel{}).
		Where("charge_id = ? AND charge_status <> ?", chargeID, string(model.ChargePaid)).
		Updates(map[string]any{
			"charge_status":  string(model.ChargePaid),
			"charge_paid_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("marking charge %s paid: %w", chargeID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.GetCharge(ctx, chargeID); err != nil {
		return err
	}
	return fmt.Errorf("%w: charge %s already paid", model.ErrInvalidTransition, chargeID)
}

// Ledger

// Append inserts tx. Outside a unit of work it runs in its own transaction,
// since reference allocation holds a transaction-scoped lock.
func (s *Store) Append(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	if !s.inTx {
		var out model.Transaction
		err := s.Atomically(ctx, func(ctx context.Context, st store.Stores) error {
			var err error
			out, err = st.Ledger.Append(ctx, tx)
			return err
		})
		return out, err
	}
	db := s.conn(ctx)

	var count int64
	if err := db.Model(&AccountModel{}).Where("account_id = ?", tx.AccountID).Count(&count).Error; err != nil {
		return model.Transaction{}, fmt.Errorf("checking account %s: %w", tx.AccountID, err)
	}
	if count == 0 {
		return model.Transaction{}, fmt.Errorf("%w: account %s", store.ErrNotFound, tx.AccountID)
	}

	if tx.ID == "" {
		tx.ID = id.New()
	}
	now := s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.Reference == "" {
		ref, err := s.nextReference(ctx, string(tx.Type), tx.CreatedAt)
		if err != nil {
			return model.Transaction{}, err
		}
		tx.Reference = ref
	}
	if tx.Status == model.TxCompleted {
		seq, err := s.nextSequence(ctx, tx.AccountID)
		if err != nil {
			return model.Transaction{}, err
		}
		tx.Sequence = seq
		if tx.PostedAt == nil {
			tx.PostedAt = &now
		}
	}

	m, err := entryToModel(tx)
	if err != nil {
		return model.Transaction{}, err
	}
	if err := db.Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.Transaction{}, fmt.Errorf("%w: transaction %s", store.ErrDuplicate, tx.ID)
		}
		return model.Transaction{}, fmt.Errorf("inserting transaction: %w", err)
	}
	return tx, nil
}

// nextReference must run inside a transaction.
func (s *Store) nextReference(ctx context.Context, txType string, at time.Time) (string, error) {
	prefix := id.PrefixFor(txType)
	day := id.DayPrefix(prefix, at)

	// Postings on different accounts share the day's reference series; the
	// lock is held until the surrounding transaction ends.
	if err := s.conn(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", day).Error; err != nil {
		return "", fmt.Errorf("locking reference series %s: %w", day, err)
	}

	var refs []string
	if err := s.conn(ctx).Model(&EntryModel{}).
		Where("entry_reference LIKE ?", day+"%").
		Pluck("entry_reference", &refs).Error; err != nil {
		return "", fmt.Errorf("loading references: %w", err)
	}
	return id.FormatReference(prefix, at, id.NextSequence(refs, prefix, at)), nil
}

func (s *Store) nextSequence(ctx context.Context, accountID string) (int64, error) {
	var last int64
	if err := s.conn(ctx).Model(&EntryModel{}).
		Where("entry_account_id = ?", accountID).
		Select("COALESCE(MAX(entry_sequence), 0)").
		Scan(&last).Error; err != nil {
		return 0, fmt.Errorf("loading sequence of %s: %w", accountID, err)
	}
	return last + 1, nil
}

func (s *Store) Get(ctx context.Context, txID string) (model.Transaction, error) {
	var m EntryModel
	if err := s.conn(ctx).Where("entry_id = ?", txID).First(&m).Error; err != nil {
		return model.Transaction{}, notFound(err, "transaction", txID)
	}
	return entryFromModel(m)
}

func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	var rows []EntryModel
	if err := s.conn(ctx).
		Where("entry_account_id = ?", accountID).
		Order("created_at, entry_reference").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing transactions of %s: %w", accountID, err)
	}
	return entriesFromModels(rows)
}

func (s *Store) ListPending(ctx context.Context, dueBy time.Time) ([]model.Transaction, error) {
	var rows []EntryModel
	if err := s.conn(ctx).
		Where("entry_status = ? AND entry_scheduled_for IS NOT NULL AND entry_scheduled_for <= ?", string(model.TxPending), dueBy).
		Order("entry_scheduled_for, entry_reference").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing pending transactions: %w", err)
	}
	return entriesFromModels(rows)
}

func entriesFromModels(rows []EntryModel) ([]model.Transaction, error) {
	out := make([]model.Transaction, 0, len(rows))
	for _, r := range rows {
		tx, err := entryFromModel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) Complete(ctx context.Context, txID string, balanceAfter decimal.Decimal, at time.Time) (model.Transaction, error) {
	tx, err := s.pending(ctx, txID)
	if err != nil {
		return model.Transaction{}, err
	}
	seq, err := s.nextSequence(ctx, tx.AccountID)
	if err != nil {
		return model.Transaction{}, err
	}
	if err := s.conn(ctx).Model(&EntryModel{}).
		Where("entry_id = ?", txID).
		Updates(map[string]any{
			"entry_status":        string(model.TxCompleted),
			"entry_balance_after": balanceAfter,
			"entry_posted_at":     at,
			"entry_sequence":      seq,
		}).Error; err != nil {
		return model.Transaction{}, fmt.Errorf("completing transaction %s: %w", txID, err)
	}
	tx.Status = model.TxCompleted
	tx.BalanceAfter = balanceAfter
	tx.PostedAt = &at
	tx.Sequence = seq
	return tx, nil
}

func (s *Store) Cancel(ctx context.Context, txID string) (model.Transaction, error) {
	tx, err := s.pending(ctx, txID)
	if err != nil {
		return model.Transaction{}, err
	}
	if err := s.conn(ctx).Model(&EntryModel{}).
		Where("entry_id = ?", txID).
		Update("entry_status", string(model.TxCancelled)).Error; err != nil {
		return model.Transaction{}, fmt.Errorf("cancelling transaction %s: %w", txID, err)
	}
	tx.Status = model.TxCancelled
	return tx, nil
}

func (s *Store) pending(ctx context.Context, txID string) (model.Transaction, error) {
	tx, err := s.Get(ctx, txID)
	if err != nil {
		return model.Transaction{}, err
	}
	if tx.Status != model.TxPending {
		return model.Transaction{}, fmt.Errorf("%w: transaction %s is %s", model.ErrInvalidTransition, txID, tx.Status)
	}
	return tx, nil
}

func (s *Store) AppendBatch(ctx context.Context, batch model.Batch) (model.Batch, error) {
	if batch.ID == "" {
		batch.ID = id.New()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = s.now()
	}
	m := batchToModel(batch)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.Batch{}, fmt.Errorf("%w: batch %s", store.ErrDuplicate, batch.ID)
		}
		return model.Batch{}, fmt.Errorf("inserting batch: %w", err)
	}
	return batch, nil
}

// Batches returns every recorded batch, oldest first.
func (s *Store) Batches(ctx context.Context) ([]model.Batch, error) {
	var rows []BatchModel
	if err := s.conn(ctx).Order("created_at, batch_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	out := make([]model.Batch, len(rows))
	for i, r := range rows {
		out[i] = batchFromModel(r)
	}
	return out, nil
}
