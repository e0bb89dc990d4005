package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/edubill-dev/edubill/internal/model"
)

type AccountModel struct {
	ID             string          `gorm:"column:account_id;primaryKey"`
	HolderID       string          `gorm:"column:account_holder_id;index"`
	Balance        decimal.Decimal `gorm:"column:account_balance;type:numeric(12,2);not null;default:0"`
	OpeningBalance decimal.Decimal `gorm:"column:account_opening_balance;type:numeric(12,2);not null;default:0"`
	Status         string          `gorm:"column:account_status;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (AccountModel) TableName() string { return "accounts" }

type HolderModel struct {
	ID              string    `gorm:"column:holder_id;primaryKey"`
	Name            string    `gorm:"column:holder_name"`
	BirthDate       time.Time `gorm:"column:holder_birth_date;type:date"`
	SchoolingStatus string    `gorm:"column:holder_schooling_status"`
}

func (HolderModel) TableName() string { return "account_holders" }

type CourseModel struct {
	ID                  string          `gorm:"column:course_id;primaryKey"`
	Name                string          `gorm:"column:course_name"`
	Fee                 decimal.Decimal `gorm:"column:course_fee;type:numeric(12,2);not null"`
	PaymentType         string          `gorm:"column:course_payment_type;not null"`
	BillingCycle        *string         `gorm:"column:course_billing_cycle"`
	DurationMonths      int             `gorm:"column:course_duration_months;not null;default:0"`
	StartDate           *time.Time      `gorm:"column:course_start_date;type:date"`
	EndDate             *time.Time      `gorm:"column:course_end_date;type:date"`
	PaymentDeadlineDays int             `gorm:"column:course_payment_deadline_days;not null;default:0"`
}

func (CourseModel) TableName() string { return "courses" }

type EnrollmentModel struct {
	ID        string    `gorm:"column:enrollment_id;primaryKey"`
	HolderID  string    `gorm:"column:enrollment_holder_id;index"`
	AccountID string    `gorm:"column:enrollment_account_id;index"`
	CourseID  string    `gorm:"column:enrollment_course_id;index"`
	StartDate time.Time `gorm:"column:enrollment_start_date;type:date"`
	Active    bool      `gorm:"column:enrollment_is_active;not null"`
}

func (EnrollmentModel) TableName() string { return "enrollments" }

type ChargeModel struct {
	ID        string          `gorm:"column:charge_id;primaryKey"`
	AccountID string          `gorm:"column:charge_account_id;index"`
	CourseID  string          `gorm:"column:charge_course_id;index"`
	Period    string          `gorm:"column:charge_period"`
	Amount    decimal.Decimal `gorm:"column:charge_amount;type:numeric(12,2);not null"`
	DueDate   time.Time       `gorm:"column:charge_due_date;type:date"`
	Status    string          `gorm:"column:charge_status;not null"`
	PaidAt    *time.Time      `gorm:"column:charge_paid_at"`
}

func (ChargeModel) TableName() string { return "outstanding_charges" }

type EntryModel struct {
	ID           string          `gorm:"column:entry_id;primaryKey"`
	Reference    string          `gorm:"column:entry_reference;uniqueIndex"`
	AccountID    string          `gorm:"column:entry_account_id;index"`
	Type         string          `gorm:"column:entry_type;not null"`
	Amount       decimal.Decimal `gorm:"column:entry_amount;type:numeric(12,2);not null"`
	BalanceAfter decimal.Decimal `gorm:"column:entry_balance_after;type:numeric(12,2);not null;default:0"`
	Status       string          `gorm:"column:entry_status;not null;index"`
	Description  string          `gorm:"column:entry_description"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	ScheduledFor *time.Time      `gorm:"column:entry_scheduled_for"`
	PostedAt     *time.Time      `gorm:"column:entry_posted_at"`
	Sequence     int64           `gorm:"column:entry_sequence;not null;default:0"`
	BatchID      string          `gorm:"column:entry_batch_id;index"`
	Courses      datatypes.JSON  `gorm:"column:entry_courses;type:jsonb"`
	Legs         datatypes.JSON  `gorm:"column:entry_legs;type:jsonb"`
}

func (EntryModel) TableName() string { return "ledger_entries" }

type BatchModel struct {
	ID           string          `gorm:"column:batch_id;primaryKey"`
	Description  string          `gorm:"column:batch_description"`
	Mode         string          `gorm:"column:batch_mode;not null"`
	TotalAmount  decimal.Decimal `gorm:"column:batch_total_amount;type:numeric(12,2);not null"`
	AccountCount int             `gorm:"column:batch_account_count;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (BatchModel) TableName() string { return "batches" }

// allModels lists every table managed by Migrate.
var allModels = []any{
	&AccountModel{},
	&HolderModel{},
	&CourseModel{},
	&EnrollmentModel{},
	&ChargeModel{},
	&EntryModel{},
	&BatchModel{},
}

func accountFromModel(m AccountModel) (model.Account, error) {
	status, err := model.ParseAccountStatus(m.Status)
	if err != nil {
		return model.Account{}, err
	}
	return model.Account{
		ID:             m.ID,
		HolderID:       m.HolderID,
		Balance:        m.Balance,
		OpeningBalance: m.OpeningBalance,
		Status:         status,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func accountToModel(a model.Account) AccountModel {
	return AccountModel{
		ID:             a.ID,
		HolderID:       a.HolderID,
		Balance:        a.Balance,
		OpeningBalance: a.OpeningBalance,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
	}
}

func holderFromModel(m HolderModel) model.Holder {
	return model.Holder{
		ID:              m.ID,
		Name:            m.Name,
		BirthDate:       m.BirthDate,
		SchoolingStatus: model.SchoolingStatus(m.SchoolingStatus),
	}
}

func courseFromModel(m CourseModel) (model.Course, error) {
	pt, err := model.ParsePaymentType(m.PaymentType)
	if err != nil {
		return model.Course{}, err
	}
	c := model.Course{
		ID:                  m.ID,
		Name:                m.Name,
		Fee:                 m.Fee,
		PaymentType:         pt,
		DurationMonths:      m.DurationMonths,
		StartDate:           m.StartDate,
		EndDate:             m.EndDate,
		PaymentDeadlineDays: m.PaymentDeadlineDays,
	}
	if m.BillingCycle != nil && *m.BillingCycle != "" {
		cycle, err := model.ParseBillingCycle(*m.BillingCycle)
		if err != nil {
			return model.Course{}, err
		}
		c.BillingCycle = &cycle
	}
	return c, nil
}

func courseToModel(c model.Course) CourseModel {
	m := CourseModel{
		ID:                  c.ID,
		Name:                c.Name,
		Fee:                 c.Fee,
		PaymentType:         string(c.PaymentType),
		DurationMonths:      c.DurationMonths,
		StartDate:           c.StartDate,
		EndDate:             c.EndDate,
		PaymentDeadlineDays: c.PaymentDeadlineDays,
	}
	if c.BillingCycle != nil {
		s := string(*c.BillingCycle)
		m.BillingCycle = &s
	}
	return m
}

func enrollmentFromModel(m EnrollmentModel) model.Enrollment {
	return model.Enrollment{
		ID:        m.ID,
		HolderID:  m.HolderID,
		AccountID: m.AccountID,
		CourseID:  m.CourseID,
		StartDate: m.StartDate,
		Active:    m.Active,
	}
}

func chargeFromModel(m ChargeModel) (model.OutstandingCharge, error) {
	status, err := model.ParseChargeStatus(m.Status)
	if err != nil {
		return model.OutstandingCharge{}, fmt.Errorf("charge %s: %w", m.ID, err)
	}
	return model.OutstandingCharge{
		ID:        m.ID,
		AccountID: m.AccountID,
		CourseID:  m.CourseID,
		Period:    m.Period,
		Amount:    m.Amount,
		DueDate:   m.DueDate,
		Status:    status,
		PaidAt:    m.PaidAt,
	}, nil
}

func entryFromModel(m EntryModel) (model.Transaction, error) {
	txType, err := model.ParseTransactionType(m.Type)
	if err != nil {
		return model.Transaction{}, err
	}
	status, err := model.ParseTransactionStatus(m.Status)
	if err != nil {
		return model.Transaction{}, err
	}
	tx := model.Transaction{
		ID:           m.ID,
		AccountID:    m.AccountID,
		Type:         txType,
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		Reference:    m.Reference,
		Description:  m.Description,
		Status:       status,
		CreatedAt:    m.CreatedAt,
		ScheduledFor: m.ScheduledFor,
		PostedAt:     m.PostedAt,
		Sequence:     m.Sequence,
		BatchID:      m.BatchID,
	}
	if len(m.Courses) > 0 {
		if err := json.Unmarshal(m.Courses, &tx.Courses); err != nil {
			return model.Transaction{}, fmt.Errorf("entry %s courses: %w", m.ID, err)
		}
	}
	if len(m.Legs) > 0 {
		if err := json.Unmarshal(m.Legs, &tx.Legs); err != nil {
			return model.Transaction{}, fmt.Errorf("entry %s legs: %w", m.ID, err)
		}
	}
	return tx, nil
}

func entryToModel(tx model.Transaction) (EntryModel, error) {
	m := EntryModel{
		ID:           tx.ID,
		Reference:    tx.Reference,
		AccountID:    tx.AccountID,
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		BalanceAfter: tx.BalanceAfter,
		Status:       string(tx.Status),
		Description:  tx.Description,
		CreatedAt:    tx.CreatedAt,
		ScheduledFor: tx.ScheduledFor,
		PostedAt:     tx.PostedAt,
		Sequence:     tx.Sequence,
		BatchID:      tx.BatchID,
	}
	if len(tx.Courses) > 0 {
		b, err := json.Marshal(tx.Courses)
		if err != nil {
			return EntryModel{}, fmt.Errorf("marshaling courses: %w", err)
		}
		m.Courses = datatypes.JSON(b)
	}
	if len(tx.Legs) > 0 {
		b, err := json.Marshal(tx.Legs)
		if err != nil {
			return EntryModel{}, fmt.Errorf("marshaling legs: %w", err)
		}
		m.Legs = datatypes.JSON(b)
	}
	return m, nil
}

func batchFromModel(m BatchModel) model.Batch {
	return model.Batch{
		ID:           m.ID,
		Description:  m.Description,
		Mode:         model.DistributionMode(m.Mode),
		TotalAmount:  m.TotalAmount,
		AccountCount: m.AccountCount,
		CreatedAt:    m.CreatedAt,
	}
}
