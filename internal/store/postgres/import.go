package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store/memory"
)

// ImportStats counts rows written by Import.
type ImportStats struct {
	Accounts    int
	Holders     int
	Courses     int
	Enrollments int
	Charges     int
	Entries     int
	Batches     int
}

// Import upserts every record of snap in one transaction. Existing rows with
// the same primary key are overwritten.
func (s *Store) Import(ctx context.Context, snap memory.Snapshot) (ImportStats, error) {
	var stats ImportStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})

		for _, a := range snap.Accounts {
			m := accountToModel(a)
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("account %s: %w", a.ID, err)
			}
			stats.Accounts++
		}
		for _, h := range snap.Holders {
			m := HolderModel{ID: h.ID, Name: h.Name, BirthDate: h.BirthDate, SchoolingStatus: string(h.SchoolingStatus)}
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("holder %s: %w", h.ID, err)
			}
			stats.Holders++
		}
		for _, c := range snap.Courses {
			m := courseToModel(c)
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("course %s: %w", c.ID, err)
			}
			stats.Courses++
		}
		for _, e := range snap.Enrollments {
			m := EnrollmentModel{
				ID:        e.ID,
				HolderID:  e.HolderID,
				AccountID: e.AccountID,
				CourseID:  e.CourseID,
				StartDate: e.StartDate,
				Active:    e.Active,
			}
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("enrollment %s: %w", e.ID, err)
			}
			stats.Enrollments++
		}
		for _, c := range snap.Charges {
			m := chargeToModel(c)
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("charge %s: %w", c.ID, err)
			}
			stats.Charges++
		}
		for _, e := range snap.Ledger {
			m, err := entryToModel(e)
			if err != nil {
				return fmt.Errorf("entry %s: %w", e.ID, err)
			}
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("entry %s: %w", e.ID, err)
			}
			stats.Entries++
		}
		for _, b := range snap.Batches {
			m := batchToModel(b)
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("batch %s: %w", b.ID, err)
			}
			stats.Batches++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, fmt.Errorf("importing: %w", err)
	}
	return stats, nil
}

func chargeToModel(c model.OutstandingCharge) ChargeModel {
	return ChargeModel{
		ID:        c.ID,
		AccountID: c.AccountID,
		CourseID:  c.CourseID,
		Period:    c.Period,
		Amount:    c.Amount,
		DueDate:   c.DueDate,
		Status:    string(c.Status),
		PaidAt:    c.PaidAt,
	}
}

func batchToModel(b model.Batch) BatchModel {
	return BatchModel{
		ID:           b.ID,
		Description:  b.Description,
		Mode:         string(b.Mode),
		TotalAmount:  b.TotalAmount,
		AccountCount: b.AccountCount,
		CreatedAt:    b.CreatedAt,
	}
}
