package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// FeeRunHeader is the header of a fee-run charge export.
const FeeRunHeader = "charge_id,account_id,course_id,period,amount,due_date,status"

// FeeRunParser parses the charge CSV written by the monthly fee run.
type FeeRunParser struct{}

const (
	feeRunNumFields = 7
	feeRunColID     = 0
	feeRunColAcct   = 1
	feeRunColCourse = 2
	feeRunColPeriod = 3
	feeRunColAmount = 4
	feeRunColDue    = 5
	feeRunColStatus = 6
)

// Format returns the parser name.
func (p *FeeRunParser) Format() string { return "feerun" }

// Parse reads a fee-run CSV and returns its charges.
func (p *FeeRunParser) Parse(r io.Reader) ([]model.OutstandingCharge, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = feeRunNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading fee-run CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if got := strings.Join(records[0], ","); got != FeeRunHeader {
		return nil, fmt.Errorf("unexpected header %q", got)
	}

	var charges []model.OutstandingCharge
	for i, rec := range records[1:] {
		c, err := parseFeeRunRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		charges = append(charges, c)
	}
	return charges, nil
}

func parseFeeRunRow(rec []string) (model.OutstandingCharge, error) {
	for _, col := range []int{feeRunColID, feeRunColAcct, feeRunColCourse, feeRunColPeriod} {
		if strings.TrimSpace(rec[col]) == "" {
			return model.OutstandingCharge{}, fmt.Errorf("column %d is empty", col+1)
		}
	}

	amount, err := decimal.NewFromString(rec[feeRunColAmount])
	if err != nil {
		return model.OutstandingCharge{}, fmt.Errorf("parsing amount %q: %w", rec[feeRunColAmount], err)
	}
	if err := model.ValidateAmount("amount", amount); err != nil {
		return model.OutstandingCharge{}, err
	}

	due, err := time.Parse(time.DateOnly, rec[feeRunColDue])
	if err != nil {
		return model.OutstandingCharge{}, fmt.Errorf("parsing due_date %q: %w", rec[feeRunColDue], err)
	}

	status, err := model.ParseChargeStatus(rec[feeRunColStatus])
	if err != nil {
		return model.OutstandingCharge{}, err
	}

	return model.OutstandingCharge{
		ID:        rec[feeRunColID],
		AccountID: rec[feeRunColAcct],
		CourseID:  rec[feeRunColCourse],
		Period:    rec[feeRunColPeriod],
		Amount:    amount,
		DueDate:   due,
		Status:    status,
	}, nil
}
