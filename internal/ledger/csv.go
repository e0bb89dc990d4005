package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// Header is the CSV header for ledger.csv.
const Header = "id,reference,account_id,type,amount,balance_after,status,created_at,scheduled_for,posted_at,sequence,batch_id,description,courses,legs"

const (
	numFields       = 15
	colID           = 0
	colRef          = 1
	colAcctID       = 2
	colType         = 3
	colAmount       = 4
	colBalance      = 5
	colStatus       = 6
	colCreated      = 7
	colScheduled    = 8
	colPosted       = 9
	colSequence     = 10
	colBatchID      = 11
	colDesc         = 12
	colCourses      = 13
	colLegs         = 14
	timestampLayout = time.RFC3339
)

// ReadEntries reads all entries from a ledger.csv reader.
func ReadEntries(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	// Skip header row.
	var entries []model.Transaction
	for i, rec := range records[1:] {
		tx, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, tx)
	}
	return entries, nil
}

// WriteEntries writes entries to a ledger.csv writer (including header).
func WriteEntries(w io.Writer, entries []model.Transaction) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, tx := range entries {
		row, err := MarshalEntry(tx)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// MarshalEntry converts a Transaction to a CSV row. Course lines and payment
// legs are stored as JSON arrays.
func MarshalEntry(tx model.Transaction) ([]string, error) {
	row := make([]string, numFields)
	row[colID] = tx.ID
	row[colRef] = tx.Reference
	row[colAcctID] = tx.AccountID
	row[colType] = string(tx.Type)
	row[colAmount] = tx.Amount.StringFixed(2)
	if tx.IsPosted() {
		row[colBalance] = tx.BalanceAfter.StringFixed(2)
	}
	row[colStatus] = string(tx.Status)
	row[colCreated] = tx.CreatedAt.Format(timestampLayout)
	row[colScheduled] = formatOptional(tx.ScheduledFor)
	row[colPosted] = formatOptional(tx.PostedAt)
	if tx.Sequence != 0 {
		row[colSequence] = strconv.FormatInt(tx.Sequence, 10)
	}
	row[colBatchID] = tx.BatchID
	row[colDesc] = tx.Description

	if len(tx.Courses) > 0 {
		b, err := json.Marshal(tx.Courses)
		if err != nil {
			return nil, fmt.Errorf("encoding courses: %w", err)
		}
		row[colCourses] = string(b)
	}
	if len(tx.Legs) > 0 {
		b, err := json.Marshal(tx.Legs)
		if err != nil {
			return nil, fmt.Errorf("encoding legs: %w", err)
		}
		row[colLegs] = string(b)
	}
	return row, nil
}

// UnmarshalEntry converts a CSV row to a Transaction.
func UnmarshalEntry(record []string) (model.Transaction, error) {
	if len(record) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	txType, err := model.ParseTransactionType(record[colType])
	if err != nil {
		return model.Transaction{}, err
	}
	status, err := model.ParseTransactionStatus(record[colStatus])
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	var balance decimal.Decimal
	if record[colBalance] != "" {
		balance, err = decimal.NewFromString(record[colBalance])
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing balance_after %q: %w", record[colBalance], err)
		}
	}

	created, err := time.Parse(timestampLayout, record[colCreated])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing created_at %q: %w", record[colCreated], err)
	}
	scheduled, err := parseOptional(record[colScheduled])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing scheduled_for: %w", err)
	}
	posted, err := parseOptional(record[colPosted])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing posted_at: %w", err)
	}

	var seq int64
	if record[colSequence] != "" {
		seq, err = strconv.ParseInt(record[colSequence], 10, 64)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parsing sequence %q: %w", record[colSequence], err)
		}
	}

	tx := model.Transaction{
		ID:           record[colID],
		Reference:    record[colRef],
		AccountID:    record[colAcctID],
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balance,
		Status:       status,
		CreatedAt:    created,
		ScheduledFor: scheduled,
		PostedAt:     posted,
		Sequence:     seq,
		BatchID:      record[colBatchID],
		Description:  record[colDesc],
	}

	if record[colCourses] != "" {
		if err := json.Unmarshal([]byte(record[colCourses]), &tx.Courses); err != nil {
			return model.Transaction{}, fmt.Errorf("parsing courses: %w", err)
		}
	}
	if record[colLegs] != "" {
		if err := json.Unmarshal([]byte(record[colLegs]), &tx.Legs); err != nil {
			return model.Transaction{}, fmt.Errorf("parsing legs: %w", err)
		}
	}
	return tx, nil
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timestampLayout)
}

func parseOptional(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
