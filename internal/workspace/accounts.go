package workspace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edubill-dev/edubill/internal/model"
)

// AccountsHeader is the CSV header for accounts.csv.
const AccountsHeader = "account_id,holder_id,status,opening_balance,balance,created_at"

const (
	numAccountFields = 6
	colAccountID     = 0
	colHolderID      = 1
	colStatus        = 2
	colOpening       = 3
	colBalance       = 4
	colCreated       = 5
)

// ReadAccounts reads accounts.csv.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numAccountFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts.csv.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(AccountsHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numAccountFields)
	row[colAccountID] = acct.ID
	row[colHolderID] = acct.HolderID
	row[colStatus] = string(acct.Status)
	row[colOpening] = acct.OpeningBalance.StringFixed(2)
	row[colBalance] = acct.Balance.StringFixed(2)
	if !acct.CreatedAt.IsZero() {
		row[colCreated] = acct.CreatedAt.Format(time.RFC3339)
	}
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numAccountFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numAccountFields, len(record))
	}

	status, err := model.ParseAccountStatus(record[colStatus])
	if err != nil {
		return model.Account{}, err
	}
	opening, err := decimal.NewFromString(record[colOpening])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing opening_balance %q: %w", record[colOpening], err)
	}
	balance, err := decimal.NewFromString(record[colBalance])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing balance %q: %w", record[colBalance], err)
	}

	var created time.Time
	if record[colCreated] != "" {
		created, err = time.Parse(time.RFC3339, record[colCreated])
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing created_at %q: %w", record[colCreated], err)
		}
	}

	return model.Account{
		ID:             record[colAccountID],
		HolderID:       record[colHolderID],
		Status:         status,
		OpeningBalance: opening,
		Balance:        balance,
		CreatedAt:      created,
	}, nil
}
