// Package workspace persists a billing data set as plain files in a directory:
// edubill.yaml, data/accounts.csv, data/records.yaml, data/ledger.csv and the
// audit log. It loads them into a memory.Store and writes them back.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/edubill-dev/edubill/internal/audit"
	"github.com/edubill-dev/edubill/internal/config"
	"github.com/edubill-dev/edubill/internal/ledger"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store/memory"
)

// Paths relative to the workspace root.
const (
	DataDir      = "data"
	AccountsFile = "data/accounts.csv"
	RecordsFile  = "data/records.yaml"
	LedgerFile   = "data/ledger.csv"
)

// Records is the YAML document holding reference data and batch records.
type Records struct {
	Holders     []model.Holder            `yaml:"holders"`
	Courses     []model.Course            `yaml:"courses"`
	Enrollments []model.Enrollment        `yaml:"enrollments"`
	Charges     []model.OutstandingCharge `yaml:"charges"`
	Batches     []model.Batch             `yaml:"batches"`
}

// Workspace is an opened workspace directory.
type Workspace struct {
	Root   string
	Config *config.Config
	Store  *memory.Store

	saveMu sync.Mutex
}

// Init creates a new workspace at root. It fails if edubill.yaml already exists.
func Init(root, institution string) (*Workspace, error) {
	cfgPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return nil, fmt.Errorf("%s already exists in %s", config.FileName, root)
	}

	for _, dir := range []string{DataDir, filepath.Dir(audit.LogFile)} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	cfg := config.Default(institution)
	if err := config.Save(cfgPath, cfg); err != nil {
		return nil, err
	}

	ws := &Workspace{Root: root, Config: cfg, Store: memory.New()}
	if err := ws.Save(); err != nil {
		return nil, err
	}
	return ws, nil
}

// Open loads the workspace at root.
func Open(root string) (*Workspace, error) {
	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		return nil, err
	}
	st, err := LoadStore(root)
	if err != nil {
		return nil, err
	}
	return &Workspace{Root: root, Config: cfg, Store: st}, nil
}

// LoadStore reads the data files under root into a new memory.Store. Missing
// files are treated as empty.
func LoadStore(root string) (*memory.Store, error) {
	st := memory.New()

	accounts, err := readFile(filepath.Join(root, AccountsFile), ReadAccounts)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		st.PutAccount(a)
	}

	var recs Records
	data, err := os.ReadFile(filepath.Join(root, RecordsFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading records: %w", err)
	default:
		if err := yaml.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parsing records: %w", err)
		}
	}
	if err := recs.validate(); err != nil {
		return nil, err
	}
	for _, h := range recs.Holders {
		st.PutHolder(h)
	}
	for _, c := range recs.Courses {
		st.PutCourse(c)
	}
	for _, e := range recs.Enrollments {
		st.PutEnrollment(e)
	}
	for _, c := range recs.Charges {
		st.PutCharge(c)
	}

	entries, err := readFile(filepath.Join(root, LedgerFile), ledger.ReadEntries)
	if err != nil {
		return nil, err
	}
	st.Restore(entries, recs.Batches)
	return st, nil
}

// Save writes the store contents back to the data files.
func (w *Workspace) Save() error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	snap := w.Store.Snapshot()

	if err := os.MkdirAll(filepath.Join(w.Root, DataDir), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	if err := writeFile(filepath.Join(w.Root, AccountsFile), func(f *os.File) error {
		return WriteAccounts(f, snap.Accounts)
	}); err != nil {
		return err
	}

	recs := Records{
		Holders:     snap.Holders,
		Courses:     snap.Courses,
		Enrollments: snap.Enrollments,
		Charges:     snap.Charges,
		Batches:     snap.Batches,
	}
	data, err := yaml.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshaling records: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.Root, RecordsFile), data, 0o644); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}

	return writeFile(filepath.Join(w.Root, LedgerFile), func(f *os.File) error {
		return ledger.WriteEntries(f, snap.Ledger)
	})
}

// AuditSink returns the CSV audit sink rooted at the workspace.
func (w *Workspace) AuditSink() *audit.CSVSink {
	return audit.NewCSVSink(w.Root)
}

func (r Records) validate() error {
	for _, c := range r.Courses {
		if _, err := model.ParsePaymentType(string(c.PaymentType)); err != nil {
			return fmt.Errorf("course %s: %w", c.ID, err)
		}
		if c.BillingCycle != nil {
			if _, err := model.ParseBillingCycle(string(*c.BillingCycle)); err != nil {
				return fmt.Errorf("course %s: %w", c.ID, err)
			}
		}
	}
	for _, c := range r.Charges {
		if _, err := model.ParseChargeStatus(string(c.Status)); err != nil {
			return fmt.Errorf("charge %s: %w", c.ID, err)
		}
	}
	for _, h := range r.Holders {
		if h.SchoolingStatus == "" {
			continue
		}
		if _, err := model.ParseSchoolingStatus(string(h.SchoolingStatus)); err != nil {
			return fmt.Errorf("holder %s: %w", h.ID, err)
		}
	}
	return nil
}

func readFile[T any](path string, read func(r io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	items, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return items, nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
