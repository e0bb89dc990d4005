// Package importer loads outstanding charges written by the fee run. Files
// are dropped into <root>/import/ and moved to import/processed/ once their
// charges are stored.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

// Parser converts a fee-run export into outstanding charges.
type Parser interface {
	Parse(r io.Reader) ([]model.OutstandingCharge, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a CSV file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&FeeRunParser{})
	return r
}

const (
	importDir    = "import"
	processedDir = "import/processed"
)

// Scan returns CSV files in <root>/import/.
func Scan(root string) ([]FileInfo, error) {
	dir := filepath.Join(root, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(root, fileName string) error {
	dstDir := filepath.Join(root, processedDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	src := filepath.Join(root, importDir, fileName)
	if err := os.Rename(src, filepath.Join(dstDir, fileName)); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// ParseFile opens path and runs p over it.
func ParseFile(p Parser, path string) ([]model.OutstandingCharge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	charges, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return charges, nil
}

// Lookup is what Check needs to resolve imported rows.
type Lookup struct {
	Accounts store.AccountStore
	Courses  store.CourseStore
	Charges  store.ChargeStore
}

// Result splits parsed charges into those to store and IDs already known.
type Result struct {
	New        []model.OutstandingCharge
	Duplicates []string
}

// Check resolves every charge against the stores. A charge whose ID is
// already stored, or repeated within the input, is reported as a duplicate
// and never overwritten. An unknown account or course fails the whole import.
func Check(ctx context.Context, l Lookup, charges []model.OutstandingCharge) (Result, error) {
	var res Result
	seen := make(map[string]bool, len(charges))
	for _, c := range charges {
		if seen[c.ID] {
			res.Duplicates = append(res.Duplicates, c.ID)
			continue
		}
		seen[c.ID] = true

		_, err := l.Charges.GetCharge(ctx, c.ID)
		switch {
		case err == nil:
			res.Duplicates = append(res.Duplicates, c.ID)
			continue
		case !errors.Is(err, store.ErrNotFound):
			return Result{}, fmt.Errorf("looking up charge %s: %w", c.ID, err)
		}

		if _, err := l.Accounts.GetAccount(ctx, c.AccountID); err != nil {
			return Result{}, fmt.Errorf("charge %s: %w", c.ID, err)
		}
		if _, err := l.Courses.GetCourse(ctx, c.CourseID); err != nil {
			return Result{}, fmt.Errorf("charge %s: %w", c.ID, err)
		}
		res.New = append(res.New, c)
	}
	return res, nil
}
