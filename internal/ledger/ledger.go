// Package ledger implements the durable, duplicate-suppressing IOC
// collection. The JSON backend keeps one flat array of records,
// insertion-ordered, and replaces the file atomically on every append.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/inteltool/inteltool/internal/ioc"
)

// CorruptError reports a ledger that exists but cannot be parsed.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// WriteError reports a failed ledger persist. The previous ledger content
// is left untouched.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger %s write failed: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Ledger is the JSON-file-backed store. All appends run the full
// load-merge-persist cycle under one mutex; concurrent appends would
// otherwise silently lose each other's records.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// Open returns a ledger backed by the given file. The file is created on
// first append.
func Open(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Append adds the records whose (value, type) key is not yet present,
// preserving input order, and persists the full ledger atomically.
// It returns the count of newly added records.
func (l *Ledger) Append(records []ioc.IOC) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.load()
	if err != nil {
		return 0, err
	}

	seen := make(map[ioc.Key]bool, len(existing))
	for _, rec := range existing {
		seen[rec.Key()] = true
	}

	added := 0
	for _, rec := range records {
		key := rec.Key()
		if seen[key] {
			continue
		}
		existing = append(existing, rec)
		seen[key] = true
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := l.persist(existing); err != nil {
		return 0, err
	}
	return added, nil
}

// Records returns a snapshot of all ledger records in insertion order.
func (l *Ledger) Records() ([]ioc.IOC, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// DuplicateValues returns the distinct ioc_values appearing two or more
// times, in first-appearance order. Unlike the append key this considers
// the value alone, ignoring the type; the two checks are intentionally
// separate operations.
func (l *Ledger) DuplicateValues() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(records))
	var order []string
	for _, rec := range records {
		if counts[rec.Value] == 0 {
			order = append(order, rec.Value)
		}
		counts[rec.Value]++
	}
	var dups []string
	for _, v := range order {
		if counts[v] > 1 {
			dups = append(dups, v)
		}
	}
	return dups, nil
}

// TopReported returns the records for the given date ranked by their
// totalReports extra field, descending, truncated to limit. Records
// without the field count as zero; ties keep ledger order.
func (l *Ledger) TopReported(date string, limit int) ([]ioc.ValueCount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, err
	}
	var daily []ioc.IOC
	for _, rec := range records {
		if rec.Date == date {
			daily = append(daily, rec)
		}
	}
	sort.SliceStable(daily, func(i, j int) bool {
		return totalReports(daily[i]) > totalReports(daily[j])
	})
	if limit > 0 && len(daily) > limit {
		daily = daily[:limit]
	}
	top := make([]ioc.ValueCount, 0, len(daily))
	for _, rec := range daily {
		top = append(top, ioc.ValueCount{Value: rec.Value, Count: totalReports(rec)})
	}
	return top, nil
}

func totalReports(rec ioc.IOC) int {
	switch v := rec.Extra["totalReports"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (l *Ledger) load() ([]ioc.IOC, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &CorruptError{Path: l.path, Err: err}
	}
	var records []ioc.IOC
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &CorruptError{Path: l.path, Err: err}
	}
	return records, nil
}

// persist writes the full ledger to a temp file in the same directory and
// renames it over the target, so readers never see a partial write.
func (l *Ledger) persist(records []ioc.IOC) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &WriteError{Path: l.path, Err: err}
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: l.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return &WriteError{Path: l.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: l.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: l.path, Err: err}
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: l.path, Err: err}
	}
	return nil
}
