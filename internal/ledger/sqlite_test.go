package ledger

import (
	"path/filepath"
	"testing"

	"github.com/inteltool/inteltool/internal/ioc"
)

func tempSQL(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(filepath.Join(t.TempDir(), "iocs.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertIgnoring(t *testing.T) {
	s := tempSQL(t)
	r := rec("1.1.1.1", "IP", "AbuseIPDB")

	ok, err := s.InsertIgnoring(r)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !ok {
		t.Fatal("first insert reported not inserted")
	}

	ok, err = s.InsertIgnoring(r)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Error("duplicate key was inserted")
	}

	// Same value, different type: distinct entity.
	ok, _ = s.InsertIgnoring(rec("1.1.1.1", "domain", "OTX"))
	if !ok {
		t.Error("distinct (value, type) pair rejected")
	}
}

func TestExists(t *testing.T) {
	s := tempSQL(t)
	s.InsertIgnoring(rec("evil.com", "URL", "URLHaus"))

	if ok, _ := s.Exists("evil.com", "URL"); !ok {
		t.Error("Exists = false for stored key")
	}
	if ok, _ := s.Exists("evil.com", "domain"); ok {
		t.Error("Exists = true for absent type")
	}
}

func TestInsertBatchSkipsDuplicates(t *testing.T) {
	s := tempSQL(t)
	s.InsertIgnoring(rec("1.1.1.1", "IP", "AbuseIPDB"))

	added, err := s.InsertBatch([]ioc.IOC{
		rec("1.1.1.1", "IP", "OTX"),
		rec("evil.com", "URL", "URLHaus"),
		rec("2.2.2.2", "IP", "AbuseIPDB"),
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
}

func TestFilterNew(t *testing.T) {
	s := tempSQL(t)
	s.InsertIgnoring(rec("1.1.1.1", "IP", "AbuseIPDB"))

	fresh, err := s.FilterNew([]ioc.IOC{
		rec("1.1.1.1", "IP", "OTX"),
		rec("evil.com", "URL", "URLHaus"),
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(fresh) != 1 || fresh[0].Value != "evil.com" {
		t.Errorf("fresh = %v", fresh)
	}
}
