package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inteltool/inteltool/internal/ioc"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS iocs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ioc_value   TEXT NOT NULL,
	ioc_type    TEXT NOT NULL,
	source      TEXT,
	date        TEXT,
	time        TEXT,
	description TEXT,
	tags        TEXT DEFAULT '[]',
	extra       TEXT DEFAULT '{}',
	UNIQUE(ioc_value, ioc_type)
);
CREATE INDEX IF NOT EXISTS idx_iocs_date ON iocs(date);
CREATE INDEX IF NOT EXISTS idx_iocs_source ON iocs(source);
`

// SQLStore is the indexed ledger backend. It enforces the same
// (value, type) uniqueness as the JSON ledger but supports point lookups
// without loading the whole dataset.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, &CorruptError{Path: path, Err: err}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// InsertIgnoring inserts the record unless its (value, type) key already
// exists. Returns whether a row was inserted.
func (s *SQLStore) InsertIgnoring(rec ioc.IOC) (bool, error) {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return false, err
	}
	extra, err := json.Marshal(rec.Extra)
	if err != nil {
		return false, err
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO iocs (ioc_value, ioc_type, source, date, time, description, tags, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Value, rec.Type, rec.Source, rec.Date, rec.Time, rec.Description, string(tags), string(extra),
	)
	if err != nil {
		return false, &WriteError{Path: "sqlite", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertBatch inserts records in order, skipping duplicates, inside one
// transaction. Returns the number of newly inserted rows.
func (s *SQLStore) InsertBatch(records []ioc.IOC) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, &WriteError{Path: "sqlite", Err: err}
	}
	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO iocs (ioc_value, ioc_type, source, date, time, description, tags, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, &WriteError{Path: "sqlite", Err: err}
	}
	defer stmt.Close()

	added := 0
	for _, rec := range records {
		tags, err := json.Marshal(rec.Tags)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		extra, err := json.Marshal(rec.Extra)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		res, err := stmt.Exec(rec.Value, rec.Type, rec.Source, rec.Date, rec.Time, rec.Description, string(tags), string(extra))
		if err != nil {
			tx.Rollback()
			return 0, &WriteError{Path: "sqlite", Err: err}
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, &WriteError{Path: "sqlite", Err: err}
	}
	return added, nil
}

// Exists reports whether a record with the (value, type) key is present.
func (s *SQLStore) Exists(value, iocType string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM iocs WHERE ioc_value = ? AND ioc_type = ?`, value, iocType,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FilterNew returns the subset of records whose key is not yet stored,
// preserving input order.
func (s *SQLStore) FilterNew(records []ioc.IOC) ([]ioc.IOC, error) {
	var fresh []ioc.IOC
	for _, rec := range records {
		ok, err := s.Exists(rec.Value, rec.Type)
		if err != nil {
			return nil, err
		}
		if !ok {
			fresh = append(fresh, rec)
		}
	}
	return fresh, nil
}
