package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteHistory is a SQLite history backend.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (or creates) the database at path.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteHistory{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", path, err)
	}

	return s, nil
}

// init creates the necessary tables.
func (s *SQLiteHistory) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL DEFAULT '',
			file TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			output_dir TEXT NOT NULL DEFAULT '',
			converted_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversions_run_id ON conversions(run_id);
	`)
	return err
}

// Store persists a record to SQLite.
func (s *SQLiteHistory) Store(r *Record) error {
	prepare(r)

	successInt := 0
	if r.Success {
		successInt = 1
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO conversions (id, run_id, file, name, success, error, output_dir, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RunID, r.File, r.Name, successInt, r.Error, r.OutputDir, r.ConvertedAt.Format(timeLayout))

	return err
}

// List returns matching records, newest first.
func (s *SQLiteHistory) List(q Query) ([]*Record, error) {
	query := `SELECT id, run_id, file, name, success, error, output_dir, converted_at FROM conversions`
	var args []any
	if q.RunID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, q.RunID)
	}
	query += ` ORDER BY converted_at DESC, seq DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		var successInt int
		var at string

		if err := rows.Scan(&r.ID, &r.RunID, &r.File, &r.Name, &successInt, &r.Error, &r.OutputDir, &at); err != nil {
			return nil, err
		}
		r.Success = successInt != 0
		if r.ConvertedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("record %s: bad timestamp %q: %w", r.ID, at, err)
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}

// Clear removes all records.
func (s *SQLiteHistory) Clear() error {
	_, err := s.db.Exec("DELETE FROM conversions")
	return err
}

// Close closes the database.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
