package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Import SQLite driver for database/sql
)

// SQLiteLog is a Log in a SQLite table.
type SQLiteLog struct{ db *sql.DB }

// OpenSQLiteLog opens/creates a SQLite DB and ensures schema + PRAGMAs.
func OpenSQLiteLog(dsn string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS records (
  seq    INTEGER PRIMARY KEY AUTOINCREMENT,
  type   TEXT NOT NULL,
  fields BLOB NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteLog{db: db}, nil
}

func (s *SQLiteLog) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO records(type, fields) VALUES(?, ?)`, r.Type, []byte(r.Fields))
	return err
}

func (s *SQLiteLog) Replay(ctx context.Context, fn func(Record) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, type, fields FROM records ORDER BY seq ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int64
			rec    Record
			fields []byte
		)
		if err := rows.Scan(&seq, &rec.Type, &fields); err != nil {
			return err
		}
		if rec.Type == "" || !json.Valid(fields) {
			return fmt.Errorf("%w: record %d", ErrMalformed, seq)
		}
		rec.Fields = fields

		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteLog) Close() error {
	return s.db.Close()
}
