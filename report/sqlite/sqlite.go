// Package sqlite implements a report.Sink that stores RunRecords in a
// SQLite database table named run_records.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/vecbench/report"
	"github.com/hupe1980/vecbench/resource"
)

// TableName is the table records are written to.
const TableName = "run_records"

var _ report.Sink = (*Sink)(nil)

// Sink inserts one row per record.
type Sink struct {
	db     *sql.DB
	insert string
}

// Open opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func Open(dbPath string) (*Sink, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	names := report.FieldNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableName, strings.Join(names, ", "), placeholders)

	return &Sink{db: db, insert: insert}, nil
}

// schema derives column types from the field values of a fully populated record.
func schema() string {
	fields := report.RunRecord{BuildUsage: &resource.Usage{}}.Fields()

	cols := make([]string, len(fields))
	for i, f := range fields {
		var typ string
		switch f.Value.(type) {
		case string:
			typ = "TEXT"
		case float64:
			typ = "REAL"
		default:
			typ = "INTEGER"
		}
		col := f.Name + " " + typ
		if f.Name == "run_id" {
			col += " PRIMARY KEY"
		}
		cols[i] = col
	}

	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		%[2]s
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_session ON %[1]s(session_id);
	`, TableName, strings.Join(cols, ",\n\t\t"))
}

// Write inserts r.
func (s *Sink) Write(ctx context.Context, r report.RunRecord) error {
	fields := r.Fields()
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.Value
	}

	if _, err := s.db.ExecContext(ctx, s.insert, args...); err != nil {
		return fmt.Errorf("sqlite: insert record %s: %w", r.RunID, err)
	}
	return nil
}

// RunIDs returns the run ids stored for a session in insertion order.
func (s *Sink) RunIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT run_id FROM %s WHERE session_id = ? ORDER BY rowid", TableName), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DB exposes the underlying database for ad-hoc queries.
func (s *Sink) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}
