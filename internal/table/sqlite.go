package table

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is a single-file local table. Each row is stored as a JSON array
// of cells keyed by its 1-based position.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) a table backed by SQLite
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps :memory: databases consistent across calls
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS rows (
			pos INTEGER NOT NULL UNIQUE,
			cells TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadAll returns every row ordered by position
func (s *SQLite) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT cells FROM rows ORDER BY pos ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, cells)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// InsertRow inserts row at index, shifting rows at or after it down by one.
// An index past the end appends.
func (s *SQLite) InsertRow(ctx context.Context, row []string, index int) error {
	if index < 1 {
		return fmt.Errorf("row index %d out of range", index)
	}

	cells, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM rows").Scan(&count); err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	if index > count+1 {
		index = count + 1
	}

	// Shift through negative positions so the UNIQUE constraint holds per row
	if _, err := tx.ExecContext(ctx, "UPDATE rows SET pos = -(pos + 1) WHERE pos >= ?", index); err != nil {
		return fmt.Errorf("failed to shift rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE rows SET pos = -pos WHERE pos < 0"); err != nil {
		return fmt.Errorf("failed to shift rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO rows (pos, cells) VALUES (?, ?)", index, string(cells)); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AppendRow adds row after the last row
func (s *SQLite) AppendRow(ctx context.Context, row []string) error {
	cells, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}

	query := `
		INSERT INTO rows (pos, cells)
		VALUES ((SELECT COALESCE(MAX(pos), 0) + 1 FROM rows), ?)
	`

	if _, err := s.db.ExecContext(ctx, query, string(cells)); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	return nil
}

// Count returns the number of rows, header included
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rows").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}
