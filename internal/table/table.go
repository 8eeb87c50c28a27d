// Package table provides the row-oriented destination that plays are logged
// to. Rows are addressed 1-based like a spreadsheet; row 1 is the header.
package table

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Table is an append-mostly grid of string cells
type Table interface {
	// ReadAll returns every row, header included
	ReadAll(ctx context.Context) ([][]string, error)

	// InsertRow inserts row at the 1-based index, shifting later rows down
	InsertRow(ctx context.Context, row []string, index int) error

	// AppendRow adds row after the last row
	AppendRow(ctx context.Context, row []string) error
}

// Driver names
const (
	DriverSheets = "sheets"
	DriverSQLite = "sqlite"
)

// Config selects and configures a table driver
type Config struct {
	Driver            string
	SheetURL          string
	GoogleCredentials []byte // Service account key, sheets driver only
	SQLitePath        string
}

// Open opens the configured table. The returned close function releases the
// driver's resources.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Table, func() error, error) {
	switch cfg.Driver {
	case DriverSheets, "":
		id, err := ParseSheetID(cfg.SheetURL)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSheets(ctx, SheetsConfig{
			SpreadsheetID:   id,
			CredentialsJSON: cfg.GoogleCredentials,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil

	case DriverSQLite:
		s, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown table driver %q (expected %s or %s)", cfg.Driver, DriverSheets, DriverSQLite)
	}
}

var sheetIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9-_]+)`)

// ParseSheetID extracts the spreadsheet id from a sharing URL. A bare id is
// returned unchanged.
func ParseSheetID(sheetURL string) (string, error) {
	sheetURL = strings.TrimSpace(sheetURL)
	if sheetURL == "" {
		return "", fmt.Errorf("sheet URL is not configured")
	}

	if m := sheetIDPattern.FindStringSubmatch(sheetURL); m != nil {
		return m[1], nil
	}

	if !strings.ContainsAny(sheetURL, "/:?") {
		return sheetURL, nil
	}

	return "", fmt.Errorf("no spreadsheet id found in %q", sheetURL)
}

// Pad extends row with empty cells up to width
func Pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

// Recent returns the last n data rows (header excluded), newest first, each
// padded to the header width.
func Recent(rows [][]string, n int) [][]string {
	if len(rows) <= 1 || n <= 0 {
		return nil
	}

	width := len(rows[0])
	data := rows[1:]
	if len(data) > n {
		data = data[len(data)-n:]
	}

	out := make([][]string, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		out = append(out, Pad(data[i], width))
	}
	return out
}
