package tracklog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jfmyers9/spotlog/internal/spotify"
	"github.com/jfmyers9/spotlog/internal/table"
	"github.com/rs/zerolog"
)

var (
	// BatchHeader is the header row for recently played logging
	BatchHeader = []string{"Date", "Track", "Artist", "Spotify ID", "URL", "Context Type"}

	// LiveHeader is the header row for currently playing logging
	LiveHeader = []string{"Date", "Track", "Artist", "Spotify ID", "URL"}
)

// Header returns a copy of the header row for mode
func Header(mode spotify.Mode) []string {
	if mode == spotify.ModeLive {
		return slices.Clone(LiveHeader)
	}
	return slices.Clone(BatchHeader)
}

// Markers describe the most recently logged play. They are for display only.
type Markers struct {
	TrackID   string    `json:"track_id,omitempty"`
	TrackName string    `json:"track_name,omitempty"`
	Artist    string    `json:"artist,omitempty"`
	PlayedAt  string    `json:"played_at,omitempty"` // Batch mode only
	LoggedAt  time.Time `json:"logged_at,omitzero"`
}

// Logger writes plays to a table
type Logger struct {
	table  table.Table
	mode   spotify.Mode
	logger zerolog.Logger

	mu      sync.RWMutex
	markers Markers
}

// NewLogger creates a Logger writing rows for mode
func NewLogger(t table.Table, mode spotify.Mode, logger zerolog.Logger) *Logger {
	return &Logger{
		table:  t,
		mode:   mode,
		logger: logger.With().Str("component", "tracklog").Logger(),
	}
}

// Mode returns the logging mode
func (l *Logger) Mode() spotify.Mode {
	return l.mode
}

// EnsureHeader reads the table and inserts the header as row 1 when the
// table is empty or its first row differs. It returns the rows as they stand
// afterwards.
func (l *Logger) EnsureHeader(ctx context.Context) ([][]string, error) {
	rows, err := l.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	header := Header(l.mode)
	if len(rows) > 0 && slices.Equal(rows[0], header) {
		return rows, nil
	}

	if err := l.table.InsertRow(ctx, header, 1); err != nil {
		return nil, fmt.Errorf("failed to insert header: %w", err)
	}

	l.logger.Info().Strs("header", header).Msg("Inserted header row")
	return append([][]string{header}, rows...), nil
}

// Row builds the table row for item
func (l *Logger) Row(item spotify.PlayedItem) []string {
	row := []string{
		item.PlayedAtString(),
		item.TrackName,
		item.ArtistList(),
		item.TrackID,
		item.ExternalURL,
	}
	if l.mode == spotify.ModeBatch {
		row = append(row, item.ContextType)
	}
	return row
}

// Append writes exactly one row for item and updates the markers
func (l *Logger) Append(ctx context.Context, item spotify.PlayedItem) error {
	if err := l.table.AppendRow(ctx, l.Row(item)); err != nil {
		return fmt.Errorf("failed to append %s: %w", item.TrackID, err)
	}

	m := Markers{
		TrackID:   item.TrackID,
		TrackName: item.TrackName,
		Artist:    item.ArtistList(),
		LoggedAt:  time.Now(),
	}
	if l.mode == spotify.ModeBatch {
		m.PlayedAt = item.PlayedAtString()
	}

	l.mu.Lock()
	l.markers = m
	l.mu.Unlock()

	l.logger.Debug().
		Str("track", item.TrackName).
		Str("artist", m.Artist).
		Str("played_at", m.PlayedAt).
		Msg("Logged play")

	return nil
}

// LogBatch appends the items the ledger has not seen, oldest first. items
// must be in API order (newest first). Each appended item is added to the
// ledger. On a write failure the count logged so far is returned with the error.
func (l *Logger) LogBatch(ctx context.Context, items []spotify.PlayedItem, ledger *Ledger) (int, error) {
	logged := 0
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if !ledger.IsNew(item) {
			continue
		}

		if err := l.Append(ctx, item); err != nil {
			return logged, err
		}
		ledger.Add(item)
		logged++
	}
	return logged, nil
}

// Recent re-reads the table and returns its last n data rows, newest first
func (l *Logger) Recent(ctx context.Context, n int) ([][]string, error) {
	rows, err := l.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	return table.Recent(rows, n), nil
}

// Markers returns the last logged play
func (l *Logger) Markers() Markers {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.markers
}
