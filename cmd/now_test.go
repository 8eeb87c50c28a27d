package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/jfmyers9/spotlog/internal/tracklog"
	"github.com/mattn/go-runewidth"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle unicode characters",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate unicode text",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ",
		},
		{
			name:     "empty string padding",
			input:    "",
			width:    5,
			expected: "     ",
		},
		{
			name:     "minimum width for truncation",
			input:    "Hello",
			width:    3,
			expected: "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, expected %q",
					tt.input, tt.width, result, tt.expected)
			}

			if tt.width > 0 {
				resultWidth := runewidth.StringWidth(result)
				if resultWidth != tt.width {
					t.Errorf("padToWidth(%q, %d) produced width %d, expected %d",
						tt.input, tt.width, resultWidth, tt.width)
				}
			}
		})
	}
}

func TestFormatTrack(t *testing.T) {
	track := nowTrack{Track: "Song", Artist: "Band", TrackID: "id1", PlayedAt: "2024-05-01T10:00:00.000Z"}

	tests := []struct {
		name     string
		format   string
		expected string
		wantErr  bool
	}{
		{name: "default format", format: "{{.Artist}} - {{.Track}}", expected: "Band - Song"},
		{name: "all fields", format: "{{.TrackID}} {{.PlayedAt}}", expected: "id1 2024-05-01T10:00:00.000Z"},
		{name: "parse error", format: "{{.Artist", wantErr: true},
		{name: "unknown field", format: "{{.Album}}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatTrack(track, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("formatTrack error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("formatTrack = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestLastLoggedFallsBackToStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	board, err := daemon.NewStatusBoard(path)
	if err != nil {
		t.Fatalf("NewStatusBoard: %v", err)
	}
	if err := board.Update(func(s *daemon.Status) {
		s.Last = tracklog.Markers{TrackID: "id1", TrackName: "Song", Artist: "Band"}
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Nothing listens on port 1
	last, err := lastLogged(context.Background(), "127.0.0.1:1", path)
	if err != nil {
		t.Fatalf("lastLogged: %v", err)
	}
	if last.TrackID != "id1" || last.TrackName != "Song" {
		t.Errorf("last = %+v", last)
	}

	missing := filepath.Join(t.TempDir(), "none.json")
	last, err = lastLogged(context.Background(), "127.0.0.1:1", missing)
	if err != nil {
		t.Fatalf("lastLogged with no status file: %v", err)
	}
	if last.TrackID != "" {
		t.Errorf("expected empty markers, got %+v", last)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("status file should not be created")
	}
}
