package table

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseSheetID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "sharing url",
			url:  "https://docs.google.com/spreadsheets/d/1AbC-dEf_123/edit#gid=0",
			want: "1AbC-dEf_123",
		},
		{
			name: "no trailing path",
			url:  "https://docs.google.com/spreadsheets/d/xyz789",
			want: "xyz789",
		},
		{name: "bare id", url: "1AbC-dEf_123", want: "1AbC-dEf_123"},
		{name: "empty", url: "  ", wantErr: true},
		{name: "unrelated url", url: "https://example.com/sheet?id=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSheetID(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecent(t *testing.T) {
	rows := [][]string{
		{"Date", "Track", "Artist"},
		{"d1", "t1"},
		{"d2", "t2", "a2"},
		{"d3", "t3", "a3"},
	}

	got := Recent(rows, 2)
	want := [][]string{
		{"d3", "t3", "a3"},
		{"d2", "t2", "a2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Recent(2) = %v, want %v", got, want)
	}

	got = Recent(rows, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if !reflect.DeepEqual(got[2], []string{"d1", "t1", ""}) {
		t.Errorf("short row not padded: %v", got[2])
	}

	if Recent(rows[:1], 5) != nil {
		t.Error("header-only table should have no recent rows")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		tbl, closeFn, err := Open(ctx, Config{Driver: DriverSQLite, SQLitePath: ":memory:"}, zerolog.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer func() { _ = closeFn() }()

		if _, ok := tbl.(*SQLite); !ok {
			t.Errorf("expected *SQLite, got %T", tbl)
		}
	})

	t.Run("sheets without url", func(t *testing.T) {
		if _, _, err := Open(ctx, Config{Driver: DriverSheets}, zerolog.Nop()); err == nil {
			t.Error("expected error for missing sheet url")
		}
	})

	t.Run("sheets with wrong key type", func(t *testing.T) {
		_, _, err := Open(ctx, Config{
			Driver:            DriverSheets,
			SheetURL:          "https://docs.google.com/spreadsheets/d/abc/edit",
			GoogleCredentials: []byte(`{"type":"authorized_user"}`),
		}, zerolog.Nop())
		if err == nil {
			t.Error("expected error for incomplete service account key")
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, _, err := Open(ctx, Config{Driver: "csv"}, zerolog.Nop()); err == nil {
			t.Error("expected error for unknown driver")
		}
	})
}
