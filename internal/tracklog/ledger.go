// Package tracklog decides which plays are new and writes them to the
// destination table in a fixed column layout.
package tracklog

import (
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/jfmyers9/spotlog/internal/spotify"
)

// Columns holding the identity of a logged row
const (
	colDate      = 0
	colSpotifyID = 3

	minKeyColumns = colSpotifyID + 1
)

// Key identifies a logged play. In live mode PlayedAt is always empty.
type Key struct {
	TrackID  string
	PlayedAt string
}

func (k Key) String() string {
	if k.PlayedAt == "" {
		return k.TrackID
	}
	return k.TrackID + "@" + k.PlayedAt
}

// KeyFor returns the ledger key of item under mode
func KeyFor(item spotify.PlayedItem, mode spotify.Mode) Key {
	if mode == spotify.ModeLive {
		return Key{TrackID: item.TrackID}
	}
	return Key{TrackID: item.TrackID, PlayedAt: item.PlayedAtString()}
}

// Ledger is the set of keys already present in the destination table. It is
// built from the table at the start of a pass and discarded afterwards.
type Ledger struct {
	mode   spotify.Mode
	keys   map[Key]struct{}
	filter *bloom.BloomFilter
}

// BuildLedger scans rows (header first) and collects their keys. Rows too
// short to carry a Spotify ID are skipped.
func BuildLedger(rows [][]string, mode spotify.Mode) *Ledger {
	capacity := uint(len(rows))*2 + 64
	l := &Ledger{
		mode:   mode,
		keys:   make(map[Key]struct{}, len(rows)),
		filter: bloom.NewWithEstimates(capacity, 0.01),
	}

	for i, row := range rows {
		if i == 0 || len(row) < minKeyColumns {
			continue
		}

		key := Key{TrackID: row[colSpotifyID]}
		if mode == spotify.ModeBatch {
			key.PlayedAt = normalizePlayedAt(row[colDate])
		}
		l.add(key)
	}

	return l
}

// IsNew reports whether item has not been logged yet
func (l *Ledger) IsNew(item spotify.PlayedItem) bool {
	key := KeyFor(item, l.mode)
	if !l.filter.TestString(key.String()) {
		return true
	}
	_, exists := l.keys[key]
	return !exists
}

// Add records item so later checks in the same pass see it
func (l *Ledger) Add(item spotify.PlayedItem) {
	l.add(KeyFor(item, l.mode))
}

// Len returns the number of distinct keys
func (l *Ledger) Len() int {
	return len(l.keys)
}

func (l *Ledger) add(key Key) {
	if _, exists := l.keys[key]; exists {
		return
	}
	l.keys[key] = struct{}{}
	l.filter.AddString(key.String())
}

// normalizePlayedAt rewrites RFC 3339 timestamps in the layout rows are
// written with, so a cell typed by hand or without milliseconds still matches.
// Anything unparseable is kept verbatim.
func normalizePlayedAt(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(spotify.PlayedAtLayout)
}
