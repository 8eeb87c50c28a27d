package spotify

import (
	"fmt"
	"strings"
	"time"
)

// PlayedAtLayout is the timestamp layout Spotify uses for played_at. Rows are
// written with it so a logged play compares equal to a later fetch of it.
const PlayedAtLayout = "2006-01-02T15:04:05.000Z"

// PlayedItem is one play returned by the Web API
type PlayedItem struct {
	TrackID     string
	TrackName   string
	Artists     []string
	ExternalURL string
	PlayedAt    time.Time
	ContextType string // Empty when the play had no playback context
}

// PlayedAtString renders PlayedAt in Spotify's own format
func (p PlayedItem) PlayedAtString() string {
	if p.PlayedAt.IsZero() {
		return ""
	}
	return p.PlayedAt.UTC().Format(PlayedAtLayout)
}

// ArtistList joins the artist names the way they are written to the table
func (p PlayedItem) ArtistList() string {
	return strings.Join(p.Artists, ", ")
}

// Mode selects what the fetcher reads on each pass
type Mode int

const (
	ModeBatch Mode = iota // Bounded window of recently played items
	ModeLive              // The currently playing item
)

// String returns the config spelling of the mode
func (m Mode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeLive:
		return "live"
	default:
		return "unknown"
	}
}

// ParseMode parses "batch" or "live"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "":
		return ModeBatch, nil
	case "live":
		return ModeLive, nil
	default:
		return ModeBatch, fmt.Errorf("unknown mode %q (expected batch or live)", s)
	}
}
