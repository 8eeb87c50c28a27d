package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/spotlog/internal/tracklog"
)

// State is a position in the poll driver's lifecycle
type State int

const (
	StateIdle           State = iota // No session; user must authorize
	StateAuthorizing                 // Code received, exchange in flight
	StateAuthorizedIdle              // Session held, not polling
	StatePolling                     // Running a pass on every tick
	StateStopped                     // User stopped polling; settles to AuthorizedIdle
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateAuthorizing:    "authorizing",
	StateAuthorizedIdle: "authorized",
	StatePolling:        "polling",
	StateStopped:        "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Status is a point-in-time view of the daemon for display
type Status struct {
	State      State            `json:"state"`
	Authorized bool             `json:"authorized"`
	Mode       string           `json:"mode"`
	Message    string           `json:"message,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	Last       tracklog.Markers `json:"last"`
	Header     []string         `json:"header,omitempty"`
	Recent     [][]string       `json:"recent,omitempty"`
	LastPass   time.Time        `json:"last_pass,omitzero"`
	Passes     int              `json:"passes"`
	Logged     int              `json:"logged"`
}

// StatusBoard holds the latest Status with thread-safe access. When a file
// path is set the status is mirrored to disk so the CLI can show the last
// logged track while the daemon is down. Tokens are never part of it.
type StatusBoard struct {
	mu       sync.RWMutex
	current  Status
	filePath string
}

// NewStatusBoard creates a StatusBoard, restoring display fields from
// filePath when it exists. Session fields always start cleared.
func NewStatusBoard(filePath string) (*StatusBoard, error) {
	b := &StatusBoard{filePath: filePath}

	if filePath != "" {
		restored, err := LoadStatusFile(filePath)
		if err != nil && !os.IsNotExist(err) {
			// Start fresh; a stale status file is not fatal
			return b, err
		}
		if err == nil {
			restored.State = StateIdle
			restored.Authorized = false
			b.current = restored
		}
	}

	return b, nil
}

// Get returns a copy of the current status
func (b *StatusBoard) Get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.current
	s.Header = append([]string(nil), b.current.Header...)
	s.Recent = make([][]string, len(b.current.Recent))
	copy(s.Recent, b.current.Recent)
	return s
}

// Update applies fn to the status and persists the result
func (b *StatusBoard) Update(fn func(*Status)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn(&b.current)
	return b.persist()
}

// persist saves the status to disk. Must be called with lock held.
func (b *StatusBoard) persist() error {
	if b.filePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(b.current, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(b.filePath), 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := b.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, b.filePath)
}

// LoadStatusFile reads a status written by a StatusBoard
func LoadStatusFile(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, err
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("failed to decode status file: %w", err)
	}
	return s, nil
}
