// Package credentials locates the Spotify client credentials and the Google
// service account key used by the destination table.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Credentials holds the Spotify application client id and secret
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Error reports missing or placeholder credentials. It is fatal to startup.
type Error struct {
	Source string // Where the lookup happened (file path, env var, prompt)
	Reason string
}

func (e *Error) Error() string {
	if e.Source == "" {
		return "credentials: " + e.Reason
	}
	return fmt.Sprintf("credentials: %s: %s", e.Source, e.Reason)
}

// ErrNotFound is returned by a Source that has nothing to offer. Chain moves on
// to the next source when it sees it.
var ErrNotFound = errors.New("credentials: not found")

// placeholders are values shipped in example credential files
var placeholders = []string{
	"YOUR_CLIENT_ID",
	"ВАШ_CLIENT_ID",
	"<client_id>",
	"changeme",
}

// Validate rejects empty or placeholder credentials
func (c Credentials) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return &Error{Reason: "client_id and client_secret are required"}
	}
	for _, p := range placeholders {
		if strings.Contains(c.ClientID, p) {
			return &Error{Reason: "client_id still contains the placeholder " + p}
		}
	}
	return nil
}

// Source supplies Spotify credentials
type Source interface {
	Load(ctx context.Context) (Credentials, error)
}

// Static returns credentials that were configured directly (config file or flags)
type Static struct {
	Credentials Credentials
}

// Load implements Source
func (s Static) Load(ctx context.Context) (Credentials, error) {
	if s.Credentials.ClientID == "" && s.Credentials.ClientSecret == "" {
		return Credentials{}, ErrNotFound
	}
	if err := s.Credentials.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Source = "config"
		}
		return Credentials{}, err
	}
	return s.Credentials, nil
}

// File reads a JSON document with client_id and client_secret
type File struct {
	Path string
}

// Load implements Source
func (f File) Load(ctx context.Context) (Credentials, error) {
	if f.Path == "" {
		return Credentials{}, ErrNotFound
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	return decode(f.Path, data)
}

// Env reads the same JSON document from an environment variable
type Env struct {
	Var string
}

// Load implements Source
func (e Env) Load(ctx context.Context) (Credentials, error) {
	if e.Var == "" {
		return Credentials{}, ErrNotFound
	}
	raw := os.Getenv(e.Var)
	if raw == "" {
		return Credentials{}, ErrNotFound
	}
	return decode(e.Var, []byte(raw))
}

func decode(source string, data []byte) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, &Error{Source: source, Reason: "invalid JSON: " + err.Error()}
	}
	if err := c.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Source = source
		}
		return Credentials{}, err
	}
	return c, nil
}

// Prompt collects credentials interactively. Existing values are offered as
// defaults so pressing Enter keeps them.
type Prompt struct {
	In       io.Reader
	Out      io.Writer
	Defaults Credentials
}

// Load implements Source
func (p Prompt) Load(ctx context.Context) (Credentials, error) {
	reader := bufio.NewReader(p.In)

	id, err := p.ask(reader, "Spotify Client ID", p.Defaults.ClientID)
	if err != nil {
		return Credentials{}, err
	}
	secret, err := p.ask(reader, "Spotify Client Secret", p.Defaults.ClientSecret)
	if err != nil {
		return Credentials{}, err
	}

	c := Credentials{ClientID: id, ClientSecret: secret}
	if err := c.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Source = "prompt"
		}
		return Credentials{}, err
	}
	return c, nil
}

func (p Prompt) ask(reader *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.Out, "%s [%s]: ", label, mask(current))
	} else {
		fmt.Fprintf(p.Out, "%s: ", label)
	}
	line, err := reader.ReadString('\n')
	// EOF with a partial line still counts as an answer
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current, nil
	}
	return line, nil
}

// mask hides all but the last four characters
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// Chain tries each source in order and returns the first hit. A source that
// finds malformed or placeholder credentials stops the chain.
type Chain []Source

// Load implements Source
func (c Chain) Load(ctx context.Context) (Credentials, error) {
	for _, src := range c {
		creds, err := src.Load(ctx)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Credentials{}, err
		}
	}
	return Credentials{}, &Error{Reason: "no Spotify credentials found; run 'spotlog auth', provide a credentials file, or set the credentials environment variable"}
}
