package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jfmyers9/spotlog/internal/credentials"
	"github.com/jfmyers9/spotlog/internal/spotify"
	"github.com/jfmyers9/spotlog/internal/table"
	"github.com/jfmyers9/spotlog/internal/tracklog"
	"github.com/rs/zerolog"
)

// spotifyStub serves the token endpoint and recently-played. The access
// token issued by the code exchange is already expired, so the first fetch
// sees a 401.
type spotifyStub struct {
	tokens *httptest.Server
	api    *httptest.Server

	refreshes   atomic.Int32
	fetches     atomic.Int32
	failRefresh atomic.Bool

	mu    sync.Mutex
	items string
}

func newSpotifyStub(t *testing.T) *spotifyStub {
	t.Helper()
	s := &spotifyStub{}

	s.tokens = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			_, _ = w.Write([]byte(`{"access_token":"expired","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
		case "refresh_token":
			s.refreshes.Add(1)
			if s.failRefresh.Load() {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(s.tokens.Close)

	s.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		_, _ = w.Write([]byte(s.items))
	}))
	t.Cleanup(s.api.Close)

	return s
}

func (s *spotifyStub) setItems(ids ...string) {
	var parts []string
	for i, id := range ids {
		parts = append(parts, fmt.Sprintf(
			`{"track":{"id":%q,"name":"Song %s","artists":[{"name":"Artist"}],"external_urls":{"spotify":"https://open.spotify.com/track/%s"}},"played_at":"2024-05-01T10:%02d:00.000Z","context":null}`,
			id, id, id, 59-i))
	}
	s.mu.Lock()
	s.items = `{"items":[` + strings.Join(parts, ",") + `]}`
	s.mu.Unlock()
}

func newStubDriver(t *testing.T, stub *spotifyStub) (*Driver, *spotify.TokenManager, *table.SQLite) {
	t.Helper()

	tokens, err := spotify.NewTokenManager(spotify.AuthConfig{
		Credentials: credentials.Credentials{ClientID: "id", ClientSecret: "secret"},
		RedirectURI: "http://127.0.0.1:8501/callback",
		TokenURL:    stub.tokens.URL,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	fetcher := spotify.NewFetcher(tokens, spotify.FetcherConfig{BaseURL: stub.api.URL + "/"}, zerolog.Nop())

	tbl, err := table.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = tbl.Close() })

	// Table holds only the header
	if err := tbl.AppendRow(context.Background(), tracklog.BatchHeader); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	logger := tracklog.NewLogger(tbl, spotify.ModeBatch, zerolog.Nop())
	d := NewDriver(DriverConfig{Mode: spotify.ModeBatch}, tokens, fetcher, logger, nil, nil, zerolog.Nop())

	authURL := d.AuthURL()
	state := authURL[strings.Index(authURL, "state=")+len("state="):]
	if i := strings.Index(state, "&"); i >= 0 {
		state = state[:i]
	}
	if err := d.CodeReceived(context.Background(), "code", state); err != nil {
		t.Fatalf("CodeReceived: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	return d, tokens, tbl
}

func TestEndToEndRefreshThenLog(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.setItems("only")
	d, tokens, tbl := newStubDriver(t, stub)

	res := d.RunPass(context.Background())
	if res.Err != nil {
		t.Fatalf("RunPass: %v", res.Err)
	}
	if res.Logged != 1 {
		t.Errorf("logged = %d, want 1", res.Logged)
	}
	if res.Message != "1 new track logged." {
		t.Errorf("message = %q", res.Message)
	}

	if got := stub.refreshes.Load(); got != 1 {
		t.Errorf("refreshes = %d, want 1", got)
	}
	if got := stub.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2 (original + one retry)", got)
	}
	if !tokens.Authorized() {
		t.Error("session lost after successful refresh")
	}

	rows, _ := tbl.ReadAll(context.Background())
	if len(rows) != 2 || rows[1][3] != "only" {
		t.Errorf("rows = %v", rows)
	}
}

func TestEndToEndRefreshFailure(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.setItems("only")
	stub.failRefresh.Store(true)
	d, tokens, tbl := newStubDriver(t, stub)

	res := d.RunPass(context.Background())
	if res.Logged != 0 {
		t.Errorf("logged = %d, want 0", res.Logged)
	}
	if tokens.Authorized() {
		t.Error("authorization not cleared")
	}
	if d.State() != StateIdle {
		t.Errorf("state = %v, want idle", d.State())
	}
	if got := stub.fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1 (no retry without a token)", got)
	}

	rows, _ := tbl.ReadAll(context.Background())
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}

func TestEndToEndThreeNewItems(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.setItems("third", "second", "first")
	d, _, tbl := newStubDriver(t, stub)

	res := d.RunPass(context.Background())
	if res.Message != "3 new tracks logged." {
		t.Errorf("message = %q", res.Message)
	}

	rows, _ := tbl.ReadAll(context.Background())
	var ids []string
	for _, row := range rows[1:] {
		ids = append(ids, row[3])
	}
	if strings.Join(ids, ",") != "first,second,third" {
		t.Errorf("ids = %v, want oldest first", ids)
	}

	// Same upstream history again: nothing new
	if res := d.RunPass(context.Background()); res.Logged != 0 {
		t.Errorf("second pass logged %d", res.Logged)
	}

	snap := d.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if !strings.Contains(string(data), `"state":"polling"`) {
		t.Errorf("snapshot json = %s", data)
	}
}
