package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/jfmyers9/spotlog/internal/spotify"
)

// fakeController mimics the driver's lifecycle closely enough for the
// handlers. Only the state value "abc" is accepted.
type fakeController struct {
	mu         sync.Mutex
	authorized bool
	state      daemon.State
	codes      []string
	codeErr    error
	message    string
	recent     [][]string
}

func (f *fakeController) AuthURL() string {
	return "https://accounts.spotify.test/authorize?state=abc"
}

func (f *fakeController) CodeReceived(ctx context.Context, code, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.codes = append(f.codes, code)
	if f.codeErr != nil {
		return f.codeErr
	}
	if state != "abc" {
		return daemon.ErrStateMismatch
	}
	f.authorized = true
	f.state = daemon.StateAuthorizedIdle
	return nil
}

func (f *fakeController) authorize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized = true
}

func (f *fakeController) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.authorized {
		return spotify.ErrNotAuthorized
	}
	f.state = daemon.StatePolling
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == daemon.StatePolling {
		f.state = daemon.StateStopped
	}
}

func (f *fakeController) Snapshot() daemon.Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	return daemon.Status{
		State:      f.state,
		Authorized: f.authorized,
		Mode:       "batch",
		Message:    f.message,
		Header:     []string{"Date", "Track", "Artist", "Spotify ID", "URL", "Context Type"},
		Recent:     f.recent,
	}
}

func newTestServer(t *testing.T, ctl Controller) *Server {
	t.Helper()
	s, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Metrics: http.NotFoundHandler()}, ctl, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHomeUnauthorized(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	w := serve(s, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `href="/login"`)
	assert.NotContains(t, w.Body.String(), `action="/start"`)
}

func TestHomeShowsRecentRows(t *testing.T) {
	ctl := &fakeController{
		authorized: true,
		state:      daemon.StatePolling,
		message:    "2 new tracks logged.",
		recent: [][]string{
			{"2024-05-01T10:02:00.000Z", "Second <Song>", "Artist", "id2", "url2", "album"},
			{"2024-05-01T10:01:00.000Z", "First", "Artist", "id1", "url1", ""},
		},
	}
	s := newTestServer(t, ctl)

	w := serve(s, http.MethodGet, "/")
	body := w.Body.String()

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "2 new tracks logged.")
	assert.Contains(t, body, "Second &lt;Song&gt;")
	assert.Contains(t, body, "<th>Spotify ID</th>")
	assert.Contains(t, body, `action="/stop"`)
	assert.Less(t, strings.Index(body, "id2"), strings.Index(body, "id1"), "newest row first")
}

func TestLoginRedirects(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	w := serve(s, http.MethodGet, "/login")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://accounts.spotify.test/authorize?state=abc", w.Header().Get("Location"))
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		codeErr  error
		wantCode int
		wantAuth bool
	}{
		{name: "valid code", target: "/callback?code=c1&state=abc", wantCode: http.StatusSeeOther, wantAuth: true},
		{name: "state mismatch", target: "/callback?code=c1&state=zzz", wantCode: http.StatusBadRequest},
		{name: "user denied", target: "/callback?error=access_denied&state=abc", wantCode: http.StatusBadRequest},
		{name: "code ignored", target: "/callback?code=c1&state=abc", codeErr: daemon.ErrCodeIgnored, wantCode: http.StatusSeeOther},
		{name: "exchange failure", target: "/callback?code=c1&state=abc", codeErr: &spotify.AuthError{Status: 400}, wantCode: http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeController{codeErr: tt.codeErr}
			s := newTestServer(t, ctl)

			w := serve(s, http.MethodGet, tt.target)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantAuth, ctl.Snapshot().Authorized)
		})
	}
}

func TestCallbackDeniedSkipsExchange(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(t, ctl)

	serve(s, http.MethodGet, "/callback?error=access_denied")

	assert.Empty(t, ctl.codes)
}

func TestStartStopForms(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(t, ctl)

	w := serve(s, http.MethodPost, "/start")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Not authorized")

	ctl.authorize()

	w = serve(s, http.MethodPost, "/start")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, daemon.StatePolling, ctl.Snapshot().State)

	w = serve(s, http.MethodPost, "/stop")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, daemon.StateStopped, ctl.Snapshot().State)
}

func TestAPI(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(t, ctl)

	w := serve(s, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusConflict, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "Not authorized. Open the login link to connect Spotify.", errResp.Error)

	ctl.authorize()

	w = serve(s, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusOK, w.Code)
	var status daemon.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, daemon.StatePolling, status.State)
	assert.True(t, status.Authorized)

	w = serve(s, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"polling"`)

	w = serve(s, http.MethodPost, "/api/stop")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, daemon.StateStopped, status.State)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	w := serve(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())

	// The test server mounts NotFoundHandler as its metrics handler
	w = serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, http.MethodGet, "/api/start")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeController{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunListenFailure(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()

	addr := strings.TrimPrefix(ln.URL, "http://")
	s, err := NewServer(ServerConfig{Addr: addr}, &fakeController{}, zerolog.Nop())
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.Error(t, err)
}
