package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmyers9/spotlog/internal/daemon"
)

func TestNewClientAddr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: "", want: "http://" + DefaultAddr},
		{addr: "127.0.0.1:9000", want: "http://127.0.0.1:9000"},
		{addr: "http://localhost:9000/", want: "http://localhost:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, NewClient(tt.addr).baseURL)
		})
	}
}

func TestClientRoundTrip(t *testing.T) {
	ctl := &fakeController{recent: [][]string{{"d", "Song", "Artist", "id1", "url", ""}}}
	srv := httptest.NewServer(newTestServer(t, ctl).Handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	_, err := client.Start(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Message, "Not authorized")

	ctl.authorize()

	status, err := client.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, daemon.StatePolling, status.State)

	status, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "batch", status.Mode)
	require.Len(t, status.Recent, 1)
	assert.Equal(t, "id1", status.Recent[0][3])

	status, err = client.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, daemon.StateStopped, status.State)
}

func TestClientDaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr).Status(context.Background())
	assert.Error(t, err)
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Status(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "boom", apiErr.Message)
}
