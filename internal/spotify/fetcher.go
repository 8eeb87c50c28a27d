package spotify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Spotify Web API root
	DefaultBaseURL = "https://api.spotify.com/v1/"

	// DefaultTimeout bounds every Web API request
	DefaultTimeout = 10 * time.Second

	// BatchSize is the number of recently played items read per pass
	BatchSize = 5
)

// FetcherConfig configures a Fetcher
type FetcherConfig struct {
	BaseURL   string            // Optional: Web API root, must end in "/" (tests)
	Timeout   time.Duration     // Optional: defaults to DefaultTimeout
	Transport http.RoundTripper // Optional: defaults to http.DefaultTransport
}

// Fetcher reads listening history. An expired access token is refreshed and
// the request retried exactly once; nothing else is retried.
type Fetcher struct {
	tokens    *TokenManager
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	now       func() time.Time
	logger    zerolog.Logger
}

// NewFetcher creates a Fetcher backed by the given TokenManager
func NewFetcher(tokens *TokenManager, cfg FetcherConfig, logger zerolog.Logger) *Fetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Fetcher{
		tokens:    tokens,
		baseURL:   baseURL,
		timeout:   timeout,
		transport: transport,
		now:       time.Now,
		logger:    logger.With().Str("component", "fetcher").Logger(),
	}
}

// FetchRecent returns up to BatchSize recently played items, newest first as
// the API orders them. A non-zero after limits results to plays after it.
func (f *Fetcher) FetchRecent(ctx context.Context, after time.Time) ([]PlayedItem, error) {
	opt := &spotify.RecentlyPlayedOptions{Limit: BatchSize}
	if !after.IsZero() {
		opt.AfterEpochMs = after.UnixMilli()
	}

	var raw []spotify.RecentlyPlayedItem
	err := f.withRefresh(ctx, "recently-played", func(c *spotify.Client) error {
		var err error
		raw, err = c.PlayerRecentlyPlayedOpt(ctx, opt)
		return err
	})
	if err != nil {
		return nil, err
	}

	items := make([]PlayedItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, PlayedItem{
			TrackID:     r.Track.ID.String(),
			TrackName:   r.Track.Name,
			Artists:     artistNames(r.Track.Artists),
			ExternalURL: r.Track.ExternalURLs["spotify"],
			PlayedAt:    r.PlayedAt,
			ContextType: r.PlaybackContext.Type,
		})
	}

	f.logger.Debug().Int("count", len(items)).Msg("Fetched recently played")
	return items, nil
}

// FetchCurrent returns the currently playing track, or nil when nothing is
// playing. PlayedAt is the time of the observation.
func (f *Fetcher) FetchCurrent(ctx context.Context) (*PlayedItem, error) {
	var current *spotify.CurrentlyPlaying
	err := f.withRefresh(ctx, "currently-playing", func(c *spotify.Client) error {
		var err error
		current, err = c.PlayerCurrentlyPlaying(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if current == nil || current.Item == nil {
		f.logger.Debug().Msg("Nothing playing")
		return nil, nil
	}

	track := current.Item
	return &PlayedItem{
		TrackID:     track.ID.String(),
		TrackName:   track.Name,
		Artists:     artistNames(track.Artists),
		ExternalURL: track.ExternalURLs["spotify"],
		PlayedAt:    f.now(),
		ContextType: current.PlaybackContext.Type,
	}, nil
}

// withRefresh runs call with the current access token. On a 401 it asks the
// TokenManager for a refresh and, if that works, runs call one more time.
func (f *Fetcher) withRefresh(ctx context.Context, op string, call func(*spotify.Client) error) error {
	token := f.tokens.AccessToken()
	if token == "" {
		return ErrNotAuthorized
	}

	status, err := f.attempt(token, call)
	if err == nil {
		return nil
	}
	if status != http.StatusUnauthorized {
		return f.classify(op, status, err)
	}

	f.logger.Info().Str("op", op).Msg("Access token rejected, refreshing")
	if !f.tokens.Refresh(ctx) {
		if lastErr := f.tokens.LastError(); lastErr != nil {
			return lastErr
		}
		return &RefreshError{Err: errors.New("refresh failed")}
	}

	status, err = f.attempt(f.tokens.AccessToken(), call)
	if err != nil {
		return f.classify(op, status, err)
	}
	return nil
}

// attempt runs call against a client bound to token and reports the HTTP
// status of the response it got, 0 if none arrived.
func (f *Fetcher) attempt(token string, call func(*spotify.Client) error) (int, error) {
	recorder := &statusRecorder{base: f.transport}
	httpClient := &http.Client{
		Timeout: f.timeout,
		Transport: &oauth2.Transport{
			Base:   recorder,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		},
	}
	client := spotify.New(httpClient, spotify.WithBaseURL(f.baseURL))

	err := call(client)
	return recorder.status, err
}

func (f *Fetcher) classify(op string, status int, err error) error {
	if status == 0 || isTransportError(err) {
		return &NetworkError{Op: op, Err: err}
	}

	body := err.Error()
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		body = apiErr.Message
	}
	return &UpstreamAPIError{Status: status, Body: body}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func artistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// statusRecorder remembers the status code of the last response it carried
type statusRecorder struct {
	base   http.RoundTripper
	status int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if resp != nil {
		s.status = resp.StatusCode
	}
	return resp, err
}
