// Package spotify owns the Spotify OAuth session and reads listening history
// from the Web API.
package spotify

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/jfmyers9/spotlog/internal/credentials"
	"github.com/rs/zerolog"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Scopes requested during authorization
var Scopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadRecentlyPlayed,
}

// TokenState is the access/refresh token pair of one authorized session.
// It lives in memory only.
type TokenState struct {
	AccessToken  string
	RefreshToken string
	Authorized   bool
}

// AuthConfig configures a TokenManager
type AuthConfig struct {
	Credentials credentials.Credentials
	RedirectURI string
	HTTPClient  *http.Client // Optional: defaults to http.DefaultClient
	AuthURL     string       // Optional: authorize endpoint override (tests)
	TokenURL    string       // Optional: token endpoint override (tests)
}

// TokenManager performs the authorization-code exchange and the refresh flow
// and is the only owner of TokenState.
type TokenManager struct {
	mu         sync.RWMutex
	oauth      *oauth2.Config
	httpClient *http.Client
	state      TokenState
	lastErr    error
	logger     zerolog.Logger
}

// NewTokenManager creates a TokenManager. Credentials must already be loaded.
func NewTokenManager(cfg AuthConfig, logger zerolog.Logger) (*TokenManager, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}

	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = spotifyauth.AuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &TokenManager{
		oauth: &oauth2.Config{
			ClientID:     cfg.Credentials.ClientID,
			ClientSecret: cfg.Credentials.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// Spotify accepts the client secret in the form body
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		logger:     logger.With().Str("component", "tokens").Logger(),
	}, nil
}

// AuthURL returns the URL the user visits to grant access. show_dialog forces
// the consent screen so a different account can be picked.
func (m *TokenManager) AuthURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// ExchangeCode trades a one-time authorization code for a token pair
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (TokenState, error) {
	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		status, body := retrieveDetails(err)
		authErr := &AuthError{Status: status, Body: body, Err: err}

		m.mu.Lock()
		m.state = TokenState{}
		m.lastErr = authErr
		m.mu.Unlock()

		m.logger.Error().Err(err).Int("status", status).Msg("Authorization code exchange failed")
		return TokenState{}, authErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = TokenState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Authorized:   true,
	}
	m.lastErr = nil

	m.logger.Info().Bool("refresh_token", tok.RefreshToken != "").Msg("Authorized with Spotify")
	return m.state, nil
}

// Refresh trades the stored refresh token for a new access token. On failure
// all token state is cleared and the caller must run the authorization-code
// flow again.
func (m *TokenManager) Refresh(ctx context.Context) bool {
	m.mu.RLock()
	refreshToken := m.state.RefreshToken
	m.mu.RUnlock()

	if refreshToken == "" {
		m.invalidate(&RefreshError{Err: errors.New("no refresh token")})
		return false
	}

	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		status, body := retrieveDetails(err)
		m.invalidate(&RefreshError{Status: status, Body: body, Err: err})
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		m.state.RefreshToken = tok.RefreshToken
	}
	m.state.Authorized = true
	m.lastErr = nil

	m.logger.Info().Msg("Access token refreshed")
	return true
}

// Invalidate drops the session
func (m *TokenManager) Invalidate() {
	m.invalidate(nil)
}

func (m *TokenManager) invalidate(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = TokenState{}
	m.lastErr = cause

	if cause != nil {
		m.logger.Warn().Err(cause).Msg("Session de-authorized")
	}
}

// State returns a copy of the current token state
func (m *TokenManager) State() TokenState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authorized reports whether a usable token pair is held
func (m *TokenManager) Authorized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Authorized
}

// AccessToken returns the current bearer token
func (m *TokenManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AccessToken
}

// LastError returns the error behind the most recent de-authorization, if any
func (m *TokenManager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *TokenManager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// retrieveDetails extracts the HTTP status and raw body from a token endpoint error
func retrieveDetails(err error) (int, string) {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return status, string(re.Body)
	}
	return 0, ""
}
