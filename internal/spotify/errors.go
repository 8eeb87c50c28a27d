package spotify

import (
	"errors"
	"fmt"
)

// AuthError is returned when the token endpoint rejects an authorization code.
// Body carries the raw response for diagnostics.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("spotify: authorization failed: %v", e.Err)
	}
	return fmt.Sprintf("spotify: authorization failed: HTTP %d: %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RefreshError is returned when the refresh token could not be traded for a
// new access token. The session is de-authorized when this happens.
type RefreshError struct {
	Status int
	Body   string
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("spotify: token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("spotify: token refresh failed: HTTP %d: %s", e.Status, e.Body)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// NetworkError wraps timeouts and transport failures
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("spotify: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying failure was a timeout
func (e *NetworkError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// UpstreamAPIError is a non-200 response from the Web API other than an
// expired token.
type UpstreamAPIError struct {
	Status int
	Body   string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("spotify: API error %d: %s", e.Status, e.Body)
}

// ErrNotAuthorized is returned by fetches attempted without an access token
var ErrNotAuthorized = errors.New("spotify: not authorized")
