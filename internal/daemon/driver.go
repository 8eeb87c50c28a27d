package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/spotlog/internal/credentials"
	"github.com/jfmyers9/spotlog/internal/metrics"
	"github.com/jfmyers9/spotlog/internal/spotify"
	"github.com/jfmyers9/spotlog/internal/tracklog"
	"github.com/rs/zerolog"
)

// RecentRows is the number of table rows kept in the status
const RecentRows = 5

var (
	// ErrCodeIgnored is returned for an authorization code that was already
	// used or arrived while a session is held
	ErrCodeIgnored = errors.New("authorization code ignored")

	// ErrStateMismatch is returned when the callback state does not match the
	// one issued with the authorization URL
	ErrStateMismatch = errors.New("authorization state mismatch")
)

// Authorizer is the part of the token manager the driver needs
type Authorizer interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (spotify.TokenState, error)
	Authorized() bool
}

// Fetcher reads listening history
type Fetcher interface {
	FetchRecent(ctx context.Context, after time.Time) ([]spotify.PlayedItem, error)
	FetchCurrent(ctx context.Context) (*spotify.PlayedItem, error)
}

// DriverConfig holds poll driver options
type DriverConfig struct {
	Mode      spotify.Mode
	UseCursor bool // Pass the newest logged played_at as the "after" cursor
	Autostart bool // Begin polling as soon as authorization succeeds
}

// PassResult is the outcome of one pass
type PassResult struct {
	Skipped bool // Not polling; nothing was done
	Fetched int
	Logged  int
	Message string
	Err     error
}

// Driver sequences fetch, dedupe and log passes and owns the lifecycle
// state. Its methods are safe to call from the HTTP handlers, the TUI and
// the poll loop at once; passes themselves never overlap.
type Driver struct {
	cfg     DriverConfig
	auth    Authorizer
	fetcher Fetcher
	log     *tracklog.Logger
	board   *StatusBoard
	metrics *metrics.Metrics
	logger  zerolog.Logger

	passMu sync.Mutex // Serializes passes

	mu         sync.Mutex
	state      State
	oauthState string
	usedCodes  map[string]struct{}
	lastLiveID string
	cursor     time.Time

	wake chan struct{}
}

// NewDriver creates a Driver in the Idle state
func NewDriver(cfg DriverConfig, auth Authorizer, fetcher Fetcher, log *tracklog.Logger, board *StatusBoard, m *metrics.Metrics, logger zerolog.Logger) *Driver {
	if board == nil {
		board, _ = NewStatusBoard("")
	}
	if m == nil {
		m = metrics.New()
	}

	d := &Driver{
		cfg:       cfg,
		auth:      auth,
		fetcher:   fetcher,
		log:       log,
		board:     board,
		metrics:   m,
		logger:    logger.With().Str("component", "driver").Logger(),
		usedCodes: make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}

	d.updateStatus(func(s *Status) {
		s.State = StateIdle
		s.Mode = cfg.Mode.String()
		s.Header = tracklog.Header(cfg.Mode)
	})

	return d
}

// Wake is signalled when polling starts so the loop can run a pass at once
func (d *Driver) Wake() <-chan struct{} {
	return d.wake
}

// State returns the current lifecycle state
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// AuthURL issues a fresh state value and returns the URL the user visits
// to authorize
func (d *Driver) AuthURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.oauthState = uuid.NewString()
	return d.auth.AuthURL(d.oauthState)
}

// CodeReceived consumes an authorization code from the redirect callback.
// Each code is used at most once, and codes arriving while a session is held
// are ignored.
func (d *Driver) CodeReceived(ctx context.Context, code, state string) error {
	d.mu.Lock()
	if code == "" {
		d.mu.Unlock()
		return fmt.Errorf("missing authorization code")
	}
	if _, used := d.usedCodes[code]; used || d.auth.Authorized() {
		d.mu.Unlock()
		d.logger.Debug().Msg("Ignoring authorization code")
		return ErrCodeIgnored
	}
	if d.oauthState == "" || state != d.oauthState {
		d.mu.Unlock()
		d.logger.Warn().Msg("Authorization callback with unexpected state")
		return ErrStateMismatch
	}

	d.usedCodes[code] = struct{}{}
	d.oauthState = ""
	d.setStateLocked(StateAuthorizing)
	d.mu.Unlock()

	d.updateStatus(func(s *Status) { s.Message = "Authorizing..." })

	_, err := d.auth.ExchangeCode(ctx, code)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		d.setStateLocked(StateIdle)
		d.metrics.ObserveError(errorKind(err))
		d.updateStatus(func(s *Status) {
			s.Message = Describe(err)
			s.LastError = err.Error()
		})
		return err
	}

	d.setStateLocked(StateAuthorizedIdle)
	d.updateStatus(func(s *Status) {
		s.Message = "Authorized with Spotify."
		s.LastError = ""
	})
	d.logger.Info().Msg("Authorized")

	if d.cfg.Autostart {
		d.startLocked()
	}
	return nil
}

// Start begins polling. It requires a session.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.auth.Authorized() {
		return spotify.ErrNotAuthorized
	}
	if d.state == StatePolling {
		return nil
	}

	d.startLocked()
	return nil
}

func (d *Driver) startLocked() {
	d.setStateLocked(StatePolling)
	d.updateStatus(func(s *Status) { s.Message = "Logging started." })
	d.logger.Info().Msg("Logging started")

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop ends polling. A pass already running finishes; no new one begins.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StatePolling {
		return
	}

	d.setStateLocked(StateStopped)
	d.updateStatus(func(s *Status) { s.Message = "Logging stopped." })
	d.logger.Info().Msg("Logging stopped")
}

// Tick is called by the poll loop on every cadence beat. It runs a pass when
// polling and settles a stopped driver back to authorized-idle.
func (d *Driver) Tick(ctx context.Context) PassResult {
	d.mu.Lock()
	if d.state == StateStopped {
		if d.auth.Authorized() {
			d.setStateLocked(StateAuthorizedIdle)
		} else {
			d.setStateLocked(StateIdle)
		}
	}
	d.mu.Unlock()

	return d.RunPass(ctx)
}

// RunPass runs one fetch, dedupe and log pass if the driver is polling.
// Errors never escape: they are returned in the result and reported in the
// status message.
func (d *Driver) RunPass(ctx context.Context) PassResult {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	d.mu.Lock()
	polling := d.state == StatePolling
	cursor := d.cursor
	lastLiveID := d.lastLiveID
	d.mu.Unlock()

	if !polling {
		return PassResult{Skipped: true}
	}

	started := time.Now()
	res, ledgerKeys := d.pass(ctx, cursor, lastLiveID)

	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
		d.metrics.ObserveError(errorKind(res.Err))
		d.logPassError(res.Err)
	} else {
		d.logger.Info().Int("fetched", res.Fetched).Int("logged", res.Logged).Msg(res.Message)
	}
	d.metrics.ObservePass(outcome, res.Logged, ledgerKeys, time.Since(started))

	var recent [][]string
	if res.Logged > 0 || res.Err == nil {
		rows, err := d.log.Recent(ctx, RecentRows)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to read recent rows")
		} else {
			recent = rows
		}
	}

	if errors.Is(res.Err, spotify.ErrNotAuthorized) || isRefreshFailure(res.Err) {
		d.mu.Lock()
		d.setStateLocked(StateIdle)
		d.mu.Unlock()
	}

	d.updateStatus(func(s *Status) {
		s.Message = res.Message
		s.Last = d.log.Markers()
		s.LastPass = time.Now()
		s.Passes++
		s.Logged += res.Logged
		if recent != nil {
			s.Recent = recent
		}
		if res.Err != nil {
			s.LastError = res.Err.Error()
		} else {
			s.LastError = ""
		}
	})

	return res
}

// pass does the work of RunPass and also returns the ledger size
func (d *Driver) pass(ctx context.Context, cursor time.Time, lastLiveID string) (PassResult, int) {
	rows, err := d.log.EnsureHeader(ctx)
	if err != nil {
		return PassResult{Err: err, Message: Describe(err)}, 0
	}
	ledger := tracklog.BuildLedger(rows, d.cfg.Mode)

	items, err := d.fetch(ctx, cursor, lastLiveID)
	if err != nil {
		return PassResult{Err: err, Message: Describe(err)}, ledger.Len()
	}

	logged, err := d.log.LogBatch(ctx, items, ledger)
	res := PassResult{Fetched: len(items), Logged: logged}
	if err != nil {
		res.Err = err
		res.Message = Describe(err)
		return res, ledger.Len()
	}

	// Markers only move once the rows are in the table
	d.mu.Lock()
	if d.cfg.Mode == spotify.ModeLive && len(items) > 0 {
		d.lastLiveID = items[0].TrackID
	}
	if d.cfg.UseCursor && len(items) > 0 && items[0].PlayedAt.After(d.cursor) {
		d.cursor = items[0].PlayedAt
	}
	d.mu.Unlock()

	res.Message = passMessage(logged)
	return res, ledger.Len()
}

func (d *Driver) fetch(ctx context.Context, cursor time.Time, lastLiveID string) ([]spotify.PlayedItem, error) {
	if d.cfg.Mode == spotify.ModeLive {
		item, err := d.fetcher.FetchCurrent(ctx)
		if err != nil || item == nil {
			return nil, err
		}
		if item.TrackID == lastLiveID {
			return nil, nil
		}
		return []spotify.PlayedItem{*item}, nil
	}

	var after time.Time
	if d.cfg.UseCursor {
		after = cursor
	}
	return d.fetcher.FetchRecent(ctx, after)
}

// Snapshot returns the current status
func (d *Driver) Snapshot() Status {
	s := d.board.Get()

	d.mu.Lock()
	s.State = d.state
	d.mu.Unlock()

	s.Authorized = d.auth.Authorized()
	return s
}

func (d *Driver) setStateLocked(state State) {
	if d.state != state {
		d.logger.Debug().Stringer("from", d.state).Stringer("to", state).Msg("State change")
	}
	d.state = state
	d.metrics.SetPolling(state == StatePolling)
	d.metrics.SetAuthorized(d.auth.Authorized())
	d.updateStatus(func(s *Status) { s.State = state })
}

func (d *Driver) updateStatus(fn func(*Status)) {
	if err := d.board.Update(fn); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to persist status")
	}
}

func (d *Driver) logPassError(err error) {
	var netErr *spotify.NetworkError
	if errors.As(err, &netErr) {
		d.logger.Warn().Err(err).Msg("Pass failed")
		return
	}
	d.logger.Error().Err(err).Msg("Pass failed")
}

func passMessage(logged int) string {
	switch logged {
	case 0:
		return "No new tracks to log."
	case 1:
		return "1 new track logged."
	default:
		return fmt.Sprintf("%d new tracks logged.", logged)
	}
}

func isRefreshFailure(err error) bool {
	var refreshErr *spotify.RefreshError
	return errors.As(err, &refreshErr)
}

// Describe renders err as a status message for the user
func Describe(err error) string {
	var (
		credErr     *credentials.Error
		authErr     *spotify.AuthError
		refreshErr  *spotify.RefreshError
		netErr      *spotify.NetworkError
		upstreamErr *spotify.UpstreamAPIError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &credErr):
		return fmt.Sprintf("Credentials problem: %s.", credErr.Reason)
	case errors.As(err, &authErr):
		if authErr.Status == 0 {
			return fmt.Sprintf("Authorization failed: %v", authErr.Err)
		}
		return fmt.Sprintf("Authorization failed (HTTP %d): %s", authErr.Status, authErr.Body)
	case errors.As(err, &refreshErr):
		return "Session expired and could not be refreshed. Authorize again."
	case errors.Is(err, spotify.ErrNotAuthorized):
		return "Not authorized. Open the login link to connect Spotify."
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "Spotify did not respond in time. Will retry on the next pass."
		}
		return fmt.Sprintf("Network error: %v", netErr.Err)
	case errors.As(err, &upstreamErr):
		return fmt.Sprintf("Spotify API error %d: %s", upstreamErr.Status, upstreamErr.Body)
	case errors.Is(err, ErrStateMismatch):
		return "Authorization link expired. Open the login link again."
	default:
		return fmt.Sprintf("Logging failed: %v", err)
	}
}

// errorKind labels err for metrics
func errorKind(err error) string {
	var (
		authErr     *spotify.AuthError
		refreshErr  *spotify.RefreshError
		netErr      *spotify.NetworkError
		upstreamErr *spotify.UpstreamAPIError
	)

	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &refreshErr):
		return "refresh"
	case errors.Is(err, spotify.ErrNotAuthorized):
		return "unauthorized"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &upstreamErr):
		return "upstream"
	default:
		return "table"
	}
}
