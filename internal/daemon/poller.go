package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Cadence names
const (
	CadenceInterval = "interval" // Fixed ticker
	CadenceSleep    = "sleep"    // Pause between the end of one pass and the next
)

// PollerConfig holds cadence settings
type PollerConfig struct {
	Cadence  string
	Interval time.Duration // CadenceInterval period
	Sleep    time.Duration // CadenceSleep pause
}

// ticker is driven by the Poller on every beat
type ticker interface {
	Tick(ctx context.Context) PassResult
	Wake() <-chan struct{}
}

// Poller drives the poll driver at the configured cadence
type Poller struct {
	target ticker
	cfg    PollerConfig
	logger zerolog.Logger
}

// NewPoller creates a new Poller instance
func NewPoller(target ticker, cfg PollerConfig, logger zerolog.Logger) (*Poller, error) {
	switch cfg.Cadence {
	case CadenceInterval:
		if cfg.Interval <= 0 {
			return nil, fmt.Errorf("poll interval must be positive")
		}
	case CadenceSleep:
		if cfg.Sleep <= 0 {
			return nil, fmt.Errorf("poll sleep must be positive")
		}
	default:
		return nil, fmt.Errorf("unknown cadence %q (expected %s or %s)", cfg.Cadence, CadenceInterval, CadenceSleep)
	}

	return &Poller{
		target: target,
		cfg:    cfg,
		logger: logger.With().Str("component", "poller").Logger(),
	}, nil
}

// Run starts the polling loop. Blocks until context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Str("cadence", p.cfg.Cadence).
		Dur("interval", p.cfg.Interval).
		Dur("sleep", p.cfg.Sleep).
		Msg("Starting poller")

	if p.cfg.Cadence == CadenceSleep {
		return p.runSleep(ctx)
	}
	return p.runInterval(ctx)
}

func (p *Poller) runInterval(ctx context.Context) error {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-t.C:
			p.tick(ctx)
		case <-p.target.Wake():
			p.tick(ctx)
			t.Reset(p.cfg.Interval)
		}
	}
}

func (p *Poller) runSleep(ctx context.Context) error {
	for {
		p.tick(ctx)

		timer := time.NewTimer(p.cfg.Sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-timer.C:
		case <-p.target.Wake():
			timer.Stop()
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	res := p.target.Tick(ctx)
	if res.Skipped {
		return
	}
	p.logger.Debug().
		Int("fetched", res.Fetched).
		Int("logged", res.Logged).
		Msg("Poll pass complete")
}
