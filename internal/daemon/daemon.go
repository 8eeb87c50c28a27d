// Package daemon runs the poll driver and the services around it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running component started by the daemon. Run blocks
// until ctx is cancelled or the service finishes on its own.
type Service interface {
	Run(ctx context.Context) error
}

type namedService struct {
	name string
	svc  Service
}

// Daemon coordinates the poll driver, the poller and the control surfaces
type Daemon struct {
	driver   *Driver
	services []namedService
	closers  []func() error
	logger   zerolog.Logger
}

// New creates a new Daemon instance around driver and its poller
func New(driver *Driver, poller *Poller, logger zerolog.Logger) *Daemon {
	d := &Daemon{
		driver: driver,
		logger: logger.With().Str("component", "daemon").Logger(),
	}
	d.Add("poller", poller)
	return d
}

// Add registers a service. When any service returns, the others are
// cancelled and the daemon shuts down.
func (d *Daemon) Add(name string, svc Service) {
	d.services = append(d.services, namedService{name: name, svc: svc})
}

// OnShutdown registers fn to run after all services have stopped
func (d *Daemon) OnShutdown(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Driver returns the poll driver
func (d *Daemon) Driver() *Driver {
	return d.driver
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	return d.RunContext(ctx)
}

// RunContext runs every service until ctx is cancelled or one of them
// returns, then runs the shutdown hooks.
func (d *Daemon) RunContext(ctx context.Context) error {
	d.logger.Info().Int("services", len(d.services)).Msg("Starting daemon")

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	for _, ns := range d.services {
		ns := ns
		g.Go(func() error {
			defer cancel()

			err := ns.svc.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error().Err(err).Str("service", ns.name).Msg("Service failed")
				return fmt.Errorf("%s: %w", ns.name, err)
			}
			d.logger.Debug().Str("service", ns.name).Msg("Service stopped")
			return nil
		})
	}

	err := g.Wait()
	d.shutdown()

	d.logger.Info().Msg("Daemon stopped")
	return err
}

func (d *Daemon) shutdown() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn().Err(err).Msg("Shutdown hook failed")
		}
	}
}
