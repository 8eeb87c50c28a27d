package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmyers9/spotlog/internal/config"
	"github.com/jfmyers9/spotlog/internal/credentials"
	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/jfmyers9/spotlog/internal/metrics"
	"github.com/jfmyers9/spotlog/internal/spotify"
	"github.com/jfmyers9/spotlog/internal/table"
	"github.com/jfmyers9/spotlog/internal/tracklog"
	"github.com/jfmyers9/spotlog/internal/tui"
	"github.com/jfmyers9/spotlog/internal/web"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonTUI      bool
	daemonMode     string
	daemonCadence  string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the logging daemon",
	Long: `Run the logging daemon that polls Spotify and appends new plays to the sheet.

The daemon will:
- Serve a local web page with the Spotify login link and start/stop buttons
- Exchange the authorization code when Spotify redirects back
- Poll recently played tracks (batch mode) or the current track (live mode)
- Skip plays already in the sheet and append the rest oldest first
- Refresh the Spotify session once when it expires
- Handle graceful shutdown on SIGINT/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd).`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().BoolVar(&daemonTUI, "tui", false, "Show the terminal UI")
	daemonCmd.Flags().StringVar(&daemonMode, "mode", "", "Polling mode: batch or live (overrides config)")
	daemonCmd.Flags().StringVar(&daemonCadence, "cadence", "", "Poll cadence: interval or sleep (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonMode != "" {
		cfg.Poll.Mode = daemonMode
	}
	if daemonCadence != "" {
		cfg.Poll.Cadence = daemonCadence
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	mode, _ := spotify.ParseMode(cfg.Poll.Mode)

	// The TUI owns the terminal, so logs go to a file
	logFile := daemonLogFile
	if daemonTUI && logFile == "" {
		logPath, err := daemon.GetDefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to get log path: %w", err)
		}
		if err := os.MkdirAll(logPath, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile = filepath.Join(logPath, "spotlog.log")
	}
	logger := setupLogger(logFile, daemonLogLevel)

	logger.Info().
		Str("version", version).
		Str("mode", mode.String()).
		Str("table", cfg.Table.Driver).
		Msg("Starting spotlog daemon")

	ctx := context.Background()

	creds, err := cfg.CredentialSource().Load(ctx)
	if err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	tokens, err := spotify.NewTokenManager(spotify.AuthConfig{
		Credentials: creds,
		RedirectURI: cfg.Spotify.RedirectURI,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}
	fetcher := spotify.NewFetcher(tokens, spotify.FetcherConfig{Timeout: cfg.Spotify.Timeout}, logger)

	tbl, closeTable, err := openTable(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Daemon.StatusFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Daemon.StatusFile), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	board, err := daemon.NewStatusBoard(cfg.Daemon.StatusFile)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Daemon.StatusFile).Msg("Ignoring unreadable status file")
	}

	m := metrics.New()
	driver := daemon.NewDriver(daemon.DriverConfig{
		Mode:      mode,
		UseCursor: cfg.Poll.UseCursor,
		Autostart: cfg.Poll.Autostart,
	}, tokens, fetcher, tracklog.NewLogger(tbl, mode, logger), board, m, logger)

	poller, err := daemon.NewPoller(driver, daemon.PollerConfig{
		Cadence:  cfg.Poll.Cadence,
		Interval: cfg.Poll.Interval,
		Sleep:    cfg.Poll.Sleep,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:    cfg.Server.Addr,
		Metrics: m.Handler(),
	}, driver, logger)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	d := daemon.New(driver, poller, logger)
	d.Add("web", server)
	if daemonTUI {
		d.Add("tui", tui.New(driver, tui.DefaultConfig()))
	}
	d.OnShutdown(closeTable)

	logger.Info().
		Str("url", "http://"+cfg.Server.Addr).
		Msg("Open the control page to log in with Spotify")

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

// openTable opens the configured destination table
func openTable(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (table.Table, func() error, error) {
	tc := table.Config{
		Driver:     cfg.Table.Driver,
		SheetURL:   cfg.Table.SheetURL,
		SQLitePath: cfg.Table.SQLitePath,
	}

	if tc.Driver == table.DriverSheets {
		key, err := credentials.GoogleServiceAccount(cfg.Table.GoogleCredentialsFile, cfg.Table.GoogleCredentialsEnv)
		if err != nil {
			return nil, nil, fmt.Errorf("refusing to start: %w", err)
		}
		tc.GoogleCredentials = key
	}

	tbl, closeTable, err := table.Open(ctx, tc, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s table: %w", tc.Driver, err)
	}
	return tbl, closeTable, nil
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
