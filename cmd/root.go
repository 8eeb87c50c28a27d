package cmd

import (
	"fmt"
	"os"

	"github.com/jfmyers9/spotlog/internal/config"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// configFile overrides the default config search when set
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spotlog",
	Short: "Log Spotify listening history to a spreadsheet",
	Long: `spotlog logs your Spotify listening history to a Google Sheet.

It runs as a background daemon that polls Spotify for recently played
tracks, skips anything already in the sheet, and appends the rest in
the order they were played. A small local web page handles the Spotify
login and lets you start and stop logging.

It also provides CLI commands to control a running daemon and to show
the last logged track, useful for tmux status lines or other status bars.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ~/.config/spotlog/config.yaml)")
}

// loadConfig reads the config named by --config or the default locations
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
