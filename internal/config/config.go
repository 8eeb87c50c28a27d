// Package config loads spotlog settings from YAML and SPOTLOG_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfmyers9/spotlog/internal/credentials"
	"github.com/jfmyers9/spotlog/internal/spotify"
	"github.com/spf13/viper"
)

// Poll cadences
const (
	CadenceInterval = "interval"
	CadenceSleep    = "sleep"
)

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Track}}"
	OutputFormat string

	// Fixed display width for the now command (0 = disabled)
	OutputWidth int

	Spotify SpotifyConfig
	Table   TableConfig
	Poll    PollConfig
	Server  ServerConfig
	Daemon  DaemonConfig

	// file is where Load read from and where Save writes
	file string
}

// SpotifyConfig holds Spotify application settings
type SpotifyConfig struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string
	CredentialsEnv  string
	RedirectURI     string
	Timeout         time.Duration
}

// TableConfig selects and configures the destination table
type TableConfig struct {
	Driver                string
	SheetURL              string
	GoogleCredentialsFile string
	GoogleCredentialsEnv  string
	SQLitePath            string
}

// PollConfig controls how and how often history is read
type PollConfig struct {
	Mode      string
	Cadence   string
	Interval  time.Duration
	Sleep     time.Duration
	Autostart bool
	UseCursor bool
}

// ServerConfig holds the control surface settings
type ServerConfig struct {
	Addr string
}

// DaemonConfig holds daemon housekeeping settings
type DaemonConfig struct {
	StatusFile string
}

// Load reads configuration from the default locations and the environment
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default locations
// when path is empty. A missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SPOTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := v.ConfigFileUsed()
	if file == "" {
		file = filepath.Join(getConfigDir(), "config.yaml")
	}

	cfg := &Config{
		OutputFormat: v.GetString("output_format"),
		OutputWidth:  v.GetInt("output_width"),
		Spotify: SpotifyConfig{
			ClientID:        v.GetString("spotify.client_id"),
			ClientSecret:    v.GetString("spotify.client_secret"),
			CredentialsFile: v.GetString("spotify.credentials_file"),
			CredentialsEnv:  v.GetString("spotify.credentials_env"),
			RedirectURI:     v.GetString("spotify.redirect_uri"),
			Timeout:         v.GetDuration("spotify.timeout"),
		},
		Table: TableConfig{
			Driver:                v.GetString("table.driver"),
			SheetURL:              v.GetString("table.sheet_url"),
			GoogleCredentialsFile: v.GetString("table.google_credentials_file"),
			GoogleCredentialsEnv:  v.GetString("table.google_credentials_env"),
			SQLitePath:            expandHome(v.GetString("table.sqlite_path")),
		},
		Poll: PollConfig{
			Mode:      v.GetString("poll.mode"),
			Cadence:   v.GetString("poll.cadence"),
			Interval:  v.GetDuration("poll.interval"),
			Sleep:     v.GetDuration("poll.sleep"),
			Autostart: v.GetBool("poll.autostart"),
			UseCursor: v.GetBool("poll.use_cursor"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
		Daemon: DaemonConfig{
			StatusFile: expandHome(v.GetString("daemon.status_file")),
		},
		file: file,
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := GetDataDir()

	v.SetDefault("output_format", "{{.Artist}} - {{.Track}}")
	v.SetDefault("output_width", 0)

	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.credentials_file", "spotify-credentials.json")
	v.SetDefault("spotify.credentials_env", "SPOTIFY_CREDENTIALS_JSON")
	v.SetDefault("spotify.redirect_uri", "http://127.0.0.1:8501/callback")
	v.SetDefault("spotify.timeout", spotify.DefaultTimeout)

	v.SetDefault("table.driver", "sheets")
	v.SetDefault("table.sheet_url", "")
	v.SetDefault("table.google_credentials_file", "google-credentials.json")
	v.SetDefault("table.google_credentials_env", "GOOGLE_CREDENTIALS_JSON")
	v.SetDefault("table.sqlite_path", filepath.Join(dataDir, "plays.db"))

	v.SetDefault("poll.mode", spotify.ModeBatch.String())
	v.SetDefault("poll.cadence", CadenceInterval)
	v.SetDefault("poll.interval", 120*time.Second)
	v.SetDefault("poll.sleep", 10*time.Second)
	v.SetDefault("poll.autostart", false)
	v.SetDefault("poll.use_cursor", false)

	v.SetDefault("server.addr", "127.0.0.1:8501")

	v.SetDefault("daemon.status_file", filepath.Join(dataDir, "status.json"))
}

// Validate reports the first setting the daemon cannot run with
func (c *Config) Validate() error {
	if _, err := spotify.ParseMode(c.Poll.Mode); err != nil {
		return fmt.Errorf("poll.mode: %w", err)
	}

	switch c.Poll.Cadence {
	case CadenceInterval:
		if c.Poll.Interval <= 0 {
			return fmt.Errorf("poll.interval must be positive")
		}
	case CadenceSleep:
		if c.Poll.Sleep <= 0 {
			return fmt.Errorf("poll.sleep must be positive")
		}
	default:
		return fmt.Errorf("poll.cadence must be %q or %q, got %q", CadenceInterval, CadenceSleep, c.Poll.Cadence)
	}

	switch c.Table.Driver {
	case "sheets":
		if c.Table.SheetURL == "" {
			return fmt.Errorf("table.sheet_url is required for the sheets driver")
		}
	case "sqlite":
		if c.Table.SQLitePath == "" {
			return fmt.Errorf("table.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("table.driver must be \"sheets\" or \"sqlite\", got %q", c.Table.Driver)
	}

	if c.Spotify.RedirectURI == "" {
		return fmt.Errorf("spotify.redirect_uri is required")
	}
	if c.Spotify.Timeout <= 0 {
		return fmt.Errorf("spotify.timeout must be positive")
	}

	return nil
}

// CredentialSource returns the lookup order for Spotify credentials:
// configured values, then the credentials file, then the environment.
func (c *Config) CredentialSource() credentials.Source {
	return credentials.Chain{
		credentials.Static{Credentials: credentials.Credentials{
			ClientID:     c.Spotify.ClientID,
			ClientSecret: c.Spotify.ClientSecret,
		}},
		credentials.File{Path: c.Spotify.CredentialsFile},
		credentials.Env{Var: c.Spotify.CredentialsEnv},
	}
}

// File returns the path Save writes to
func (c *Config) File() string {
	return c.file
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "spotlog")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// GetDataDir returns the directory for the sqlite table and status file
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "spotlog")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := c.file
	if configFile == "" {
		configFile = filepath.Join(getConfigDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)

	v.Set("spotify.client_id", c.Spotify.ClientID)
	v.Set("spotify.client_secret", c.Spotify.ClientSecret)
	v.Set("spotify.credentials_file", c.Spotify.CredentialsFile)
	v.Set("spotify.credentials_env", c.Spotify.CredentialsEnv)
	v.Set("spotify.redirect_uri", c.Spotify.RedirectURI)
	v.Set("spotify.timeout", c.Spotify.Timeout.String())

	v.Set("table.driver", c.Table.Driver)
	v.Set("table.sheet_url", c.Table.SheetURL)
	v.Set("table.google_credentials_file", c.Table.GoogleCredentialsFile)
	v.Set("table.google_credentials_env", c.Table.GoogleCredentialsEnv)
	v.Set("table.sqlite_path", c.Table.SQLitePath)

	v.Set("poll.mode", c.Poll.Mode)
	v.Set("poll.cadence", c.Poll.Cadence)
	v.Set("poll.interval", c.Poll.Interval.String())
	v.Set("poll.sleep", c.Poll.Sleep.String())
	v.Set("poll.autostart", c.Poll.Autostart)
	v.Set("poll.use_cursor", c.Poll.UseCursor)

	v.Set("server.addr", c.Server.Addr)

	v.Set("daemon.status_file", c.Daemon.StatusFile)

	// Write to file
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config %s: %w", configFile, err)
	}
	return nil
}
