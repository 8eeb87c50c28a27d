package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

// LaunchdLabel identifies the launch agent
const LaunchdLabel = "com.spotlog.daemon"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>daemon</string>
{{- range .Args}}
		<string>{{.}}</string>
{{- end}}
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>ThrottleInterval</key>
	<integer>30</integer>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}/spotlog.log</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/spotlog.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
	</dict>
</dict>
</plist>
`

// PlistConfig holds the configuration for generating a launchd plist
type PlistConfig struct {
	Label            string   // Defaults to LaunchdLabel
	BinaryPath       string
	Args             []string // Extra daemon flags, e.g. --config
	LogPath          string
	WorkingDirectory string // Where relative credential files are looked up
}

// GeneratePlist renders the launch agent plist. Values are XML-escaped.
func GeneratePlist(config PlistConfig) (string, error) {
	if config.Label == "" {
		config.Label = LaunchdLabel
	}

	tmpl, err := template.New("plist").Parse(plistTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, escapePlist(config)); err != nil {
		return "", fmt.Errorf("failed to execute plist template: %w", err)
	}

	return buf.String(), nil
}

func escapePlist(c PlistConfig) PlistConfig {
	esc := func(s string) string {
		var b bytes.Buffer
		template.HTMLEscape(&b, []byte(s))
		return b.String()
	}

	out := PlistConfig{
		Label:            esc(c.Label),
		BinaryPath:       esc(c.BinaryPath),
		LogPath:          esc(c.LogPath),
		WorkingDirectory: esc(c.WorkingDirectory),
	}
	for _, a := range c.Args {
		out.Args = append(out.Args, esc(a))
	}
	return out
}

// GetPlistPath returns the path where the plist should be installed
func GetPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, "Library", "LaunchAgents", LaunchdLabel+".plist"), nil
}

// InstalledPlist returns the plist path and whether an agent is installed there
func InstalledPlist() (string, bool, error) {
	path, err := GetPlistPath()
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return path, false, fmt.Errorf("failed to stat plist: %w", err)
	}
	return path, true, nil
}

// RemovePlist deletes the plist at path. A plist that is already gone is
// not an error.
func RemovePlist(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove plist file: %w", err)
	}
	return nil
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "spotlog", "logs"), nil
}
