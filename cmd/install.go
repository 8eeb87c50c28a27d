package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/spf13/cobra"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install spotlog daemon as a launchd agent",
	Long: `Install spotlog daemon as a launchd agent that runs automatically on login.

This command will:
  - Generate a launchd plist file for the spotlog daemon
  - Install it to ~/Library/LaunchAgents/
  - Load the agent with launchctl
  - Start the daemon automatically

Set poll.autostart in the config so logging resumes as soon as you log in
through the daemon's web page.`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the actual binary path
	binaryPath, err = filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	logPath, err := daemon.GetDefaultLogPath()
	if err != nil {
		return fmt.Errorf("failed to get log path: %w", err)
	}
	if err := os.MkdirAll(logPath, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	// launchd starts the daemon from home, so a relative --config must be resolved now
	var daemonArgs []string
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
		daemonArgs = append(daemonArgs, "--config", abs)
	}

	plistContent, err := daemon.GeneratePlist(daemon.PlistConfig{
		BinaryPath:       binaryPath,
		Args:             daemonArgs,
		LogPath:          logPath,
		WorkingDirectory: home,
	})
	if err != nil {
		return fmt.Errorf("failed to generate plist: %w", err)
	}

	plistPath, installed, err := daemon.InstalledPlist()
	if err != nil {
		return fmt.Errorf("failed to get plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("failed to create LaunchAgents directory: %w", err)
	}

	if installed {
		fmt.Printf("Agent %s is already installed. Reloading...\n", daemon.LaunchdLabel)
		if err := unloadDaemon(); err != nil {
			fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
		}
	}

	if err := os.WriteFile(plistPath, []byte(plistContent), 0644); err != nil {
		return fmt.Errorf("failed to write plist file: %w", err)
	}
	fmt.Printf("✓ Installed plist to %s\n", plistPath)

	if err := loadDaemon(plistPath); err != nil {
		return fmt.Errorf("failed to load daemon: %w", err)
	}

	fmt.Println("✓ Daemon loaded and started successfully")
	fmt.Printf("✓ Logs will be written to %s\n", logPath)
	fmt.Println("\nThe spotlog daemon is now running and will start automatically on login.")
	fmt.Println("\nYou can check the daemon status with:")
	fmt.Println("  spotlog status")
	fmt.Println("\nTo uninstall, run:")
	fmt.Println("  spotlog uninstall")

	return nil
}

// launchdDomain returns the per-user launchd domain, gui/<uid>
func launchdDomain() (string, error) {
	uidOutput, err := exec.Command("id", "-u").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get user ID: %w", err)
	}
	return "gui/" + strings.TrimSpace(string(uidOutput)), nil
}

// loadDaemon loads the daemon using launchctl
func loadDaemon(plistPath string) error {
	domain, err := launchdDomain()
	if err != nil {
		return err
	}

	output, err := exec.Command("launchctl", "bootstrap", domain, plistPath).CombinedOutput()
	if err != nil {
		if out := strings.TrimSpace(string(output)); out != "" {
			return fmt.Errorf("launchctl bootstrap failed: %s", out)
		}
		return fmt.Errorf("failed to run launchctl bootstrap: %w", err)
	}

	return nil
}

// unloadDaemon unloads the daemon using launchctl. A daemon that is not
// loaded is not an error.
func unloadDaemon() error {
	domain, err := launchdDomain()
	if err != nil {
		return err
	}

	serviceName := fmt.Sprintf("%s/%s", domain, daemon.LaunchdLabel)
	output, err := exec.Command("launchctl", "bootout", serviceName).CombinedOutput()
	if err != nil {
		if out := strings.TrimSpace(string(output)); out != "" {
			fmt.Printf("Warning: %s\n", out)
		}
	}

	return nil
}
