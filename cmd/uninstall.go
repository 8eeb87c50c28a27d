package cmd

import (
	"fmt"

	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the spotlog launchd agent",
	Long: `Stop the spotlog daemon and remove its launchd agent so it no longer starts
on login.

Rows already logged, the status file and the config file are left in place.`,
	Args: cobra.NoArgs,
	RunE: runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	plistPath, installed, err := daemon.InstalledPlist()
	if err != nil {
		return err
	}
	if !installed {
		fmt.Fprintf(out, "Agent %s is not installed\n", daemon.LaunchdLabel)
		return nil
	}

	// Keep going when launchd has already dropped the agent
	if err := unloadDaemon(); err != nil {
		fmt.Fprintf(out, "Warning: failed to unload %s: %v\n", daemon.LaunchdLabel, err)
	} else {
		fmt.Fprintf(out, "✓ Unloaded %s\n", daemon.LaunchdLabel)
	}

	if err := daemon.RemovePlist(plistPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Removed %s\n", plistPath)
	fmt.Fprintln(out, "\nRun 'spotlog install' to reinstall.")

	return nil
}
