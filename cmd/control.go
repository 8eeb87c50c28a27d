package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/jfmyers9/spotlog/internal/web"
	"github.com/spf13/cobra"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start logging in a running daemon",
	Long:  `Ask the running daemon to start polling Spotify. The daemon must already be authorized.`,
	RunE:  runStart,
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop logging in a running daemon",
	Long:  `Ask the running daemon to stop polling. A pass already in progress finishes first.`,
	RunE:  runStop,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running daemon",
	Long:  `Show the running daemon's state, last status message and the most recent rows.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

func controlClient() (*web.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return web.NewClient(cfg.Server.Addr), nil
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := controlClient()
	if err != nil {
		return err
	}

	status, err := client.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start logging: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), status.Message)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := controlClient()
	if err != nil {
		return err
	}

	status, err := client.Stop(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop logging: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), status.Message)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := controlClient()
	if err != nil {
		return err
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	printStatus(cmd.OutOrStdout(), status)
	return nil
}

// printStatus writes a plain-text summary of status
func printStatus(w io.Writer, s daemon.Status) {
	authorized := "no"
	if s.Authorized {
		authorized = "yes"
	}

	fmt.Fprintf(w, "State:      %s\n", s.State)
	fmt.Fprintf(w, "Authorized: %s\n", authorized)
	fmt.Fprintf(w, "Mode:       %s\n", s.Mode)
	if s.Message != "" {
		fmt.Fprintf(w, "Message:    %s\n", s.Message)
	}
	if !s.LastPass.IsZero() {
		fmt.Fprintf(w, "Last pass:  %s (%d passes, %d logged)\n",
			s.LastPass.Local().Format(time.RFC3339), s.Passes, s.Logged)
	}

	if len(s.Recent) > 0 {
		fmt.Fprintln(w)
		printRows(w, s.Header, s.Recent)
	}
}

// printRows writes rows as tab-separated lines under an optional header
func printRows(w io.Writer, header []string, rows [][]string) {
	if len(header) > 0 {
		fmt.Fprintln(w, strings.Join(header, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}
