package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jfmyers9/spotlog/internal/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var recentCount int

// recentCmd represents the recent command
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the most recent rows of the destination table",
	Long: `Read the destination table directly and print its most recent rows,
newest first. The daemon does not need to be running.`,
	Args: cobra.NoArgs,
	RunE: runRecent,
}

func init() {
	rootCmd.AddCommand(recentCmd)

	recentCmd.Flags().IntVarP(&recentCount, "count", "n", 5, "Number of rows to print")
}

func runRecent(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if recentCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tbl, closeTable, err := openTable(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer func() { _ = closeTable() }()

	rows, err := tbl.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read table: %w", err)
	}

	recent := table.Recent(rows, recentCount)
	if len(recent) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No rows logged yet.")
		return nil
	}

	printRows(cmd.OutOrStdout(), rows[0], recent)
	return nil
}
