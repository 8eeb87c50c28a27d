package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jfmyers9/spotlog/internal/credentials"
	"github.com/jfmyers9/spotlog/internal/table"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Configure Spotify credentials and the destination sheet",
	Long: `Configure the Spotify application credentials and the Google Sheet to log to.

This command will:
1. Prompt for your Spotify Client ID and Client Secret
2. Prompt for the sharing URL of the destination Google Sheet
3. Save both to your config file

You can create a Spotify application at: https://developer.spotify.com/dashboard
Register the redirect URI shown below in the application settings.

Authorizing access to your listening history happens in the browser once the
daemon is running: open the daemon's web page and follow the login link.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Spotify Setup")
	fmt.Fprintln(out, "=============")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Create an application at: https://developer.spotify.com/dashboard")
	fmt.Fprintf(out, "and register this redirect URI: %s\n", cfg.Spotify.RedirectURI)
	fmt.Fprintln(out)

	prompt := credentials.Prompt{
		In:  reader,
		Out: out,
		Defaults: credentials.Credentials{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
		},
	}
	creds, err := prompt.Load(ctx)
	if err != nil {
		return err
	}
	cfg.Spotify.ClientID = creds.ClientID
	cfg.Spotify.ClientSecret = creds.ClientSecret

	if cfg.Table.Driver == table.DriverSheets {
		sheetURL, err := askSheetURL(reader, out, cfg.Table.SheetURL)
		if err != nil {
			return err
		}
		cfg.Table.SheetURL = sheetURL
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "\n✓ Settings saved to %s\n", cfg.File())
	if cfg.Table.Driver == table.DriverSheets {
		fmt.Fprintln(out, "\nShare the sheet with the client_email of your Google service account key")
		fmt.Fprintf(out, "(%s or $%s) so spotlog can write to it.\n", cfg.Table.GoogleCredentialsFile, cfg.Table.GoogleCredentialsEnv)
	}
	fmt.Fprintln(out, "\nYou can now run 'spotlog daemon' and open the login link it prints.")

	return nil
}

// askSheetURL reads the destination sheet URL, keeping current on an empty answer
func askSheetURL(reader *bufio.Reader, out io.Writer, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(out, "Google Sheet URL [%s]: ", current)
	} else {
		fmt.Fprint(out, "Google Sheet URL: ")
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read sheet URL: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		line = current
	}

	if _, err := table.ParseSheetID(line); err != nil {
		return "", err
	}
	return line, nil
}
