package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/jfmyers9/spotlog/internal/tracklog"
	"github.com/jfmyers9/spotlog/internal/web"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the last logged track",
	Long: `Display the track spotlog logged most recently.

The running daemon is asked first; when it is not reachable the status
file it leaves behind is used instead.

The output format can be customized in ~/.config/spotlog/config.yaml
using a Go template. Available fields: .Track, .Artist, .TrackID, .PlayedAt

Exit codes:
  0 - A track was printed
  1 - Nothing has been logged yet`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
}

// nowTrack is the data the output template sees
type nowTrack struct {
	Track    string
	Artist   string
	TrackID  string
	PlayedAt string
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	last, err := lastLogged(ctx, cfg.Server.Addr, cfg.Daemon.StatusFile)
	if err != nil {
		return err
	}

	// Nothing logged yet
	if last.TrackID == "" {
		os.Exit(1)
		return nil
	}

	output, err := formatTrack(nowTrack{
		Track:    last.TrackName,
		Artist:   last.Artist,
		TrackID:  last.TrackID,
		PlayedAt: last.PlayedAt,
	}, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}
	output = padToWidth(output, width)

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// lastLogged asks the daemon for its markers and falls back to the status
// file when the daemon is down
func lastLogged(ctx context.Context, addr, statusFile string) (tracklog.Markers, error) {
	status, err := web.NewClient(addr).Status(ctx)
	if err == nil {
		return status.Last, nil
	}

	if statusFile == "" {
		return tracklog.Markers{}, fmt.Errorf("failed to get status: %w", err)
	}
	saved, fileErr := daemon.LoadStatusFile(statusFile)
	if fileErr != nil {
		if os.IsNotExist(fileErr) {
			return tracklog.Markers{}, nil
		}
		return tracklog.Markers{}, fmt.Errorf("failed to read status file: %w", fileErr)
	}
	return saved.Last, nil
}

// formatTrack applies the template to the track data
func formatTrack(track nowTrack, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for Unicode characters.
// If width <= 0, returns text unchanged.
// If text is longer than width, truncates with "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)

		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		truncated := runewidth.Truncate(text, width-ellipsisWidth, "")
		result := truncated + ellipsis

		// A wide rune at the cut can leave one column short
		if resultWidth := runewidth.StringWidth(result); resultWidth < width {
			return result + strings.Repeat(" ", width-resultWidth)
		}
		return result
	} else if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}

	return text
}
