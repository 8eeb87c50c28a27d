// Package tui renders the daemon status in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"
)

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 500 * time.Millisecond,
	}
}

// Controller is the part of the poll driver the TUI reads and drives
type Controller interface {
	AuthURL() string
	Start() error
	Stop()
	Snapshot() daemon.Status
}

// App is the terminal UI shown by "daemon --tui"
type App struct {
	app    *tview.Application
	state  *tview.TextView
	last   *tview.TextView
	recent *tview.TextView
	footer *tview.TextView

	config Config
	ctl    Controller

	// flash is a one-off message from a key action (guarded by mu)
	mu    sync.Mutex
	flash string

	// Last-rendered content for change detection
	lastState  string
	lastLast   string
	lastRecent string
	lastFooter string
}

// New creates a TUI bound to ctl
func New(ctl Controller, cfg Config) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
		ctl:    ctl,
	}
	a.setupUI()
	return a
}

func (a *App) setupUI() {
	a.state = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.state.SetBorder(true).
		SetTitle(" spotlog ").
		SetTitleAlign(tview.AlignLeft)

	a.last = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.last.SetBorder(true).
		SetTitle(" Last Logged ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent Rows ").
		SetTitleAlign(tview.AlignLeft)

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	// Top row: state | last logged
	// Middle: recent rows
	// Footer: key help or flash message
	topRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.state, 0, 1, false).
		AddItem(a.last, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 8, 1, false).
		AddItem(a.recent, 0, 1, false).
		AddItem(a.footer, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		a.app.Stop()
		return nil
	case 's', 'S':
		if err := a.ctl.Start(); err != nil {
			a.setFlash(daemon.Describe(err))
		} else {
			a.setFlash("")
		}
		return nil
	case 'x', 'X':
		a.ctl.Stop()
		a.setFlash("")
		return nil
	case 'l', 'L':
		a.setFlash("Open to authorize: " + a.ctl.AuthURL())
		return nil
	}
	return event
}

func (a *App) setFlash(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flash = msg
}

// Run shows the TUI until the user quits or ctx is cancelled. Quitting
// returns nil, which ends the daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.refreshLoop(ctx)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// refreshLoop is the only source of redraws
func (a *App) refreshLoop(ctx context.Context) {
	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

func (a *App) refresh() {
	status := a.ctl.Snapshot()

	a.mu.Lock()
	flash := a.flash
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		setIfChanged(a.state, &a.lastState, renderState(status))
		setIfChanged(a.last, &a.lastLast, renderLast(status))

		_, _, width, _ := a.recent.GetInnerRect()
		setIfChanged(a.recent, &a.lastRecent, renderRecent(status, width))

		setIfChanged(a.footer, &a.lastFooter, renderFooter(status, flash))
	})
}

func setIfChanged(view *tview.TextView, last *string, text string) {
	if text != *last {
		*last = text
		view.SetText(text)
	}
}

func renderState(s daemon.Status) string {
	var sb strings.Builder

	color := "gray"
	switch s.State {
	case daemon.StatePolling:
		color = "green"
	case daemon.StateAuthorizedIdle, daemon.StateStopped:
		color = "yellow"
	case daemon.StateAuthorizing:
		color = "blue"
	}
	sb.WriteString(fmt.Sprintf("State: [%s::b]%s[-:-:-]  Mode: %s\n", color, s.State, s.Mode))

	if s.Authorized {
		sb.WriteString("[green]✓ Authorized[-]\n")
	} else {
		sb.WriteString("[red]✗ Not authorized[-] (press l for the login link)\n")
	}

	if s.Message != "" {
		sb.WriteString("\n" + tview.Escape(s.Message) + "\n")
	}
	if !s.LastPass.IsZero() {
		sb.WriteString(fmt.Sprintf("[gray]Last pass %s, %d passes, %d logged[-]",
			s.LastPass.Local().Format("15:04:05"), s.Passes, s.Logged))
	}

	return sb.String()
}

func renderLast(s daemon.Status) string {
	if s.Last.TrackID == "" {
		return "\n[gray]Nothing logged yet[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(s.Last.TrackName)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(s.Last.Artist)))
	if s.Last.PlayedAt != "" {
		sb.WriteString(fmt.Sprintf("[gray]%s[-]", s.Last.PlayedAt))
	}
	return sb.String()
}

// renderRecent lays out the recent rows as date, track and artist columns
// fitted to width display columns
func renderRecent(s daemon.Status, width int) string {
	if len(s.Recent) == 0 {
		return "[gray]No rows yet[-]"
	}
	if width < 30 {
		width = 80
	}

	dateWidth := len("2006-01-02T15:04:05.000Z")
	rest := width - dateWidth - 2
	trackWidth := rest / 2
	artistWidth := rest - trackWidth - 1

	var sb strings.Builder
	for i, row := range s.Recent {
		if i > 0 {
			sb.WriteString("\n")
		}
		date, track, artist := cell(row, 0), cell(row, 1), cell(row, 2)
		sb.WriteString(fmt.Sprintf("[gray]%s[-] [white]%s[-] [yellow]%s[-]",
			fit(date, dateWidth),
			tview.Escape(fit(track, trackWidth)),
			tview.Escape(fit(artist, artistWidth))))
	}
	return sb.String()
}

func renderFooter(s daemon.Status, flash string) string {
	if flash != "" {
		return "[red]" + tview.Escape(flash) + "[-]"
	}
	if s.State == daemon.StatePolling {
		return "[gray]x:stop  q:quit[-]"
	}
	if s.Authorized {
		return "[gray]s:start  q:quit[-]"
	}
	return "[gray]l:login link  q:quit[-]"
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// fit pads or truncates text to exactly width display columns
func fit(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) > width {
		text = runewidth.Truncate(text, width, "…")
	}
	return runewidth.FillRight(text, width)
}
