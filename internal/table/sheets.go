package table

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultWritesPerMinute matches the Sheets API per-user write quota
const DefaultWritesPerMinute = 60

// SheetsConfig configures the Google Sheets driver
type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsJSON []byte // Service account key

	// Endpoint and HTTPClient replace the real API and its auth (tests)
	Endpoint   string
	HTTPClient *http.Client

	WritesPerMinute int
}

// Sheets is a table backed by the first worksheet of a Google spreadsheet
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	limiter       *rate.Limiter
	logger        zerolog.Logger

	mu      sync.Mutex
	sheetID int64
	title   string
}

// NewSheets connects to the spreadsheet as the configured service account
func NewSheets(ctx context.Context, cfg SheetsConfig, logger zerolog.Logger) (*Sheets, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	var opts []option.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	} else {
		jwt, err := google.JWTConfigFromJSON(cfg.CredentialsJSON, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account key: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(jwt.Client(ctx)))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	perMinute := cfg.WritesPerMinute
	if perMinute <= 0 {
		perMinute = DefaultWritesPerMinute
	}

	return &Sheets{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		logger:        logger.With().Str("component", "sheets").Logger(),
	}, nil
}

// worksheet resolves and caches the id and title of the first worksheet
func (s *Sheets) worksheet(ctx context.Context) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.title != "" {
		return s.sheetID, s.title, nil
	}

	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets(properties(sheetId,title))").
		Context(ctx).
		Do()
	if err != nil {
		return 0, "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return 0, "", fmt.Errorf("spreadsheet %s has no worksheets", s.spreadsheetID)
	}

	props := ss.Sheets[0].Properties
	s.sheetID = props.SheetId
	s.title = props.Title

	s.logger.Debug().Str("worksheet", s.title).Msg("Resolved worksheet")
	return s.sheetID, s.title, nil
}

// ReadAll returns every row of the worksheet. Trailing empty cells are
// trimmed by the API.
func (s *Sheets) ReadAll(ctx context.Context) ([][]string, error) {
	_, title, err := s.worksheet(ctx)
	if err != nil {
		return nil, err
	}

	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteTitle(title)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	rows := make([][]string, 0, len(vr.Values))
	for _, raw := range vr.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// InsertRow inserts an empty row at index and fills it with row
func (s *Sheets) InsertRow(ctx context.Context, row []string, index int) error {
	if index < 1 {
		return fmt.Errorf("row index %d out of range", index)
	}

	sheetID, title, err := s.worksheet(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	insert := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(index - 1),
					EndIndex:        int64(index),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, insert).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!A%d", quoteTitle(title), index)
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, valueRange(row)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write inserted row: %w", err)
	}

	return nil
}

// AppendRow appends row after the last non-empty row
func (s *Sheets) AppendRow(ctx context.Context, row []string) error {
	_, title, err := s.worksheet(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, quoteTitle(title), valueRange(row)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	return nil
}

func valueRange(row []string) *sheets.ValueRange {
	cells := make([]interface{}, len(row))
	for i, c := range row {
		cells[i] = c
	}
	return &sheets.ValueRange{Values: [][]interface{}{cells}}
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
