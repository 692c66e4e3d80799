package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"matchfund/internal/core"
	ports "matchfund/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultMatchesSheet is the base name of the per-year summary sheet.
const DefaultMatchesSheet = "Matches"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Matches"); the match year is prefixed.
	matchesBase string
}

var _ ports.SummaryExporter = (*Client)(nil)

// Config selects the spreadsheet and service-account credentials. When both
// credential fields are empty GOOGLE_APPLICATION_CREDENTIALS is used.
type Config struct {
	SpreadsheetID   string
	MatchesSheet    string
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	base := strings.TrimSpace(cfg.MatchesSheet)
	if base == "" {
		base = DefaultMatchesSheet
	}

	if len(opts) == 0 {
		creds, err := loadCredentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID, "sheet", base)

	return &Client{svc: svc, spreadsheetID: spreadsheetID, matchesBase: base}, nil
}

func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendMatchSummary appends one row per ended match to "<year> <base>". A
// match already present in column A is not appended again.
func (c *Client) AppendMatchSummary(ctx context.Context, s core.FinancialSummary) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if s.Match.ID == "" {
		return "", errors.New("summary has no match id")
	}

	sheet := c.sheetName(s.Match)
	idRange := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, idRange).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", idRange, err)
	}

	if row := findMatchRow(resp.Values, s.Match.ID); row > 0 {
		slog.InfoContext(ctx, "Match already exported to sheet", "match_id", s.Match.ID, "sheet", sheet, "row", row)
		return fmt.Sprintf("%s!A%d", sheet, row), nil
	}

	values := [][]any{summaryRow(s)}
	if len(resp.Values) == 0 {
		values = append([][]any{headerRow()}, values...)
	}

	appendRange := fmt.Sprintf("%s!A:%s", sheet, lastColumn)
	out, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := appendRange
	if out.Updates != nil && out.Updates.UpdatedRange != "" {
		ref = out.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Match summary exported to sheet", "match_id", s.Match.ID, "range", ref)
	return ref, nil
}

func (c *Client) sheetName(m core.Match) string {
	year := m.Date.Year()
	if m.Date.IsZero() && m.EndedAt != nil {
		year = m.EndedAt.Year()
	}
	return yearPrefixedName(c.matchesBase, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
