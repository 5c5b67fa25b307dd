package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"scadenze/internal/core"
	ports "scadenze/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Payments land in a per-year sheet ("2026 Pagamenti"); entries are a
	// timeless seed list.
	paymentsSheet string
	paymentsBase  string
	entriesSheet  string

	// Row count cache: avoids the read probe on every append.
	mu                 sync.Mutex
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.PaymentWriter = (*Client)(nil)
	_ ports.EntryReader   = (*Client)(nil)
	_ ports.PaymentLister = (*Client)(nil)
)

// Indirection for tests.
var jsonUnmarshal = json.Unmarshal

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON / GOOGLE_SERVICE_ACCOUNT_FILE, or the
// OAuth pair GOOGLE_OAUTH_CLIENT_JSON/FILE + GOOGLE_OAUTH_TOKEN_JSON/FILE
// (see cmd/oauth-init for the token bootstrap).
// Optional sheet names: GOOGLE_PAYMENTS_SHEET_NAME (default "Pagamenti",
// year-prefixed per instance), GOOGLE_ENTRIES_SHEET_NAME (default "Scadenze").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	paymentsBase := strings.TrimSpace(os.Getenv("GOOGLE_PAYMENTS_SHEET_NAME"))
	if paymentsBase == "" {
		paymentsBase = "Pagamenti"
	}
	entriesSheet := strings.TrimSpace(os.Getenv("GOOGLE_ENTRIES_SHEET_NAME"))
	if entriesSheet == "" {
		entriesSheet = "Scadenze"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		paymentsSheet:      yearPrefixedName(paymentsBase, time.Now().Year()),
		paymentsBase:       paymentsBase,
		entriesSheet:       entriesSheet,
		cacheValidDuration: 2 * time.Minute,
	}, nil
}

// newSheetsService initializes a Sheets service. Service account
// credentials take precedence; otherwise the OAuth client + token pair
// written by cmd/oauth-init is used.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	saJSON, err := readCredential("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE")
	if err != nil {
		return nil, err
	}
	if saJSON != nil {
		slog.InfoContext(ctx, "Creating Sheets service with service account",
			"credentials_size", len(saJSON))
		service, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return service, nil
	}

	httpClient, err := oauthHTTPClient(ctx)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Sheets service with OAuth token")
	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func oauthHTTPClient(ctx context.Context) (*http.Client, error) {
	clientJSON, err := readCredential("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	conf, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tokenJSON, err := readCredential("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	var token oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	return conf.Client(ctx, &token), nil
}

// readCredential resolves a credential from the inline env var, then the
// file env var. Returns nil when neither is set.
func readCredential(jsonEnv, fileEnv string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonEnv)); v != "" {
		return []byte(v), nil
	}
	if path := strings.TrimSpace(os.Getenv(fileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fileEnv, err)
		}
		return data, nil
	}
	return nil, nil
}

// Append writes one payment row into the current year's payments sheet.
func (c *Client) Append(ctx context.Context, row ports.ExportRow) (string, error) {
	if err := validateRow(row); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	nextRow, err := c.reserveRow(ctx)
	if err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A%d:F%d", c.paymentsSheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.Date.Format(time.DateOnly),
		row.EntryName,
		row.Amount.Amount.InexactFloat64(),
		row.Amount.Currency,
		string(row.Mode),
		row.Status,
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		// The reserved slot may be wrong now; re-probe on the next append.
		c.InvalidateRowCache()
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	return rng, nil
}

func validateRow(row ports.ExportRow) error {
	if strings.TrimSpace(row.EntryName) == "" {
		return core.ErrEmptyName
	}
	if err := row.Amount.Validate(); err != nil {
		return err
	}
	if row.Date.IsZero() {
		return errors.New("zero payment date")
	}
	return nil
}

// reserveRow returns the next free row number, probing the sheet only when
// the cached count has expired.
func (c *Client) reserveRow(ctx context.Context) (int, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		c.cachedRowCount++
		row := c.cachedRowCount
		c.mu.Unlock()
		return row, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.paymentsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get sheet dimensions for %s: %w", c.paymentsSheet, err)
	}

	c.mu.Lock()
	c.cachedRowCount = len(resp.Values) + 1
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	row := c.cachedRowCount
	c.mu.Unlock()
	return row, nil
}

// InvalidateRowCache forces the next append to re-probe the sheet.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

// ListPayments lists exported rows for the given year and month by
// scanning that year's payments sheet. Best-effort: malformed rows are
// skipped.
func (c *Client) ListPayments(ctx context.Context, year int, month int) ([]ports.ExportRow, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	sheetName := yearPrefixedName(c.paymentsBase, year)
	rng := fmt.Sprintf("%s!A:F", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []ports.ExportRow
	for _, raw := range resp.Values {
		row, ok := parseExportRow(toStrings(raw))
		if !ok {
			continue
		}
		if row.Date.Year() != year || int(row.Date.Month()) != month {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// ListEntries reads the seed entries sheet. Rows that do not parse
// (headers included) are skipped.
func (c *Client) ListEntries(ctx context.Context) ([]core.Entry, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:H", c.entriesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []core.Entry
	for _, raw := range resp.Values {
		e, ok := parseEntryRow(toStrings(raw))
		if !ok {
			continue
		}
		out = append(out, e)
	}
	return out, nil
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
