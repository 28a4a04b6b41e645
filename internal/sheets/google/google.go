package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"

	"expense-predictor/internal/core"
	ports "expense-predictor/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	mu            sync.Mutex
	headerChecked bool

	newBackOff func() backoff.BackOff
}

// Ensure interface conformance
var _ ports.Ledger = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	if strings.TrimSpace(sheet) == "" {
		sheet = "Transactions"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		newBackOff:    defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Inline JSON wins over the credentials file.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		credentialsJSON, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// retryable reports whether a Sheets API error is worth another attempt:
// quota exhaustion, server errors and network failures.
func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

func (c *Client) do(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(c.newBackOff(), ctx))
}

// ensureHeader writes the header row when the sheet is empty. The check runs
// once per client.
func (c *Client) ensureHeader(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerChecked {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:D1", c.sheet)
	var resp *gsheet.ValueRange
	err := c.do(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		header := make([]any, len(core.Header))
		for i, h := range core.Header {
			header[i] = h
		}
		vr := &gsheet.ValueRange{Values: [][]any{header}}
		err = c.do(ctx, func() error {
			_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
				ValueInputOption("RAW").Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
	}
	c.headerChecked = true
	return nil
}

func (c *Client) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", fmt.Errorf("%w: sheets service not initialized", ports.ErrLedgerIO)
	}
	if err := c.ensureHeader(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrLedgerIO, err)
	}

	vr := &gsheet.ValueRange{Values: [][]any{{
		tx.Date.String(),
		tx.Description,
		tx.Amount.InexactFloat64(),
		tx.Category,
	}}}
	rng := fmt.Sprintf("%s!A:D", c.sheet)

	var resp *gsheet.AppendValuesResponse
	err := c.do(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: append to %s: %v", ports.ErrLedgerIO, c.sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

func (c *Client) List(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, fmt.Errorf("%w: sheets service not initialized", ports.ErrLedgerIO)
	}
	rng := fmt.Sprintf("%s!A:D", c.sheet)
	var resp *gsheet.ValueRange
	err := c.do(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ports.ErrLedgerIO, rng, err)
	}

	var out []core.Transaction
	for i, row := range resp.Values {
		cols := toStrings(row)
		if i == 0 && ports.IsHeader(cols) {
			continue
		}
		if ports.IsBlank(cols) {
			continue
		}
		tx, err := ports.ParseRow(cols)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ports.ErrLedgerIO, c.sheet, i+1, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
