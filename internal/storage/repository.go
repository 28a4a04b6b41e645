package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"expense-predictor/internal/core"
	ports "expense-predictor/internal/sheets"
	"expense-predictor/internal/sheets/xlsx"

	_ "modernc.org/sqlite"
)

var _ ports.Ledger = (*SQLiteRepository)(nil)

// SQLiteRepository is the append-only transaction log. Rows are never
// rewritten; Export produces the spreadsheet ledger from the log.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := applyMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{db: db, queries: newQueries(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements sheets.TransactionWriter. The reference is the row id.
func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	row, err := r.queries.InsertTransaction(ctx, InsertTransactionParams{
		RecordedOn:  tx.Date.Date.String(),
		Description: tx.Description,
		Amount:      tx.Amount.String(),
		Category:    tx.Category,
	})
	if err != nil {
		return "", fmt.Errorf("%w: insert transaction: %v", ports.ErrLedgerIO, err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"description", row.Description,
		"amount", row.Amount,
		"category", row.Category)

	return strconv.FormatInt(row.ID, 10), nil
}

// List implements sheets.TransactionLister.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ports.ErrLedgerIO, err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.Transaction()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ports.ErrLedgerIO, row.ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// Transaction converts a stored row to the domain type.
func (row TransactionRow) Transaction() (core.Transaction, error) {
	date, err := civil.ParseDate(row.RecordedOn)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, row.RecordedOn)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, row.Amount)
	}
	return core.Transaction{
		Date:        core.Date{Date: date},
		Description: row.Description,
		Amount:      amount,
		Category:    row.Category,
	}, nil
}

// Export writes every logged transaction to an xlsx ledger at path,
// replacing it. It returns the number of rows written.
func (r *SQLiteRepository) Export(ctx context.Context, path, sheet string) (int, error) {
	txs, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if err := xlsx.WriteAll(path, sheet, txs); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Ledger exported", "path", path, "rows", len(txs))
	return len(txs), nil
}

// GetTransaction retrieves a single row by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*TransactionRow, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return &row, nil
}

// PendingSync is the minimal data needed for a sync queue message.
type PendingSync struct {
	ID        int64
	CreatedAt time.Time
}

// GetPendingSync returns rows not yet mirrored to Google Sheets.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.queries.GetPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	out := make([]PendingSync, len(rows))
	for i, row := range rows {
		out[i] = PendingSync{ID: row.ID, CreatedAt: row.CreatedAt}
	}
	return out, nil
}

// ClaimSync moves a pending or failed row into syncing. It returns false
// when another sync path already holds the row or it is already synced;
// the caller must then leave the row alone.
func (r *SQLiteRepository) ClaimSync(ctx context.Context, id int64) (bool, error) {
	claimed, err := r.queries.ClaimSync(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim transaction for sync: %w", err)
	}
	return claimed, nil
}

// ReleaseSyncClaims returns rows stuck in syncing, left behind by a process
// that stopped mid-sync, to pending.
func (r *SQLiteRepository) ReleaseSyncClaims(ctx context.Context) (int64, error) {
	n, err := r.queries.ReleaseSyncClaims(ctx)
	if err != nil {
		return 0, fmt.Errorf("release sync claims: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Released stale sync claims", "count", n)
	}
	return n, nil
}

// MarkSynced marks a row as successfully mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.queries.MarkSynced(ctx, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a row whose mirroring failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// Count returns the number of logged rows.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	return r.queries.CountTransactions(ctx)
}
