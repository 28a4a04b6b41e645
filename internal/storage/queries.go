package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func newQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// TransactionRow mirrors a row of the transactions table.
type TransactionRow struct {
	ID          int64
	RecordedOn  string
	Description string
	Amount      string
	Category    string
	CreatedAt   time.Time
	SyncStatus  string
	SyncedAt    sql.NullTime
}

// Values of the sync_status column. A row is claimed (syncing) by exactly
// one sync path between being read as pending and being marked.
const (
	SyncPending = "pending"
	SyncSyncing = "syncing"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// sqliteTimeLayout is the CURRENT_TIMESTAMP text format.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseSQLiteTime(s string) (time.Time, error) {
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

const insertTransaction = `
INSERT INTO transactions (recorded_on, description, amount, category)
VALUES (?, ?, ?, ?)
RETURNING id, recorded_on, description, amount, category, created_at, sync_status, synced_at`

type InsertTransactionParams struct {
	RecordedOn  string
	Description string
	Amount      string
	Category    string
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, insertTransaction, arg.RecordedOn, arg.Description, arg.Amount, arg.Category)
	return scanTransaction(row)
}

const getTransaction = `
SELECT id, recorded_on, description, amount, category, created_at, sync_status, synced_at
FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactions = `
SELECT id, recorded_on, description, amount, category, created_at, sync_status, synced_at
FROM transactions ORDER BY id`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	return q.queryTransactions(ctx, listTransactions)
}

const getPendingSync = `
SELECT id, recorded_on, description, amount, category, created_at, sync_status, synced_at
FROM transactions WHERE sync_status IN ('pending', 'error') ORDER BY id LIMIT ?`

func (q *Queries) GetPendingSync(ctx context.Context, limit int64) ([]TransactionRow, error) {
	return q.queryTransactions(ctx, getPendingSync, limit)
}

const claimSync = `UPDATE transactions SET sync_status = 'syncing' WHERE id = ? AND sync_status IN ('pending', 'error')`

// ClaimSync reports whether this call moved the row into syncing.
func (q *Queries) ClaimSync(ctx context.Context, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, claimSync, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const releaseSyncClaims = `UPDATE transactions SET sync_status = 'pending' WHERE sync_status = 'syncing'`

func (q *Queries) ReleaseSyncClaims(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, releaseSyncClaims)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markSynced = `UPDATE transactions SET sync_status = 'synced', synced_at = CURRENT_TIMESTAMP WHERE id = ?`

func (q *Queries) MarkSynced(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markSynced, id)
	return err
}

const markSyncError = `UPDATE transactions SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkSyncError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markSyncError, id)
	return err
}

const countTransactions = `SELECT COUNT(*) FROM transactions`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactions).Scan(&n)
	return n, err
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTransaction reads timestamps as text: the driver only converts them
// to time.Time when it knows the declared column type.
func scanTransaction(s scanner) (TransactionRow, error) {
	var (
		i         TransactionRow
		createdAt string
		syncedAt  sql.NullString
	)
	err := s.Scan(
		&i.ID,
		&i.RecordedOn,
		&i.Description,
		&i.Amount,
		&i.Category,
		&createdAt,
		&i.SyncStatus,
		&syncedAt,
	)
	if err != nil {
		return i, err
	}
	if i.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return i, err
	}
	if syncedAt.Valid {
		t, err := parseSQLiteTime(syncedAt.String)
		if err != nil {
			return i, err
		}
		i.SyncedAt = sql.NullTime{Time: t, Valid: true}
	}
	return i, nil
}
