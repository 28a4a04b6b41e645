package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"expense-predictor/internal/amqp"
	"expense-predictor/internal/core"
	"expense-predictor/internal/services"
	"expense-predictor/internal/sheets"
)

// SyncWorker mirrors recorded transactions announced over AMQP into the
// remote ledger.
type SyncWorker struct {
	store     services.SyncStore
	remote    sheets.TransactionWriter
	batchSize int
}

// NewSyncWorker builds a worker. store may be nil, in which case messages are
// mirrored from their payload without sync bookkeeping.
func NewSyncWorker(store services.SyncStore, remote sheets.TransactionWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SyncWorker{store: store, remote: remote, batchSize: batchSize}
}

// HandleRecordedMessage processes a single transaction.recorded message.
// Messages that can never succeed are logged and acknowledged.
func (w *SyncWorker) HandleRecordedMessage(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing recorded message", "ref", msg.Ref)

	id, err := strconv.ParseInt(msg.Ref, 10, 64)
	if w.store == nil || err != nil {
		return w.mirrorPayload(ctx, msg)
	}

	claimed, err := w.store.ClaimSync(ctx, id)
	if err != nil {
		return fmt.Errorf("claim transaction: %w", err)
	}
	if !claimed {
		slog.InfoContext(ctx, "Transaction already synced or being synced, skipping", "id", id)
		return nil
	}
	err = w.syncClaimed(ctx, id)
	if errors.Is(err, errInvalidRow) {
		slog.ErrorContext(ctx, "Stored transaction is invalid", "id", id, "error", err)
		return nil
	}
	return err
}

func (w *SyncWorker) mirrorPayload(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	tx, err := msg.Transaction()
	if err != nil {
		slog.ErrorContext(ctx, "Dropping invalid recorded message", "ref", msg.Ref, "error", err)
		return nil
	}
	ref, err := w.remote.Append(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to remote ledger: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored transaction", "ref", msg.Ref, "sheets_ref", ref)
	return nil
}

// StartupSyncCheck mirrors rows left pending while the worker was down.
// It must run before any other sync path starts: claims still held at
// that point belong to a process that died mid-sync and are released.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	if _, err := w.store.ReleaseSyncClaims(ctx); err != nil {
		return fmt.Errorf("release stale sync claims: %w", err)
	}
	pending, err := w.store.GetPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	var errs []error
	synced := 0
	for _, item := range pending {
		claimed, err := w.store.ClaimSync(ctx, item.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("id %d: %w", item.ID, err))
			continue
		}
		if !claimed {
			continue
		}
		if err := w.syncClaimed(ctx, item.ID); err != nil {
			errs = append(errs, fmt.Errorf("id %d: %w", item.ID, err))
			continue
		}
		synced++
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", len(errs))
	return errors.Join(errs...)
}

var errInvalidRow = errors.New("stored transaction is invalid")

// syncClaimed mirrors a row this worker holds the claim for. Every failure
// releases the claim.
func (w *SyncWorker) syncClaimed(ctx context.Context, id int64) error {
	row, err := w.store.GetTransaction(ctx, id)
	if err != nil {
		w.markError(ctx, id)
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	tx, err := row.Transaction()
	if err != nil {
		w.markError(ctx, id)
		return fmt.Errorf("%w: %v", errInvalidRow, err)
	}
	return w.sync(ctx, id, tx)
}

func (w *SyncWorker) sync(ctx context.Context, id int64, tx core.Transaction) error {
	ref, err := w.remote.Append(ctx, tx)
	if err != nil {
		w.markError(ctx, id)
		return fmt.Errorf("append to remote ledger: %w", err)
	}
	if err := w.store.MarkSynced(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
	}
	slog.InfoContext(ctx, "Synced transaction",
		"id", id,
		"sheets_ref", ref,
		"category", tx.Category)
	return nil
}

// markError releases a claimed row so a later pass retries it.
func (w *SyncWorker) markError(ctx context.Context, id int64) {
	if err := w.store.MarkSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", err)
	}
}
