package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expense-predictor/internal/sheets"
	"expense-predictor/internal/storage"
)

// SyncStore is the part of the transaction log the sync processor needs.
type SyncStore interface {
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	GetTransaction(ctx context.Context, id int64) (*storage.TransactionRow, error)
	ClaimSync(ctx context.Context, id int64) (bool, error)
	ReleaseSyncClaims(ctx context.Context) (int64, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of rows mirrored per poll cycle (default: 50)
	BatchSize int
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
	}
}

// SyncProcessor mirrors log rows that were never synced, for instance
// because their AMQP message was lost, to the remote ledger.
type SyncProcessor struct {
	store  SyncStore
	remote sheets.TransactionWriter
	config SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor builds a processor. Zero config fields take their
// defaults.
func NewSyncProcessor(store SyncStore, remote sheets.TransactionWriter, config SyncProcessorConfig) *SyncProcessor {
	defaults := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	return &SyncProcessor{store: store, remote: remote, config: config}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessPending(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
		}
	}
}

// ProcessPending mirrors one batch of unsynced rows and returns how many
// were mirrored.
func (p *SyncProcessor) ProcessPending(ctx context.Context) int {
	pending, err := p.store.GetPendingSync(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to get pending transactions", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}
	slog.DebugContext(ctx, "Processing pending transactions", "count", len(pending))

	synced := 0
	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		// The AMQP consumer may be mirroring the same row right now.
		claimed, err := p.store.ClaimSync(ctx, item.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to claim transaction", "id", item.ID, "error", err)
			continue
		}
		if !claimed {
			slog.DebugContext(ctx, "Transaction claimed elsewhere, skipping", "id", item.ID)
			continue
		}
		if err := p.syncOne(ctx, item.ID); err != nil {
			slog.WarnContext(ctx, "Sync failed", "id", item.ID, "error", err)
			if markErr := p.store.MarkSyncError(ctx, item.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", item.ID, "error", markErr)
			}
			continue
		}
		synced++
	}
	slog.InfoContext(ctx, "Pending transactions processed", "total", len(pending), "synced", synced)
	return synced
}

func (p *SyncProcessor) syncOne(ctx context.Context, id int64) error {
	row, err := p.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	tx, err := row.Transaction()
	if err != nil {
		return err
	}
	ref, err := p.remote.Append(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to remote ledger: %w", err)
	}
	if err := p.store.MarkSynced(ctx, id); err != nil {
		// The row is mirrored but stays claimed; the next startup check
		// releases and mirrors it again.
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
	}
	slog.InfoContext(ctx, "Synced transaction", "id", id, "sheets_ref", ref)
	return nil
}
