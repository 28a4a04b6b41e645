package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"expense-predictor/internal/core"
	"expense-predictor/internal/sheets/memory"
	"expense-predictor/internal/storage"
)

type fakeSyncStore struct {
	rows        map[int64]*storage.TransactionRow
	order       []int64
	markedError []int64
}

func newFakeSyncStore(descs ...string) *fakeSyncStore {
	s := &fakeSyncStore{rows: map[int64]*storage.TransactionRow{}}
	for i, d := range descs {
		id := int64(i + 1)
		s.rows[id] = &storage.TransactionRow{
			ID: id, RecordedOn: "2024-03-15", Description: d, Amount: "4.50",
			Category: "Food & Dining", SyncStatus: "pending", CreatedAt: time.Now(),
		}
		s.order = append(s.order, id)
	}
	return s
}

func (s *fakeSyncStore) GetPendingSync(_ context.Context, limit int) ([]storage.PendingSync, error) {
	var out []storage.PendingSync
	for _, id := range s.order {
		if st := s.rows[id].SyncStatus; (st == storage.SyncPending || st == storage.SyncError) && len(out) < limit {
			out = append(out, storage.PendingSync{ID: id, CreatedAt: s.rows[id].CreatedAt})
		}
	}
	return out, nil
}

func (s *fakeSyncStore) GetTransaction(_ context.Context, id int64) (*storage.TransactionRow, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("no row %d", id)
	}
	cp := *row
	return &cp, nil
}

func (s *fakeSyncStore) ClaimSync(_ context.Context, id int64) (bool, error) {
	row, ok := s.rows[id]
	if !ok || (row.SyncStatus != storage.SyncPending && row.SyncStatus != storage.SyncError) {
		return false, nil
	}
	row.SyncStatus = storage.SyncSyncing
	return true, nil
}

func (s *fakeSyncStore) ReleaseSyncClaims(context.Context) (int64, error) {
	return 0, nil
}

func (s *fakeSyncStore) MarkSynced(_ context.Context, id int64) error {
	s.rows[id].SyncStatus = "synced"
	return nil
}

func (s *fakeSyncStore) MarkSyncError(_ context.Context, id int64) error {
	s.rows[id].SyncStatus = "error"
	s.markedError = append(s.markedError, id)
	return nil
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()
	if config.PollInterval != time.Minute {
		t.Errorf("expected PollInterval 1m, got %v", config.PollInterval)
	}
	if config.BatchSize != 50 {
		t.Errorf("expected BatchSize 50, got %d", config.BatchSize)
	}
}

func TestProcessPendingMirrorsRows(t *testing.T) {
	store := newFakeSyncStore("a", "b", "c")
	remote := memory.New()
	p := NewSyncProcessor(store, remote, SyncProcessorConfig{PollInterval: time.Hour, BatchSize: 2})

	if n := p.ProcessPending(context.Background()); n != 2 {
		t.Fatalf("first batch synced %d, want 2", n)
	}
	if n := p.ProcessPending(context.Background()); n != 1 {
		t.Fatalf("second batch synced %d, want 1", n)
	}
	if n := p.ProcessPending(context.Background()); n != 0 {
		t.Fatalf("nothing should remain, synced %d", n)
	}

	rows, _ := remote.List(context.Background())
	if len(rows) != 3 || rows[0].Description != "a" || rows[2].Description != "c" {
		t.Fatalf("unexpected mirrored rows: %+v", rows)
	}
	if rows[0].Date != core.NewDate(2024, 3, 15) {
		t.Fatalf("unexpected date: %v", rows[0].Date)
	}
}

func TestProcessPendingMarksErrors(t *testing.T) {
	store := newFakeSyncStore("a")
	remote := memory.New()
	remote.FailAppends(errors.New("quota"))
	p := NewSyncProcessor(store, remote, DefaultSyncProcessorConfig())

	if n := p.ProcessPending(context.Background()); n != 0 {
		t.Fatalf("synced %d, want 0", n)
	}
	if len(store.markedError) != 1 || store.rows[1].SyncStatus != "error" {
		t.Fatalf("row should be marked with sync error: %+v", store.rows[1])
	}

	// Error rows are retried on the next pass.
	remote.FailAppends(nil)
	if n := p.ProcessPending(context.Background()); n != 1 {
		t.Fatalf("retry synced %d, want 1", n)
	}
}

func TestProcessPendingSkipsRowsClaimedConcurrently(t *testing.T) {
	store := &racingStore{fakeSyncStore: newFakeSyncStore("a", "b")}
	remote := memory.New()
	p := NewSyncProcessor(store, remote, DefaultSyncProcessorConfig())

	if n := p.ProcessPending(context.Background()); n != 1 {
		t.Fatalf("synced %d, want 1", n)
	}
	rows, _ := remote.List(context.Background())
	if len(rows) != 1 || rows[0].Description != "b" {
		t.Fatalf("only the unclaimed row should be mirrored: %+v", rows)
	}
	if store.rows[1].SyncStatus != storage.SyncSyncing {
		t.Fatalf("claim held elsewhere must be left alone, got %s", store.rows[1].SyncStatus)
	}
}

// racingStore hands row 1 to another consumer between listing it as
// pending and the processor's claim.
type racingStore struct {
	*fakeSyncStore
}

func (s *racingStore) GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error) {
	pending, err := s.fakeSyncStore.GetPendingSync(ctx, limit)
	s.rows[1].SyncStatus = storage.SyncSyncing
	return pending, err
}

func TestSyncProcessorLifecycle(t *testing.T) {
	p := NewSyncProcessor(newFakeSyncStore(), memory.New(), SyncProcessorConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10})
	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop should not error when not running: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error when starting twice")
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("processor should be stopped")
	}
}
