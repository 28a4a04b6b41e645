package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"expense-predictor/internal/core"
	ports "expense-predictor/internal/sheets"
)

func tx(desc string) core.Transaction {
	return core.Transaction{
		Date:        core.NewDate(2024, 1, 1),
		Description: desc,
		Amount:      decimal.RequireFromString("1.23"),
		Category:    "Bills",
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	s := New()
	ref, err := s.Append(context.Background(), tx("t"))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, _ = s.Append(context.Background(), tx("u"))
	if ref != "mem:2" {
		t.Fatalf("unexpected ref: %q", ref)
	}

	items, err := s.List(context.Background())
	if err != nil || len(items) != 2 || items[0].Description != "t" || items[1].Description != "u" {
		t.Fatalf("unexpected list: %v err=%v", items, err)
	}

	items[0].Description = "mutated"
	again, _ := s.List(context.Background())
	if again[0].Description != "t" {
		t.Fatalf("List must return a copy")
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	s := New()
	bad := tx("")
	if _, err := s.Append(context.Background(), bad); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("invalid transaction must not be stored")
	}
}

func TestMemoryStoreFailAppends(t *testing.T) {
	s := New(tx("seed"))
	s.FailAppends(errors.New("disk full"))
	if _, err := s.Append(context.Background(), tx("x")); !errors.Is(err, ports.ErrLedgerIO) {
		t.Fatalf("expected ErrLedgerIO, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("failed append must not store a row")
	}
	s.FailAppends(nil)
	if _, err := s.Append(context.Background(), tx("x")); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(context.Background(), tx(fmt.Sprintf("d%d", i))); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("lost rows: got %d, want 50", s.Len())
	}
}
