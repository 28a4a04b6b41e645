package memory

import (
	"context"
	"fmt"
	"sync"

	"expense-predictor/internal/core"
	ports "expense-predictor/internal/sheets"
)

var _ ports.Ledger = (*Store)(nil)

// Store keeps the ledger in process memory.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	// failWith, when set, makes Append fail. Used to simulate a broken ledger.
	failWith error
}

func New(seed ...core.Transaction) *Store {
	return &Store{items: append([]core.Transaction(nil), seed...)}
}

// Append stores the transaction and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrLedgerIO, s.failWith)
	}
	s.items = append(s.items, tx)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

func (s *Store) List(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...), nil
}

// Len returns the number of recorded rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// FailAppends makes every following Append fail with err. A nil err
// restores normal behavior.
func (s *Store) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}
