package sheets

import (
	"context"
	"errors"

	"expense-predictor/internal/core"
)

// ErrLedgerIO wraps every failure to read or write the ledger store.
var ErrLedgerIO = errors.New("ledger i/o error")

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// Append adds tx after the last recorded row and returns a reference
		// to the new row.
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// TransactionLister returns every recorded row in insertion order.
	TransactionLister interface {
		List(ctx context.Context) ([]core.Transaction, error)
	}

	Ledger interface {
		TransactionWriter
		TransactionLister
	}
)
