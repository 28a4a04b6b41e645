package sheets

import (
	"fmt"
	"strings"

	"expense-predictor/internal/core"
)

// IsHeader reports whether cells is the ledger header row.
func IsHeader(cells []string) bool {
	if len(cells) < len(core.Header) {
		return false
	}
	for i, h := range core.Header {
		if !strings.EqualFold(strings.TrimSpace(cells[i]), h) {
			return false
		}
	}
	return true
}

// ParseRow converts ledger cells in header order back into a transaction.
func ParseRow(cells []string) (core.Transaction, error) {
	if len(cells) < len(core.Header) {
		return core.Transaction{}, fmt.Errorf("row has %d cells, want %d", len(cells), len(core.Header))
	}
	date, err := core.ParseDate(cells[0])
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(cells[2])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", cells[2], err)
	}
	return core.Transaction{
		Date:        date,
		Description: strings.TrimSpace(cells[1]),
		Amount:      amount,
		Category:    strings.TrimSpace(cells[3]),
	}, nil
}

// IsBlank reports whether every cell is empty.
func IsBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
