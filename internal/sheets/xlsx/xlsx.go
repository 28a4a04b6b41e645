// Package xlsx keeps the ledger in a single spreadsheet file.
//
// Every append reads the whole workbook, adds one row after the last one and
// rewrites the file. The rewrite goes to a temporary file in the same
// directory which is then renamed over the ledger, and a mutex serializes
// read-modify-write cycles within the process.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"expense-predictor/internal/core"
	ports "expense-predictor/internal/sheets"
)

const DefaultSheet = "Sheet1"

var _ ports.Ledger = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	path  string
	sheet string
}

func New(path, sheet string) *Store {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &Store{path: path, sheet: sheet}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.path, s.sheet)
	if err != nil {
		return "", err
	}
	rows = append(rows, tx.Row())
	if err := writeRows(s.path, s.sheet, rows); err != nil {
		return "", err
	}
	// Row 1 is the header.
	n := len(rows) + 1
	return fmt.Sprintf("%s!A%d:D%d", s.sheet, n, n), nil
}

func (s *Store) List(ctx context.Context) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rows, err := readRows(s.path, s.sheet)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := ports.ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ports.ErrLedgerIO, s.path, i+2, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// WriteAll replaces the ledger at path with txs. It is the export path for
// stores that keep the rows elsewhere.
func WriteAll(path, sheet string, txs []core.Transaction) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, tx.Row())
	}
	return writeRows(path, sheet, rows)
}

// readRows returns the data rows of the ledger without the header. A
// missing file is an empty ledger; a file that exists but cannot be parsed
// is an error.
func readRows(path, sheet string) ([][]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ports.ErrLedgerIO, path, err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ports.ErrLedgerIO, path, err)
	}
	defer f.Close()

	name := sheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: %s has no sheets", ports.ErrLedgerIO, path)
		}
		name = list[0]
	}
	all, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s!%s: %v", ports.ErrLedgerIO, path, name, err)
	}

	rows := make([][]string, 0, len(all))
	for i, row := range all {
		if i == 0 && ports.IsHeader(row) {
			continue
		}
		if ports.IsBlank(row) {
			continue
		}
		rows = append(rows, pad(row, len(core.Header)))
	}
	return rows, nil
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row[:n]
}

func writeRows(path, sheet string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != DefaultSheet {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("%w: sheet %s: %v", ports.ErrLedgerIO, sheet, err)
		}
		if err := f.DeleteSheet(DefaultSheet); err != nil {
			return fmt.Errorf("%w: sheet %s: %v", ports.ErrLedgerIO, sheet, err)
		}
	}

	header := make([]any, len(core.Header))
	for i, h := range core.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%w: write header: %v", ports.ErrLedgerIO, err)
	}
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		// Amounts are stored as numbers so spreadsheet formulas work on them.
		if d, err := decimal.NewFromString(row[2]); err == nil && core.IsFiniteAmount(d) {
			cells[2] = d.InexactFloat64()
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%w: %v", ports.ErrLedgerIO, err)
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("%w: write row %d: %v", ports.ErrLedgerIO, i+2, err)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.xlsx")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %v", ports.ErrLedgerIO, dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod %s: %v", ports.ErrLedgerIO, tmpName, err)
	}

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ports.ErrLedgerIO, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", ports.ErrLedgerIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ports.ErrLedgerIO, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ports.ErrLedgerIO, path, err)
	}
	return nil
}
