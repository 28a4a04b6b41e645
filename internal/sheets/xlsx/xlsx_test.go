package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"expense-predictor/internal/core"
	ports "expense-predictor/internal/sheets"
)

func newTx(desc, amount, category string) core.Transaction {
	return core.Transaction{
		Date:        core.NewDate(2024, 3, 15),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
	}
}

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestAppendCreatesLedgerWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	s := New(path, "")

	ref, err := s.Append(context.Background(), newTx("Coffee shop purchase", "4.50", "Food & Dining"))
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!A2:D2", ref)

	rows := readSheet(t, path, "Sheet1")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Date", "Description", "Amount", "Category"}, rows[0])
	assert.Equal(t, []string{"15-03-2024", "Coffee shop purchase", "4.5", "Food & Dining"}, rows[1])
}

func TestAppendPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	s := New(path, "")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ref, err := s.Append(ctx, newTx(fmt.Sprintf("d%d", i), fmt.Sprintf("%d.25", i), "Bills"))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Sheet1!A%d:D%d", i+1, i+1), ref)
	}

	txs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	for i, tx := range txs {
		assert.Equal(t, fmt.Sprintf("d%d", i+1), tx.Description)
		assert.True(t, decimal.RequireFromString(fmt.Sprintf("%d.25", i+1)).Equal(tx.Amount))
		assert.Equal(t, "Bills", tx.Category)
		assert.Equal(t, core.NewDate(2024, 3, 15), tx.Date)
	}
}

func TestAppendKeepsRowsFromExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	require.NoError(t, WriteAll(path, "", []core.Transaction{newTx("rent", "900", "Bills")}))

	s := New(path, "")
	_, err := s.Append(context.Background(), newTx("cinema", "12", "Entertainment"))
	require.NoError(t, err)

	rows := readSheet(t, path, "Sheet1")
	require.Len(t, rows, 3)
	assert.Equal(t, "rent", rows[1][1])
	assert.Equal(t, "cinema", rows[2][1])
}

func TestAppendConcurrentLosesNoRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	s := New(path, "")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(context.Background(), newTx(fmt.Sprintf("row %d", i), "1", "Bills"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	txs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, n)

	seen := map[string]bool{}
	for _, tx := range txs {
		seen[tx.Description] = true
	}
	assert.Len(t, seen, n)
}

func TestAppendCorruptFileIsLeftUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	garbage := []byte("this is not a workbook")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	s := New(path, "")
	_, err := s.Append(context.Background(), newTx("coffee", "3", "Food & Dining"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrLedgerIO)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, after)

	_, err = s.List(context.Background())
	assert.ErrorIs(t, err, ports.ErrLedgerIO)
}

func TestAppendUnwritableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "transactions.xlsx")
	s := New(path, "")
	_, err := s.Append(context.Background(), newTx("coffee", "3", "Food & Dining"))
	assert.ErrorIs(t, err, ports.ErrLedgerIO)
}

func TestAppendRejectsInvalidTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	s := New(path, "")
	_, err := s.Append(context.Background(), newTx("", "3", "Food & Dining"))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file should be created")
}

func TestAppendOverflowingAmountKeepsLedgerReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	s := New(path, "")
	ctx := context.Background()

	_, err := s.Append(ctx, newTx("grocery run", "32.10", "Groceries"))
	require.NoError(t, err)
	_, err = s.Append(ctx, newTx("wire transfer", "1e400", "Other"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	txs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("32.10")))
}

func TestAppendLargeAmountRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	s := New(path, "")
	ctx := context.Background()

	_, err := s.Append(ctx, newTx("house deposit", "1e300", "Other"))
	require.NoError(t, err)
	_, err = s.Append(ctx, newTx("coffee", "4.50", "Food & Dining"))
	require.NoError(t, err)

	txs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "coffee", txs[1].Description)
}

func TestCustomSheetName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	s := New(path, "Expenses")
	ref, err := s.Append(context.Background(), newTx("taxi", "18.40", "Transport"))
	require.NoError(t, err)
	assert.Equal(t, "Expenses!A2:D2", ref)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Expenses"}, f.GetSheetList())
}

func TestListMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "none.xlsx"), "")
	txs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txs)
}
