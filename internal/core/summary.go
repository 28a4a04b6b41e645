package core

import "github.com/shopspring/decimal"

// CategoryTotal is the amount recorded under one category.
type CategoryTotal struct {
	Name   string
	Amount decimal.Decimal
	Count  int
}

// Summarize totals transactions per category, in order of first appearance.
func Summarize(txs []Transaction) []CategoryTotal {
	idx := map[string]int{}
	var out []CategoryTotal
	for _, t := range txs {
		i, ok := idx[t.Category]
		if !ok {
			i = len(out)
			idx[t.Category] = i
			out = append(out, CategoryTotal{Name: t.Category})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
		out[i].Count++
	}
	return out
}
