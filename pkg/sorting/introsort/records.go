package introsort

import "github.com/hed1ad/goledger/pkg/record"

// ByAmountDesc sorts records in place, largest amount first.
// Equal amounts are ordered by date, then ID.
func ByAmountDesc(records []record.Record, st *Stats) {
	Sort(records, func(a, b record.Record) bool {
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.ID < b.ID
	}, st)
}

// ByDateAsc sorts records in place, oldest first. Equal dates are ordered by ID.
func ByDateAsc(records []record.Record, st *Stats) {
	Sort(records, func(a, b record.Record) bool {
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.ID < b.ID
	}, st)
}

// TopK returns the k largest records by amount. The input is not modified.
func TopK(records []record.Record, k int, st *Stats) []record.Record {
	if k <= 0 {
		return nil
	}

	out := make([]record.Record, len(records))
	copy(out, records)
	ByAmountDesc(out, st)

	if k < len(out) {
		out = out[:k]
	}
	return out
}

// CategoriesDesc sorts category totals in place, largest first.
func CategoriesDesc(cats []record.CategoryAmount, st *Stats) {
	Sort(cats, func(a, b record.CategoryAmount) bool {
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Category < b.Category
	}, st)
}

// TopCategories totals outflows per category and returns the k largest.
// A non-positive k returns every category.
func TopCategories(records []record.Record, k int, st *Stats) []record.CategoryAmount {
	cats := record.TotalsByCategory(records)
	CategoriesDesc(cats, st)

	if k > 0 && k < len(cats) {
		cats = cats[:k]
	}
	return cats
}
