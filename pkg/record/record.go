// Package record defines the monetary record shared by every engine in goledger.
package record

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies a record as money coming in or going out.
type Kind int

const (
	// Outflow is an expense.
	Outflow Kind = iota
	// Inflow is income.
	Inflow
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	if k == Inflow {
		return "income"
	}
	return "expense"
}

// ParseKind accepts "income"/"inflow" and "expense"/"outflow" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "inflow":
		return Inflow, nil
	case "expense", "outflow":
		return Outflow, nil
	default:
		return Outflow, fmt.Errorf("unknown record kind %q", s)
	}
}

// Record is a single timestamped, categorized monetary movement.
//
// Record only holds scalars and strings, so assigning it copies it completely.
// Engines rely on that to keep independent copies of what the caller hands them.
type Record struct {
	// ID is unique and never changes once assigned.
	ID       string
	Kind     Kind
	Amount   float64
	Category string
	Note     string
	// Date is YYYY-MM-DD; lexical order equals chronological order.
	Date string
}

// IsInflow reports whether r is income.
func (r Record) IsInflow() bool { return r.Kind == Inflow }

// IsOutflow reports whether r is an expense.
func (r Record) IsOutflow() bool { return r.Kind == Outflow }

// NewID returns a fresh identifier owned by the caller.
func NewID() string {
	return uuid.NewString()
}

// CategoryAmount is a category with an accumulated total, used for rankings.
type CategoryAmount struct {
	Category string
	Amount   float64
}

// TotalsByCategory sums outflow amounts per category.
func TotalsByCategory(records []Record) []CategoryAmount {
	idx := make(map[string]int)
	var out []CategoryAmount
	for _, r := range records {
		if !r.IsOutflow() {
			continue
		}
		i, ok := idx[r.Category]
		if !ok {
			i = len(out)
			idx[r.Category] = i
			out = append(out, CategoryAmount{Category: r.Category})
		}
		out[i].Amount += r.Amount
	}
	return out
}
