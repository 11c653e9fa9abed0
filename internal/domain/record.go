package domain

import (
	"github.com/shopspring/decimal"
)

// Category is the top-level classification of a record.
type Category string

const (
	// CategoryIncome marks money flowing into the hub.
	CategoryIncome Category = "income"
	// CategoryExpense marks money flowing out of the hub.
	CategoryExpense Category = "expense"
)

// IsFlow reports whether records of this category take part in the diagram.
func (c Category) IsFlow() bool {
	return c == CategoryIncome || c == CategoryExpense
}

// Record is one categorized line of a budget dataset.
// Fields other than these four (e.g. a per-year value) are ignored on decode.
type Record struct {
	Category Category        `json:"category"`
	Type     string          `json:"type"` // subcategory label, e.g. "Tuition"
	Item     string          `json:"item"` // leaf label, e.g. "Undergraduate"
	Amount   decimal.Decimal `json:"amount"`
}
