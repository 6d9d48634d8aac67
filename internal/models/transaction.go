package models

import "time"

// DateLayout is the calendar date format used for transaction dates.
const DateLayout = "2006-01-02"

// TransactionType tags a transaction as income or expense.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Valid reports whether t is one of the two known kinds.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Transaction represents a single ledger entry. Entries are never updated.
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    float64         `json:"amount"`
	Category  string          `json:"category"`
	Date      string          `json:"date"`
	Type      TransactionType `json:"transaction_type"`
	CreatedAt time.Time       `json:"created_at"`
}

// Totals holds aggregated amounts for a date range.
type Totals struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Count    int     `json:"transactions"`
}
