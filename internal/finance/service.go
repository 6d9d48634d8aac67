// Package finance implements the four operations the assistant can invoke.
// Every operation takes an untyped argument set and returns a Result
// envelope; no error or panic escapes an operation.
package finance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"finance-assistant/internal/models"
	"finance-assistant/internal/rates"
	"finance-assistant/internal/storage"
)

// Operation names as exposed to the language model.
const (
	OpLogExpense      = "log_expense"
	OpLogIncome       = "log_income"
	OpMonthlySummary  = "get_monthly_summary"
	OpGetExchangeRate = "get_exchange_rate"
)

// Ledger is the part of the store the operations write to and read from.
type Ledger interface {
	CreateTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error)
	SummarizeRange(ctx context.Context, userID int64, start, end string) (models.Totals, error)
}

// RateSource looks up exchange rates.
type RateSource interface {
	Rate(ctx context.Context, from, to, date string) (rates.Quote, error)
}

// Notifier is told about every transaction that was stored.
type Notifier interface {
	TransactionLogged(ctx context.Context, t models.Transaction) error
}

// Summary is the payload of a monthly summary.
type Summary struct {
	Income       float64 `json:"income"`
	Expenses     float64 `json:"expenses"`
	Balance      float64 `json:"balance"`
	Transactions int     `json:"transactions"`
}

// Result is the envelope every operation returns.
type Result struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Summary *Summary     `json:"summary,omitempty"`
	Rate    *rates.Quote `json:"rate,omitempty"`
	Error   string       `json:"error,omitempty"`

	// Err is the underlying failure, for callers that branch on its kind.
	Err error `json:"-"`
}

func failure(err error) Result {
	msg := err.Error()
	switch {
	case errors.Is(err, ErrValidation):
	case errors.Is(err, rates.ErrUnavailable):
		msg = rates.ErrUnavailable.Error()
	case errors.Is(err, storage.ErrConstraint):
		msg = "the ledger rejected this entry"
	case errors.Is(err, storage.ErrStorage):
		msg = "the ledger is temporarily unavailable, please try again"
	default:
		msg = "an unexpected error occurred"
	}
	return Result{Success: false, Error: msg, Err: err}
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes stored transactions through n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source used for date defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs financial operations against the ledger.
type Service struct {
	ledger   Ledger
	rates    RateSource
	notifier Notifier
	now      func() time.Time
}

// NewService creates a Service. rates may be nil, in which case exchange
// rate lookups fail as unavailable.
func NewService(ledger Ledger, rateSource RateSource, opts ...Option) *Service {
	s := &Service{ledger: ledger, rates: rateSource, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) guard(op string, res *Result) {
	if r := recover(); r != nil {
		log.Printf("finance: %s panicked: %v", op, r)
		*res = failure(fmt.Errorf("%s: panic: %v", op, r))
	}
}

// LogExpense records an expense. Args: amount, category, date?, user_id.
func (s *Service) LogExpense(ctx context.Context, args Args) (res Result) {
	defer s.guard(OpLogExpense, &res)
	return s.logTransaction(ctx, models.Expense, args, []string{"category"})
}

// LogIncome records income. Args: amount, source (or category), date?, user_id.
func (s *Service) LogIncome(ctx context.Context, args Args) (res Result) {
	defer s.guard(OpLogIncome, &res)
	return s.logTransaction(ctx, models.Income, args, []string{"source", "category"})
}

func (s *Service) logTransaction(ctx context.Context, typ models.TransactionType, args Args, labelKeys []string) Result {
	p, err := parseTransaction(args, labelKeys, s.now())
	if err != nil {
		return failure(err)
	}

	tx, err := s.ledger.CreateTransaction(ctx, models.Transaction{
		UserID:   p.UserID,
		Amount:   p.Amount.InexactFloat64(),
		Category: p.Category,
		Date:     p.Date,
		Type:     typ,
	})
	if err != nil {
		log.Printf("finance: store %s for user %d: %v", typ, p.UserID, err)
		return failure(err)
	}

	if s.notifier != nil {
		if err := s.notifier.TransactionLogged(ctx, *tx); err != nil {
			log.Printf("finance: notify transaction %d: %v", tx.ID, err)
		}
	}

	label := "Expense"
	preposition := "for"
	if typ == models.Income {
		label = "Income"
		preposition = "from"
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("%s of $%s %s %s on %s has been recorded.",
			label, p.Amount.StringFixed(2), preposition, p.Category, p.Date),
	}
}

// MonthlySummary totals a month. Args: month?, year?, user_id.
func (s *Service) MonthlySummary(ctx context.Context, args Args) (res Result) {
	defer s.guard(OpMonthlySummary, &res)

	p, err := parseSummary(args, s.now())
	if err != nil {
		return failure(err)
	}

	start, end := MonthBounds(p.Year, p.Month)
	totals, err := s.ledger.SummarizeRange(ctx, p.UserID, start, end)
	if err != nil {
		log.Printf("finance: summarize %s..%s for user %d: %v", start, end, p.UserID, err)
		return failure(err)
	}

	return Result{
		Success: true,
		Summary: &Summary{
			Income:       totals.Income,
			Expenses:     totals.Expenses,
			Balance:      totals.Income - totals.Expenses,
			Transactions: totals.Count,
		},
	}
}

// ExchangeRate looks up a rate. Args: user_id, from_currency, to_currency, date?.
func (s *Service) ExchangeRate(ctx context.Context, args Args) (res Result) {
	defer s.guard(OpGetExchangeRate, &res)

	p, err := parseRate(args)
	if err != nil {
		return failure(err)
	}
	if s.rates == nil {
		return failure(rates.ErrUnavailable)
	}

	q, err := s.rates.Rate(ctx, p.From, p.To, p.Date)
	if err != nil {
		log.Printf("finance: rate %s/%s: %v", p.From, p.To, err)
		return failure(err)
	}
	return Result{Success: true, Rate: &q}
}
