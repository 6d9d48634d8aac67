package finance

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"finance-assistant/internal/models"

	"github.com/shopspring/decimal"
)

// ErrValidation marks arguments that can never succeed as given.
var ErrValidation = errors.New("invalid argument")

// Args is the untyped argument set an operation receives from the dispatcher.
type Args map[string]any

// TransactionParams are the validated arguments of log_expense and log_income.
type TransactionParams struct {
	UserID   int64
	Amount   decimal.Decimal
	Category string
	Date     string
}

// SummaryParams are the validated arguments of get_monthly_summary.
type SummaryParams struct {
	UserID int64
	Month  int
	Year   int
}

// RateParams are the validated arguments of get_exchange_rate.
type RateParams struct {
	UserID int64
	From   string
	To     string
	Date   string
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

func parseTransaction(args Args, labelKeys []string, now time.Time) (TransactionParams, error) {
	var (
		p   TransactionParams
		err error
	)
	if p.UserID, err = userID(args); err != nil {
		return p, err
	}
	if p.Amount, err = amount(args["amount"]); err != nil {
		return p, err
	}
	for _, key := range labelKeys {
		if s, ok := args[key].(string); ok && strings.TrimSpace(s) != "" {
			p.Category = strings.TrimSpace(s)
			break
		}
	}
	if p.Category == "" {
		return p, invalid("%s is required", labelKeys[0])
	}
	if p.Date, err = date(args["date"], now); err != nil {
		return p, err
	}
	return p, nil
}

func parseSummary(args Args, now time.Time) (SummaryParams, error) {
	var (
		p   SummaryParams
		err error
	)
	if p.UserID, err = userID(args); err != nil {
		return p, err
	}

	p.Month = int(now.Month())
	if v, ok := args["month"]; ok && v != nil {
		if p.Month, err = integer("month", v); err != nil {
			return p, err
		}
	}
	if p.Month < 1 || p.Month > 12 {
		return p, invalid("month must be between 1 and 12")
	}

	p.Year = now.Year()
	if v, ok := args["year"]; ok && v != nil {
		if p.Year, err = integer("year", v); err != nil {
			return p, err
		}
	}
	if p.Year < 1900 || p.Year > 2100 {
		return p, invalid("year must be between 1900 and 2100")
	}
	return p, nil
}

func parseRate(args Args) (RateParams, error) {
	var (
		p   RateParams
		err error
	)
	if p.UserID, err = userID(args); err != nil {
		return p, err
	}
	from, _ := args["from_currency"].(string)
	to, _ := args["to_currency"].(string)
	p.From = strings.ToUpper(strings.TrimSpace(from))
	p.To = strings.ToUpper(strings.TrimSpace(to))
	if p.From == "" || p.To == "" {
		return p, invalid("from_currency and to_currency are required")
	}

	// An empty date lets the provider pick today.
	switch v := args["date"].(type) {
	case nil:
	case string:
		if v = strings.TrimSpace(v); v != "" {
			if _, err := time.Parse(models.DateLayout, v); err != nil {
				return p, invalid("date must be in YYYY-MM-DD format")
			}
			p.Date = v
		}
	default:
		return p, invalid("date must be in YYYY-MM-DD format")
	}
	return p, nil
}

func userID(args Args) (int64, error) {
	v, ok := args["user_id"]
	if !ok || v == nil {
		return 0, invalid("user_id is required")
	}
	id, err := integer("user_id", v)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, invalid("user_id must be positive")
	}
	return int64(id), nil
}

func amount(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case nil:
		return d, invalid("amount is required")
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return d, invalid("amount must be a number")
		}
		d = decimal.NewFromFloat(n)
	case float32:
		return amount(float64(n))
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(n))
	default:
		return d, invalid("amount must be a number")
	}
	if err != nil {
		return d, invalid("amount must be a number")
	}
	if !d.IsPositive() {
		return d, invalid("amount must be greater than zero")
	}
	return d, nil
}

func date(v any, now time.Time) (string, error) {
	switch s := v.(type) {
	case nil:
		return now.Format(models.DateLayout), nil
	case string:
		s = strings.TrimSpace(s)
		if s == "" {
			return now.Format(models.DateLayout), nil
		}
		if _, err := time.Parse(models.DateLayout, s); err != nil {
			return "", invalid("date must be in YYYY-MM-DD format")
		}
		return s, nil
	default:
		return "", invalid("date must be in YYYY-MM-DD format")
	}
}

func integer(name string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, invalid("%s must be a whole number", name)
		}
		return int(n), nil
	case json.Number:
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return 0, invalid("%s must be a whole number", name)
		}
		return i, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, invalid("%s must be a whole number", name)
		}
		return i, nil
	default:
		return 0, invalid("%s must be a whole number", name)
	}
}

// MonthBounds returns the half-open date interval [start, end) covering
// the given month. December rolls over to January of the next year.
func MonthBounds(year, month int) (start, end string) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return first.Format(models.DateLayout), first.AddDate(0, 1, 0).Format(models.DateLayout)
}
