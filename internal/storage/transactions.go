package storage

import (
	"context"
	"fmt"
	"time"

	"finance-assistant/internal/models"
)

// CreateTransaction appends an entry to the ledger and returns it with its
// assigned id and creation time.
func (db *DB) CreateTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error) {
	if !t.Type.Valid() {
		return nil, fmt.Errorf("invalid transaction type %q", t.Type)
	}

	conn, err := db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	t.CreatedAt = time.Now().UTC()
	result, err := conn.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, category, date, transaction_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Amount, t.Category, t.Date, string(t.Type), t.CreatedAt,
	)
	if err != nil {
		if db.dialect.isConstraint(err) {
			return nil, rejected("insert transaction", err)
		}
		return nil, fault("insert transaction", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fault("insert transaction", err)
	}
	t.ID = id
	return &t, nil
}

// ListTransactions returns the user's entries dated within [start, end),
// newest first. Dates are YYYY-MM-DD so lexical comparison is chronological.
func (db *DB) ListTransactions(ctx context.Context, userID int64, start, end string) ([]models.Transaction, error) {
	conn, err := db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx,
		`SELECT id, user_id, amount, category, date, transaction_type, created_at
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?
		ORDER BY date DESC, id DESC`,
		userID, start, end,
	)
	if err != nil {
		return nil, fault("list transactions", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			t   models.Transaction
			typ string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Category, &t.Date, &typ, &t.CreatedAt); err != nil {
			return nil, fault("list transactions", err)
		}
		t.Type = models.TransactionType(typ)
		t.CreatedAt = t.CreatedAt.UTC()
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list transactions", err)
	}
	return txs, nil
}

// SummarizeRange totals the user's income and expenses dated within [start, end).
func (db *DB) SummarizeRange(ctx context.Context, userID int64, start, end string) (models.Totals, error) {
	conn, err := db.acquire(ctx)
	if err != nil {
		return models.Totals{}, err
	}
	defer conn.Close()

	var totals models.Totals
	err = conn.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN transaction_type = 'income' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'expense' THEN amount ELSE 0 END), 0),
			COUNT(*)
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, start, end,
	).Scan(&totals.Income, &totals.Expenses, &totals.Count)
	if err != nil {
		return models.Totals{}, fault("summarize transactions", err)
	}
	return totals, nil
}
