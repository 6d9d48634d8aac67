package storage

import (
	"context"
	"database/sql"
	"errors"
)

// GetCachedRate returns the stored rate for a currency pair on date.
func (db *DB) GetCachedRate(ctx context.Context, from, to, date string) (float64, error) {
	conn, err := db.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var rate float64
	err = conn.QueryRowContext(ctx,
		"SELECT rate FROM exchange_rates WHERE from_currency = ? AND to_currency = ? AND date = ?",
		from, to, date,
	).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fault("get rate", err)
	}
	return rate, nil
}

// SaveRate stores or replaces the rate for a currency pair on date.
func (db *DB) SaveRate(ctx context.Context, from, to, date string, rate float64) error {
	conn, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, db.dialect.upsertRate, from, to, date, rate); err != nil {
		return fault("save rate", err)
	}
	return nil
}
