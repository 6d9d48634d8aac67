package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// dialect captures the statements that differ between SQLite and MySQL.
// isConstraint matches foreign key and check violations.
type dialect struct {
	driver       string
	migrations   []string
	upsertRate   string
	isUnique     func(error) bool
	isConstraint func(error) bool
}

var sqliteDialect = dialect{
	driver: "sqlite",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE,
			password_hash TEXT NOT NULL,
			session_token TEXT UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			amount REAL NOT NULL CHECK (amount > 0),
			category TEXT NOT NULL,
			date TEXT NOT NULL,
			transaction_type TEXT NOT NULL CHECK (transaction_type IN ('income', 'expense')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, date)`,
		`CREATE TABLE IF NOT EXISTS exchange_rates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_currency TEXT NOT NULL,
			to_currency TEXT NOT NULL,
			date TEXT NOT NULL,
			rate REAL NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (from_currency, to_currency, date)
		)`,
	},
	upsertRate: `INSERT INTO exchange_rates (from_currency, to_currency, date, rate) VALUES (?, ?, ?, ?)
		ON CONFLICT (from_currency, to_currency, date) DO UPDATE SET rate = excluded.rate`,
	isUnique: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	isConstraint: func(err error) bool {
		msg := err.Error()
		return strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "CHECK constraint failed")
	},
}

var mysqlDialect = dialect{
	driver: "mysql",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(191) NOT NULL UNIQUE,
			email VARCHAR(191) NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			session_token VARCHAR(128) NULL UNIQUE,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			last_login DATETIME(6) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount DOUBLE NOT NULL,
			category VARCHAR(255) NOT NULL,
			date VARCHAR(10) NOT NULL,
			transaction_type VARCHAR(16) NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_transactions_user_date (user_id, date),
			CONSTRAINT fk_transactions_user FOREIGN KEY (user_id) REFERENCES users(id),
			CONSTRAINT chk_transactions_amount CHECK (amount > 0),
			CONSTRAINT chk_transactions_type CHECK (transaction_type IN ('income', 'expense'))
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_rates (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			from_currency VARCHAR(8) NOT NULL,
			to_currency VARCHAR(8) NOT NULL,
			date VARCHAR(10) NOT NULL,
			rate DOUBLE NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			UNIQUE KEY ux_exchange_rates_pair_date (from_currency, to_currency, date)
		)`,
	},
	upsertRate: `INSERT INTO exchange_rates (from_currency, to_currency, date, rate) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE rate = VALUES(rate)`,
	isUnique: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
	isConstraint: func(err error) bool {
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) {
			return false
		}
		// 1452: no parent row, 3819: check constraint violated
		return myErr.Number == 1452 || myErr.Number == 3819
	},
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return sqliteDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// conflictField names the unique column a constraint error refers to.
func conflictField(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "session_token"):
		return "session token"
	default:
		return "username"
	}
}
