package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Import database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns   = 10
	defaultAcquireTimeout = 5 * time.Second
)

// Config describes how to reach the ledger database.
type Config struct {
	Driver string // "sqlite" (default) or "mysql"
	DSN    string // file path for sqlite, DSN for mysql

	MaxOpenConns   int
	AcquireTimeout time.Duration
}

// DB wraps a sql.DB connection pool.
type DB struct {
	conn           *sql.DB
	dialect        dialect
	acquireTimeout time.Duration
}

// NewDB opens a SQLite database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	return Open(Config{Driver: "sqlite", DSN: path})
}

// Open opens a database connection pool and runs migrations.
func Open(cfg Config) (*DB, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	if d.driver == "sqlite" {
		// Every connection to :memory: is a separate database.
		if dsn == ":memory:" {
			maxOpen = 1
		}
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxOpen)
	conn.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = defaultAcquireTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, dialect: d, acquireTimeout: timeout}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// MySQLDSN builds a go-sql-driver DSN from its parts.
func MySQLDSN(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)
}

func (db *DB) migrate(ctx context.Context) error {
	for _, m := range db.dialect.migrations {
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// acquire reserves a pooled connection, failing with ErrPoolExhausted
// when none frees up within the acquire timeout.
func (db *DB) acquire(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, db.acquireTimeout)
	defer cancel()

	conn, err := db.conn.Conn(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrPoolExhausted
		}
		return nil, fault("acquire connection", err)
	}
	return conn, nil
}

// withTx runs fn inside a database transaction on a single pooled connection.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fault("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fault("commit", err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
