package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finance-assistant/internal/models"
)

const userColumns = "id, username, email, password_hash, session_token, created_at, last_login"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		email     sql.NullString
		token     sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &token, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.SessionToken = token.String
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (db *DB) insertErr(err error) error {
	if db.dialect.isUnique(err) {
		return fmt.Errorf("%w: %s already taken", ErrConflict, conflictField(err))
	}
	return fault("insert user", err)
}

// CreateUser creates a new user with the given credentials. Email may be empty.
func (db *DB) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	conn, err := db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	result, err := conn.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		username, nullable(email), passwordHash, time.Now().UTC(),
	)
	if err != nil {
		return nil, db.insertErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fault("insert user", err)
	}

	return getUser(ctx, conn, "id = ?", id)
}

// CreateUserWithSession creates a user that is already logged in, holding token
// as its session and loginAt as its last login. Both writes share one transaction.
func (db *DB) CreateUserWithSession(ctx context.Context, username, email, passwordHash, token string, loginAt time.Time) (*models.User, error) {
	var user *models.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
			username, nullable(email), passwordHash, loginAt.UTC(),
		)
		if err != nil {
			return db.insertErr(err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fault("insert user", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET session_token = ?, last_login = ? WHERE id = ?",
			token, loginAt.UTC(), id,
		); err != nil {
			return db.insertErr(err)
		}
		user, err = getUser(ctx, tx, "id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	conn, err := db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return getUser(ctx, conn, "username = ?", username)
}

// GetUserBySessionToken retrieves the user currently holding token.
func (db *DB) GetUserBySessionToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	conn, err := db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return getUser(ctx, conn, "session_token = ?", token)
}

// RotateSessionToken replaces the user's session token and records the login time.
func (db *DB) RotateSessionToken(ctx context.Context, userID int64, token string, loginAt time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE users SET session_token = ?, last_login = ? WHERE id = ?",
			token, loginAt.UTC(), userID,
		)
		if err != nil {
			if db.dialect.isUnique(err) {
				return fmt.Errorf("%w: session token already taken", ErrConflict)
			}
			return fault("rotate session", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fault("rotate session", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ClearSessionToken drops the session token, logging the holder out.
func (db *DB) ClearSessionToken(ctx context.Context, token string) error {
	conn, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx,
		"UPDATE users SET session_token = NULL WHERE session_token = ?", token,
	); err != nil {
		return fault("clear session", err)
	}
	return nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	conn, err := db.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fault("count users", err)
	}
	return count, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q queryer, where string, arg any) (*models.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fault("get user", err)
	}
	return u, nil
}
