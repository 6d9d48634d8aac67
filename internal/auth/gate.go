package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"finance-assistant/internal/models"
	"finance-assistant/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionWindow is how long a session stays valid after the last login.
const DefaultSessionWindow = 24 * time.Hour

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// UserStore is the subset of the ledger the gate needs.
type UserStore interface {
	CreateUserWithSession(ctx context.Context, username, email, passwordHash, token string, loginAt time.Time) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserBySessionToken(ctx context.Context, token string) (*models.User, error)
	RotateSessionToken(ctx context.Context, userID int64, token string, loginAt time.Time) error
	ClearSessionToken(ctx context.Context, token string) error
}

// Options tune a Gate. Zero values select defaults.
type Options struct {
	Window     time.Duration
	BcryptCost int
	Now        func() time.Time
}

// Gate issues and resolves session tokens.
type Gate struct {
	users  UserStore
	window time.Duration
	cost   int
	now    func() time.Time
}

// NewGate creates a Gate backed by users.
func NewGate(users UserStore, opts Options) *Gate {
	g := &Gate{users: users, window: opts.Window, cost: opts.BcryptCost, now: opts.Now}
	if g.window <= 0 {
		g.window = DefaultSessionWindow
	}
	if g.cost == 0 {
		g.cost = bcrypt.DefaultCost
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Register creates a user and logs them in. A taken username or email
// yields storage.ErrConflict.
func (g *Gate) Register(ctx context.Context, username, email, password string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" {
		return nil, "", fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	hash, err := HashPasswordCost(password, g.cost)
	if err != nil {
		return nil, "", err
	}
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}

	user, err := g.users.CreateUserWithSession(ctx, username, email, hash, token, g.now().UTC())
	if err != nil {
		return nil, "", err
	}
	log.Printf("auth: registered user %q (id %d)", user.Username, user.ID)
	return user, token, nil
}

// Authenticate checks the password and issues a fresh session token,
// replacing any previous one.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	user, err := g.users.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}
	loginAt := g.now().UTC()
	if err := g.users.RotateSessionToken(ctx, user.ID, token, loginAt); err != nil {
		return nil, "", err
	}
	user.SessionToken = token
	user.LastLogin = &loginAt
	return user, token, nil
}

// Resolve maps a session token to its user. It does not extend the session;
// only Authenticate does.
func (g *Gate) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	user, err := g.users.GetUserBySessionToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if user.LastLogin == nil || g.now().Sub(*user.LastLogin) > g.window {
		return nil, ErrSessionExpired
	}
	return user, nil
}

// Logout invalidates token.
func (g *Gate) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return g.users.ClearSessionToken(ctx, token)
}
