package handlers

import (
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"finance-assistant/internal/auth"
	"finance-assistant/internal/models"
	"finance-assistant/internal/storage"

	"github.com/labstack/echo/v4"
)

const (
	// UserContextKey is the echo context key for the authenticated user.
	UserContextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"

	requestTimeout = 5 * time.Second
)

// Gate resolves and issues session tokens.
type Gate interface {
	Register(ctx context.Context, username, email, password string) (*models.User, string, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, string, error)
	Resolve(ctx context.Context, token string) (*models.User, error)
	Logout(ctx context.Context, token string) error
}

// Assistant answers chat messages.
type Assistant interface {
	Reply(ctx context.Context, userID int64, message string) string
}

// Ledger is the read side of the transaction store.
type Ledger interface {
	ListTransactions(ctx context.Context, userID int64, start, end string) ([]models.Transaction, error)
	SummarizeRange(ctx context.Context, userID int64, start, end string) (models.Totals, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	gate          Gate
	assistant     Assistant
	ledger        Ledger
	templateDir   string
	secureCookie  bool
	sessionWindow time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(gate Gate, assistant Assistant, ledger Ledger, templateDir string, secureCookie bool, sessionWindow time.Duration) *Handlers {
	if sessionWindow <= 0 {
		sessionWindow = auth.DefaultSessionWindow
	}
	return &Handlers{
		gate:          gate,
		assistant:     assistant,
		ledger:        ledger,
		templateDir:   templateDir,
		secureCookie:  secureCookie,
		sessionWindow: sessionWindow,
	}
}

// GetUserFromContext retrieves the authenticated user from the echo context.
func GetUserFromContext(c echo.Context) *models.User {
	if user, ok := c.Get(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// sessionToken reads a bearer token, falling back to the session cookie.
func sessionToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthMiddleware rejects requests without a live session and stores the
// session's user in the context. It never extends the session.
func (h *Handlers) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := sessionToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
		defer cancel()

		user, err := h.gate.Resolve(ctx, token)
		switch {
		case errors.Is(err, auth.ErrSessionExpired):
			h.clearSessionCookie(c)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
		case errors.Is(err, auth.ErrInvalidSession):
			h.clearSessionCookie(c)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
		case err != nil:
			log.Printf("Resolve session error: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
		}

		c.Set(UserContextKey, user)
		return next(c)
	}
}

type credentialsReq struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type sessionResp struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"session_token,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Login checks credentials and issues a new session token.
func (h *Handlers) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, sessionResp{Error: "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	_, token, err := h.gate.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return c.JSON(http.StatusUnauthorized, sessionResp{Error: "invalid username or password"})
	}
	if err != nil {
		log.Printf("Login error: %v", err)
		return c.JSON(http.StatusInternalServerError, sessionResp{Error: "an error occurred, please try again"})
	}

	h.setSessionCookie(c, token)
	return c.JSON(http.StatusOK, sessionResp{Success: true, SessionToken: token})
}

// Register creates an account and logs it in.
func (h *Handlers) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, sessionResp{Error: "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	_, token, err := h.gate.Register(ctx, req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, sessionResp{Error: "username and password are required"})
	case errors.Is(err, storage.ErrConflict):
		return c.JSON(http.StatusBadRequest, sessionResp{Error: strings.TrimPrefix(err.Error(), storage.ErrConflict.Error()+": ")})
	case err != nil:
		log.Printf("Register error: %v", err)
		return c.JSON(http.StatusInternalServerError, sessionResp{Error: "an error occurred, please try again"})
	}

	h.setSessionCookie(c, token)
	return c.JSON(http.StatusOK, sessionResp{Success: true, SessionToken: token})
}

// Logout invalidates the presented session.
func (h *Handlers) Logout(c echo.Context) error {
	if token := sessionToken(c); token != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
		defer cancel()
		if err := h.gate.Logout(ctx, token); err != nil {
			log.Printf("Failed to clear session: %v", err)
		}
	}
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Index renders the chat page.
func (h *Handlers) Index(c echo.Context) error {
	return h.render(c, "index.html", nil)
}

// Health reports that the server is up.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionWindow.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) render(c echo.Context, viewName string, data any) error {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		log.Printf("Template error: %v", err)
		return c.String(http.StatusInternalServerError, "Template error")
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if err := tmpl.ExecuteTemplate(c.Response(), "base.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
	return nil
}
