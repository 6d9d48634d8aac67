package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance-assistant/internal/assistant"
	"finance-assistant/internal/auth"
	"finance-assistant/internal/config"
	"finance-assistant/internal/events"
	"finance-assistant/internal/finance"
	"finance-assistant/internal/handlers"
	"finance-assistant/internal/history"
	"finance-assistant/internal/llm"
	"finance-assistant/internal/rates"
	"finance-assistant/internal/storage"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrapAdmin(ctx, db, cfg); err != nil {
		return err
	}

	rateClient, err := rates.NewClient(rates.Config{
		Style:   cfg.RatesProvider,
		BaseURL: cfg.RatesBaseURL,
		APIKey:  cfg.RatesAPIKey,
		Timeout: cfg.RatesTimeout,
	}, db)
	if err != nil {
		return err
	}

	var serviceOpts []finance.Option
	if cfg.AMQPURL != "" {
		serviceOpts = append(serviceOpts, finance.WithNotifier(events.NewPublisher(cfg.AMQPURL)))
		log.Printf("Publishing transaction events to queue %s", events.TransactionLoggedQueue)
	}
	service := finance.NewService(db, rateClient, serviceOpts...)

	store, err := newHistoryStore(cfg)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return err
	}

	temperature, topP := float32(cfg.LLMTemperature), float32(cfg.LLMTopP)
	dispatcher := assistant.NewDispatcher(chatModel, service, store, assistant.Config{
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   cfg.LLMMaxTokens,
	})

	gate := auth.NewGate(db, auth.Options{
		Window:     cfg.SessionWindow,
		BcryptCost: cfg.BcryptCost,
	})

	h := handlers.NewHandlers(gate, dispatcher, db, cfg.TemplateDir, cfg.SecureCookie, cfg.SessionWindow)
	e := setupRouter(h, cfg.StaticDir)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Printf("Server starting on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func setupRouter(h *handlers.Handlers, staticDir string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Logger())

	e.Static("/static", staticDir)
	e.GET("/", h.Index)
	e.GET("/healthz", handlers.Health)

	e.POST("/api/login", h.Login)
	e.POST("/api/register", h.Register)
	e.POST("/api/logout", h.Logout)

	api := e.Group("/api", h.AuthMiddleware)
	api.POST("/chat", h.Chat)
	api.GET("/transactions", h.Transactions)

	return e
}

func openDB(cfg *config.Config) (*storage.DB, error) {
	dsn := cfg.DBPath
	if cfg.DBDriver == "mysql" {
		dsn = storage.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	return storage.Open(storage.Config{
		Driver:         cfg.DBDriver,
		DSN:            dsn,
		MaxOpenConns:   cfg.DBMaxOpenConns,
		AcquireTimeout: cfg.DBAcquireTimeout,
	})
}

// bootstrapAdmin creates the configured admin account on an empty database.
func bootstrapAdmin(ctx context.Context, db *storage.DB, cfg *config.Config) error {
	if cfg.AdminUser == "" {
		return nil
	}
	count, err := db.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPasswordCost(cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := db.CreateUser(ctx, cfg.AdminUser, "", hash); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("Created admin user %s", cfg.AdminUser)
	return nil
}

func newHistoryStore(cfg *config.Config) (history.Store, error) {
	opts := []history.StoreOption{history.WithCapacity(cfg.HistoryCapacity)}
	if history.StoreType(cfg.HistoryStore) == history.StoreTypeRedis {
		opts = append(opts,
			history.WithRedisClient(redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})),
			history.WithRedisTTL(cfg.HistoryTTL),
		)
	}
	return history.NewStore(history.StoreType(cfg.HistoryStore), opts...)
}

// newChatModel builds the configured model. Without an API key the server
// still starts, and every chat turn gets the apology reply.
func newChatModel(ctx context.Context, cfg *config.Config) (assistant.Model, error) {
	m, err := llm.New(ctx, llm.Config{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.LLMBaseURL,
		MaxTokens: cfg.LLMMaxTokens,
	}, assistant.Tools())
	if errors.Is(err, llm.ErrMissingAPIKey) {
		log.Printf("Warning: %v; chat replies will fail", err)
		return unconfiguredModel{}, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type unconfiguredModel struct{}

func (unconfiguredModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, llm.ErrMissingAPIKey
}
