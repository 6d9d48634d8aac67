// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.
type Config struct {
	Port string

	DBDriver         string
	DBPath           string
	DBUser           string
	DBPass           string
	DBHost           string
	DBPort           string
	DBName           string
	DBMaxOpenConns   int
	DBAcquireTimeout time.Duration

	SessionWindow time.Duration
	BcryptCost    int
	SecureCookie  bool

	LLMProvider    string
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMTemperature float64
	LLMTopP        float64
	LLMMaxTokens   int

	RatesProvider string
	RatesBaseURL  string
	RatesAPIKey   string
	RatesTimeout  time.Duration

	HistoryStore    string
	HistoryCapacity int
	HistoryTTL      time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	AMQPURL string

	TemplateDir string
	StaticDir   string

	AdminUser     string
	AdminPassword string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Port: "8080",

		DBDriver:         "sqlite",
		DBPath:           "finance.db",
		DBHost:           "localhost",
		DBPort:           "3306",
		DBName:           "finance",
		DBMaxOpenConns:   10,
		DBAcquireTimeout: 5 * time.Second,

		SessionWindow: 24 * time.Hour,
		BcryptCost:    10,

		LLMProvider:    "openai",
		LLMTemperature: 0.7,
		LLMTopP:        0.8,
		LLMMaxTokens:   1024,

		RatesProvider: "convert",
		RatesBaseURL:  "https://api.exchangerate.host",
		RatesTimeout:  10 * time.Second,

		HistoryStore:    "memory",
		HistoryCapacity: 5,
		HistoryTTL:      24 * time.Hour,
		RedisAddr:       "localhost:6379",

		TemplateDir: "web/templates",
		StaticDir:   "web/static",
	}
}

// Load reads .env (if present) and the environment over the defaults,
// then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	c.Port = envStr("PORT", c.Port)

	c.DBDriver = strings.ToLower(envStr("DB_DRIVER", c.DBDriver))
	c.DBPath = envStr("DB_PATH", c.DBPath)
	c.DBUser = envStr("DB_USER", c.DBUser)
	c.DBPass = envStr("DB_PASS", c.DBPass)
	c.DBHost = envStr("DB_HOST", c.DBHost)
	c.DBPort = envStr("DB_PORT", c.DBPort)
	c.DBName = envStr("DB_NAME", c.DBName)
	c.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", c.DBMaxOpenConns)
	c.DBAcquireTimeout = envDur("DB_ACQUIRE_TIMEOUT", c.DBAcquireTimeout)

	c.SessionWindow = envDur("SESSION_WINDOW", c.SessionWindow)
	c.BcryptCost = envInt("BCRYPT_COST", c.BcryptCost)
	c.SecureCookie = envBool("SECURE_COOKIE", c.SecureCookie)

	c.LLMProvider = strings.ToLower(envStr("LLM_PROVIDER", c.LLMProvider))
	c.LLMAPIKey = envStr("LLM_API_KEY", c.LLMAPIKey)
	if c.LLMAPIKey == "" {
		switch c.LLMProvider {
		case "deepseek":
			c.LLMAPIKey = os.Getenv("DEEPSEEK_API_KEY")
		default:
			c.LLMAPIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	c.LLMModel = envStr("LLM_MODEL", c.LLMModel)
	c.LLMBaseURL = envStr("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMTemperature = envFloat("LLM_TEMPERATURE", c.LLMTemperature)
	c.LLMTopP = envFloat("LLM_TOP_P", c.LLMTopP)
	c.LLMMaxTokens = envInt("LLM_MAX_TOKENS", c.LLMMaxTokens)

	c.RatesProvider = strings.ToLower(envStr("RATES_PROVIDER", c.RatesProvider))
	c.RatesBaseURL = envStr("RATES_BASE_URL", c.RatesBaseURL)
	c.RatesAPIKey = envStr("RATES_API_KEY", c.RatesAPIKey)
	c.RatesTimeout = envDur("RATES_TIMEOUT", c.RatesTimeout)

	c.HistoryStore = strings.ToLower(envStr("HISTORY_STORE", c.HistoryStore))
	c.HistoryCapacity = envInt("HISTORY_CAPACITY", c.HistoryCapacity)
	c.HistoryTTL = envDur("HISTORY_TTL", c.HistoryTTL)
	c.RedisAddr = envStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envStr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("REDIS_DB", c.RedisDB)

	c.AMQPURL = envStr("RABBITMQ_URL", envStr("AMQP_URL", c.AMQPURL))

	c.TemplateDir = envStr("TEMPLATE_DIR", c.TemplateDir)
	c.StaticDir = envStr("STATIC_DIR", c.StaticDir)

	c.AdminUser = envStr("ADMIN_USER", c.AdminUser)
	c.AdminPassword = envStr("ADMIN_PASSWORD", c.AdminPassword)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "mysql":
		if c.DBUser == "" || c.DBHost == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_USER, DB_HOST and DB_NAME are required for mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", c.DBDriver))
	}
	if c.DBMaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be at least 1"))
	}
	if c.DBAcquireTimeout <= 0 {
		errs = append(errs, errors.New("DB_ACQUIRE_TIMEOUT must be positive"))
	}
	if c.SessionWindow <= 0 {
		errs = append(errs, errors.New("SESSION_WINDOW must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.LLMProvider != "openai" && c.LLMProvider != "deepseek" {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be openai or deepseek, got %q", c.LLMProvider))
	}
	if c.RatesProvider != "convert" && c.RatesProvider != "fetch-one" {
		errs = append(errs, fmt.Errorf("RATES_PROVIDER must be convert or fetch-one, got %q", c.RatesProvider))
	}
	if c.HistoryStore != "memory" && c.HistoryStore != "redis" {
		errs = append(errs, fmt.Errorf("HISTORY_STORE must be memory or redis, got %q", c.HistoryStore))
	}
	if c.HistoryCapacity < 1 {
		errs = append(errs, errors.New("HISTORY_CAPACITY must be at least 1"))
	}
	if (c.AdminUser == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_USER and ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
