// Package history keeps a short sliding window of conversation turns per user.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCapacity is how many turns a window holds before the oldest is evicted.
const DefaultCapacity = 5

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

var (
	// ErrInvalidStoreType is returned for an unknown store type.
	ErrInvalidStoreType = errors.New("invalid history store type")
	// ErrInvalidConfig is returned when a driver is missing a required option.
	ErrInvalidConfig = errors.New("invalid history store config")
)

// Store holds one bounded window of turns per user.
type Store interface {
	// Append adds a turn, evicting the oldest turns beyond capacity.
	Append(ctx context.Context, userID int64, turn Turn) error

	// Recent returns the user's window, oldest first. An unknown user has
	// an empty window.
	Recent(ctx context.Context, userID int64) ([]Turn, error)

	// Clear drops the user's window.
	Clear(ctx context.Context, userID int64) error

	// Close releases any resources.
	Close() error
}

// StoreType represents the type of history store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption is a functional option for configuring a history store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	capacity    int
	redisClient *redis.Client
	redisTTL    time.Duration
}

// WithCapacity sets how many turns each window keeps.
func WithCapacity(n int) StoreOption {
	return func(c *storeConfig) {
		c.capacity = n
	}
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets how long an idle window survives in Redis.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// NewStore creates a Store of the given type.
// For Redis, requires WithRedisClient option.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}
	if config.capacity <= 0 {
		config.capacity = DefaultCapacity
	}

	switch storeType {
	case StoreTypeMemory, "":
		return newMemoryStore(config.capacity), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := config.redisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &redisStore{
			client:   config.redisClient,
			capacity: config.capacity,
			ttl:      ttl,
		}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}
