package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"careline-agent/internal/domain"
)

var (
	ErrInvalidStoreType = errors.New("repository: invalid store type")
	ErrInvalidConfig    = errors.New("repository: invalid store configuration")
)

// Store persists one ConversationContext per identity.
//
// Callers are expected to hold the per-identity turn lock around any
// Get/Apply sequence; the store itself only guarantees that a single Apply
// is atomic at the field level.
type Store interface {
	// Get returns the context for identity, or a fresh INITIAL default when
	// no record exists yet.
	Get(ctx context.Context, identity string) (*domain.ConversationContext, error)
	// Apply upserts the record with the given field-level patch and returns
	// the updated context.
	Apply(ctx context.Context, identity string, patch domain.ContextPatch) (*domain.ConversationContext, error)
	// ListIdle returns identities whose state is in states and whose
	// UpdatedAt is older than cutoff. Used by the follow-up scheduler.
	ListIdle(ctx context.Context, states []domain.State, cutoff time.Time) ([]string, error)
	// Delete removes the record entirely (explicit reset command).
	Delete(ctx context.Context, identity string) error
	Close() error
}

// StoreType selects a Store driver.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDynamoDB StoreType = "dynamodb"
)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	dynamoAPI   dynamodbAPI
	tableName   string
}

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

// WithRedisClient supplies the client for the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithRedisTTL overrides the redis record TTL (default 30 days).
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.redisTTL = ttl }
}

// WithDynamoDB supplies the DynamoDB API and table for the dynamodb driver.
func WithDynamoDB(api dynamodbAPI, tableName string) StoreOption {
	return func(c *storeConfig) {
		c.dynamoAPI = api
		c.tableName = tableName
	}
}

// NewStore creates a Store for the given driver type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := cfg.redisTTL
		if ttl <= 0 {
			ttl = 30 * 24 * time.Hour
		}
		return &redisStore{client: cfg.redisClient, ttl: ttl}, nil

	case StoreTypeDynamoDB:
		if cfg.dynamoAPI == nil || cfg.tableName == "" {
			return nil, ErrInvalidConfig
		}
		return newDynamoStore(cfg.dynamoAPI, cfg.tableName)

	default:
		return nil, ErrInvalidStoreType
	}
}

// applyPatch mutates c in place according to patch. Shared by drivers that
// read-modify-write a full record under the caller's identity lock.
func applyPatch(c *domain.ConversationContext, patch domain.ContextPatch, now time.Time) {
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	if patch.State != nil {
		c.State = *patch.State
	}
	if patch.LastUserText != nil {
		c.LastUserText = *patch.LastUserText
	}
	if patch.LastBotText != nil {
		c.LastBotText = *patch.LastBotText
	}
	for k, v := range patch.MetaSet {
		c.Meta[k] = v
	}
	for k, v := range patch.MetaSetIfAbsent {
		if _, exists := c.Meta[k]; !exists {
			c.Meta[k] = v
		}
	}
	for _, k := range patch.MetaClear {
		delete(c.Meta, k)
	}
	if patch.BumpInteraction {
		c.InteractionCount++
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

func stateIn(s domain.State, states []domain.State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
