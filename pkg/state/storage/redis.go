package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/securecheckio/rules-engine/pkg/state"
)

// RedisConfig contains configuration for the Redis state store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr" json:"addr"`

	// Password authenticates to the server when non-empty.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB selects the logical database. Default: 0.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// KeyPrefix namespaces state keys. Default: "securecheck:state:".
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig(addr string) *RedisConfig {
	return &RedisConfig{
		Addr:      addr,
		KeyPrefix: "securecheck:state:",
	}
}

// RedisStore is a state.Provider backed by Redis, for sharing conversation
// state across processes. Records are stored as JSON values whose Redis TTL
// mirrors the state's expires_at, so Redis itself evicts expired state.
type RedisStore struct {
	client *redis.Client
	config *RedisConfig
	logger *slog.Logger
}

// NewRedisStore creates a Redis state store and verifies connectivity.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil || config.Addr == "" {
		return nil, errors.New("redis state store: addr is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "securecheck:state:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return &RedisStore{
		client: client,
		config: config,
		logger: slog.Default().With("component", "state.storage.redis"),
	}, nil
}

// Get returns the stored state for the tuple, or (nil, nil) when absent.
func (r *RedisStore) Get(ctx context.Context, t state.Tuple) (*state.ConversationState, error) {
	data, err := r.client.Get(ctx, r.config.KeyPrefix+t.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %q: %w", t.Key(), err)
	}

	var cs state.ConversationState
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("corrupt state record %q: %w", t.Key(), err)
	}
	if cs.Expired(time.Now()) {
		return nil, nil
	}
	return &cs, nil
}

// Save stores or replaces the state record with a TTL derived from its
// expires_at. Already-expired records are deleted instead of written.
func (r *RedisStore) Save(ctx context.Context, cs *state.ConversationState) error {
	key := r.config.KeyPrefix + cs.ID

	ttl := time.Until(time.UnixMilli(cs.ExpiresAt))
	if cs.ExpiresAt > 0 && ttl <= 0 {
		return r.client.Del(ctx, key).Err()
	}
	if cs.ExpiresAt == 0 {
		ttl = 0 // no expiry
	}

	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", cs.ID, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state %q: %w", cs.ID, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
