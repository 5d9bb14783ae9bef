package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ayusman/asana/internal/game"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "asana:session:"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires idle sessions; zero keeps keys until Delete.
	TTL time.Duration
}

// RedisStore keeps states in Redis so any process can serve any frame.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	tracker *game.Tracker
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, tracker *game.Tracker) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL, tracker), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration, tracker *game.Tracker) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, tracker: tracker}
}

func (r *RedisStore) key(connID string) string {
	return r.prefix + connID
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, connID string) (game.State, error) {
	data, err := r.client.Get(ctx, r.key(connID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return r.tracker.Start(), nil
	}
	if err != nil {
		return game.State{}, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, connID, err)
	}

	var s game.State
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return game.State{}, fmt.Errorf("decode session %s: %w", connID, err)
	}
	return s, nil
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, connID string, state game.State) error {
	data, err := msgpack.Marshal(&state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", connID, err)
	}
	if err := r.client.Set(ctx, r.key(connID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, connID, err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, connID string) error {
	if err := r.client.Del(ctx, r.key(connID)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, connID, err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
