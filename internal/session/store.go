// Package session stores per-connection game state.
package session

import (
	"context"
	"errors"

	"github.com/ayusman/asana/internal/game"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Strategy names accepted by the session.strategy setting.
const (
	StrategyMemory = "memory"
	StrategyRedis  = "redis"
)

// Store holds one game.State per connection id.
type Store interface {
	// Get returns the stored state, or a fresh idle state when none exists.
	Get(ctx context.Context, connID string) (game.State, error)
	Set(ctx context.Context, connID string, state game.State) error
	Delete(ctx context.Context, connID string) error
}
