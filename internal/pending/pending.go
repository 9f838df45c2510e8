// Package pending keeps at most one previewed action per user until it is
// confirmed, cancelled or replaced.
package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/metrics"
	"github.com/ggonzalez94/defi-intents/internal/preview"
)

// DefaultMaxAge is how long a preview stays confirmable.
const DefaultMaxAge = 10 * time.Minute

type PendingAction struct {
	UserID    string          `json:"user_id"`
	Preview   preview.Preview `json:"preview"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a PendingAction) Kind() intent.Kind { return a.Preview.Kind }

// Store holds one slot per user. Put replaces whatever is there. Take empties
// the slot and returns its content exactly once, even under concurrent
// callers. Slots older than the store's max age read as empty.
type Store interface {
	Put(ctx context.Context, userID string, action PendingAction) error
	Take(ctx context.Context, userID string) (PendingAction, bool, error)
	PeekKind(ctx context.Context, userID string) (intent.Kind, bool, error)
	Close() error
}

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

type Options struct {
	Backend Backend
	MaxAge  time.Duration
	// SQLite backend.
	Path     string
	LockPath string
	// Redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(string(opts.Backend)))) {
	case BackendMemory, "":
		return NewMemoryStore(opts.MaxAge), nil
	case BackendSQLite:
		return OpenSQLiteStore(opts.Path, opts.LockPath, opts.MaxAge)
	case BackendRedis:
		return OpenRedisStore(ctx, RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		}, opts.MaxAge)
	default:
		return nil, fmt.Errorf("unknown pending store backend %q", opts.Backend)
	}
}

func stale(createdAt time.Time, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(createdAt) > maxAge
}

func validUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("pending store: empty user id")
	}
	return nil
}

func encode(action PendingAction) ([]byte, error) {
	data, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode pending action: %w", err)
	}
	return data, nil
}

func decode(data []byte) (PendingAction, error) {
	var action PendingAction
	if err := json.Unmarshal(data, &action); err != nil {
		return PendingAction{}, fmt.Errorf("decode pending action: %w", err)
	}
	return action, nil
}

func recordStale() {
	metrics.PendingOutcomes.WithLabelValues("stale").Inc()
}
