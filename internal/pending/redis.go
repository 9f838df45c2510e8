package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces keys, default "intents:pending:".
	Prefix string
}

// RedisStore shares slots between processes. Expiry is delegated to the key
// TTL, and Take uses GETDEL so exactly one caller wins.
type RedisStore struct {
	client *redis.Client
	prefix string
	maxAge time.Duration
	now    func() time.Time
}

func OpenRedisStore(ctx context.Context, cfg RedisConfig, maxAge time.Duration) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("pending store: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisStore(client, cfg.Prefix, maxAge), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string, maxAge time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "intents:pending:"
	}
	return &RedisStore{client: client, prefix: prefix, maxAge: maxAge, now: time.Now}
}

func (s *RedisStore) key(userID string) string { return s.prefix + userID }

func (s *RedisStore) kindKey(userID string) string { return s.prefix + "kind:" + userID }

func (s *RedisStore) Put(ctx context.Context, userID string, action PendingAction) error {
	if err := validUser(userID); err != nil {
		return err
	}
	action.UserID = userID
	if action.CreatedAt.IsZero() {
		action.CreatedAt = s.now().UTC()
	}
	payload, err := encode(action)
	if err != nil {
		return err
	}
	ttl := s.maxAge
	if ttl > 0 {
		ttl -= s.now().Sub(action.CreatedAt)
		if ttl <= 0 {
			return nil
		}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(userID), payload, ttl)
		pipe.Set(ctx, s.kindKey(userID), string(action.Kind()), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pending action: %w", err)
	}
	return nil
}

// Take clears the payload and kind keys in one MULTI so a concurrent Put
// never ends up with a payload but no kind.
func (s *RedisStore) Take(ctx context.Context, userID string) (PendingAction, bool, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.GetDel(ctx, s.key(userID))
		pipe.Del(ctx, s.kindKey(userID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return PendingAction{}, false, fmt.Errorf("take pending action: %w", err)
	}
	payload, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingAction{}, false, nil
	}
	if err != nil {
		return PendingAction{}, false, fmt.Errorf("take pending action: %w", err)
	}
	action, err := decode(payload)
	if err != nil {
		return PendingAction{}, false, err
	}
	if stale(action.CreatedAt, s.maxAge, s.now()) {
		recordStale()
		return PendingAction{}, false, nil
	}
	return action, true, nil
}

func (s *RedisStore) PeekKind(ctx context.Context, userID string) (intent.Kind, bool, error) {
	kind, err := s.client.Get(ctx, s.kindKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("peek pending action: %w", err)
	}
	return intent.Kind(kind), true, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
