package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists slots on disk so a preview made by one CLI invocation
// can be confirmed by the next.
type SQLiteStore struct {
	// mu serializes goroutines; the flock only excludes other processes.
	mu     sync.Mutex
	db     *sql.DB
	lock   *flock.Flock
	maxAge time.Duration
	now    func() time.Time
}

func OpenSQLiteStore(path, lockPath string, maxAge time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("pending store: sqlite path is required")
	}
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pending store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create pending lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pending sqlite: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=2000;",
		`CREATE TABLE IF NOT EXISTS pending_actions (
			user_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init pending schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, lock: flock.New(lockPath), maxAge: maxAge, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, userID string, action PendingAction) error {
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
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (user_id, kind, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			kind=excluded.kind,
			created_at=excluded.created_at,
			payload=excluded.payload
	`, userID, string(action.Kind()), action.CreatedAt.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("save pending action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Take(ctx context.Context, userID string) (PendingAction, bool, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return PendingAction{}, false, err
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PendingAction{}, false, fmt.Errorf("begin take: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		createdAt int64
		payload   []byte
	)
	err = tx.QueryRowContext(ctx, "DELETE FROM pending_actions WHERE user_id = ? RETURNING created_at, payload", userID).
		Scan(&createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingAction{}, false, nil
	}
	if err != nil {
		return PendingAction{}, false, fmt.Errorf("take pending action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PendingAction{}, false, fmt.Errorf("commit take: %w", err)
	}
	if stale(time.Unix(0, createdAt), s.maxAge, s.now()) {
		recordStale()
		return PendingAction{}, false, nil
	}
	action, err := decode(payload)
	if err != nil {
		return PendingAction{}, false, err
	}
	return action, true, nil
}

func (s *SQLiteStore) PeekKind(ctx context.Context, userID string) (intent.Kind, bool, error) {
	var (
		kind      string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT kind, created_at FROM pending_actions WHERE user_id = ?", userID).
		Scan(&kind, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("peek pending action: %w", err)
	}
	if stale(time.Unix(0, createdAt), s.maxAge, s.now()) {
		if err := s.discard(ctx, userID, createdAt); err != nil {
			return "", false, err
		}
		recordStale()
		return "", false, nil
	}
	return intent.Kind(kind), true, nil
}

// discard removes a stale slot unless a newer Put has replaced it meanwhile.
func (s *SQLiteStore) discard(ctx context.Context, userID string, createdAt int64) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions WHERE user_id = ? AND created_at = ?", userID, createdAt); err != nil {
		return fmt.Errorf("discard stale pending action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("lock pending store: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return nil, fmt.Errorf("lock pending store: timeout acquiring lock")
	}
	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}
