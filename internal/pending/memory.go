package pending

import (
	"context"
	"sync"
	"time"

	"github.com/ggonzalez94/defi-intents/internal/intent"
)

// MemoryStore keeps slots in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	slots  map[string]PendingAction
	maxAge time.Duration
	now    func() time.Time
}

func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{slots: map[string]PendingAction{}, maxAge: maxAge, now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, userID string, action PendingAction) error {
	if err := validUser(userID); err != nil {
		return err
	}
	action.UserID = userID
	if action.CreatedAt.IsZero() {
		action.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	s.slots[userID] = action
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Take(_ context.Context, userID string) (PendingAction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.slots[userID]
	if !ok {
		return PendingAction{}, false, nil
	}
	delete(s.slots, userID)
	if stale(action.CreatedAt, s.maxAge, s.now()) {
		recordStale()
		return PendingAction{}, false, nil
	}
	return action, true, nil
}

func (s *MemoryStore) PeekKind(_ context.Context, userID string) (intent.Kind, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.slots[userID]
	if !ok {
		return "", false, nil
	}
	if stale(action.CreatedAt, s.maxAge, s.now()) {
		delete(s.slots, userID)
		recordStale()
		return "", false, nil
	}
	return action.Kind(), true, nil
}

func (s *MemoryStore) Close() error { return nil }
