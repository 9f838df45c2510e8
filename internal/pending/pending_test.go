package pending

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggonzalez94/defi-intents/internal/intent"
	"github.com/ggonzalez94/defi-intents/internal/preview"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store Store
	clock *clock
	// expire moves the backend past the max age.
	expire func(d time.Duration)
}

func backends(t *testing.T, maxAge time.Duration) map[string]harness {
	t.Helper()
	out := map[string]harness{}

	memClock := &clock{t: time.Now()}
	mem := NewMemoryStore(maxAge)
	mem.now = memClock.Now
	out["memory"] = harness{store: mem, clock: memClock, expire: memClock.Advance}

	sqlClock := &clock{t: time.Now()}
	dir := t.TempDir()
	sq, err := OpenSQLiteStore(filepath.Join(dir, "pending.db"), filepath.Join(dir, "pending.lock"), maxAge)
	require.NoError(t, err)
	sq.now = sqlClock.Now
	t.Cleanup(func() { _ = sq.Close() })
	out["sqlite"] = harness{store: sq, clock: sqlClock, expire: sqlClock.Advance}

	mr := miniredis.RunT(t)
	redisClock := &clock{t: time.Now()}
	rs := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", maxAge)
	rs.now = redisClock.Now
	t.Cleanup(func() { _ = rs.Close() })
	out["redis"] = harness{store: rs, clock: redisClock, expire: func(d time.Duration) {
		redisClock.Advance(d)
		mr.FastForward(d)
	}}
	return out
}

func action(kind intent.Kind, id string) PendingAction {
	return PendingAction{Preview: preview.Preview{ID: id, Kind: kind, Summary: "summary " + id}}
}

func TestStoreTakeIsDestructive(t *testing.T) {
	for name, h := range backends(t, DefaultMaxAge) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindTransfer, "pv_1")))

			got, ok, err := h.store.Take(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "pv_1", got.Preview.ID)
			require.Equal(t, "alice", got.UserID)
			require.False(t, got.CreatedAt.IsZero())

			_, ok, err = h.store.Take(ctx, "alice")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStorePutSupersedes(t *testing.T) {
	for name, h := range backends(t, DefaultMaxAge) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindTransfer, "pv_1")))
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindYieldDeposit, "pv_2")))

			kind, ok, err := h.store.PeekKind(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, intent.KindYieldDeposit, kind)

			got, ok, err := h.store.Take(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "pv_2", got.Preview.ID)
		})
	}
}

func TestStoreSlotsArePerUser(t *testing.T) {
	for name, h := range backends(t, DefaultMaxAge) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindTransfer, "pv_a")))

			_, ok, err := h.store.Take(ctx, "bob")
			require.NoError(t, err)
			require.False(t, ok)

			kind, ok, err := h.store.PeekKind(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, intent.KindTransfer, kind)
		})
	}
}

func TestStoreStaleSlotReadsEmpty(t *testing.T) {
	for name, h := range backends(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindPositionClose, "pv_old")))
			h.expire(2 * time.Minute)

			_, ok, err := h.store.PeekKind(ctx, "alice")
			require.NoError(t, err)
			require.False(t, ok)

			_, ok, err = h.store.Take(ctx, "alice")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStoreZeroMaxAgeNeverExpires(t *testing.T) {
	for name, h := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindTransfer, "pv_1")))
			h.expire(24 * time.Hour)

			_, ok, err := h.store.Take(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestStoreConcurrentTakeYieldsOnce(t *testing.T) {
	for name, h := range backends(t, DefaultMaxAge) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, h.store.Put(ctx, "alice", action(intent.KindTransfer, "pv_1")))

			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						_, ok, err := h.store.Take(ctx, "alice")
						if err != nil {
							// sqlite lock contention, try again
							time.Sleep(time.Millisecond)
							continue
						}
						if ok {
							wins.Add(1)
						}
						return
					}
				}()
			}
			wg.Wait()
			require.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestRedisTakeClearsKindWithPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rs := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", DefaultMaxAge)
	t.Cleanup(func() { _ = rs.Close() })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, rs.Put(ctx, "alice", action(intent.KindTransfer, "pv_put")))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _, err := rs.Take(ctx, "alice")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, mr.Exists(rs.key("alice")), mr.Exists(rs.kindKey("alice")))

	require.NoError(t, rs.Put(ctx, "alice", action(intent.KindYieldDeposit, "pv_last")))
	_, ok, err := rs.Take(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, mr.Exists(rs.key("alice")))
	require.False(t, mr.Exists(rs.kindKey("alice")))

	kind, ok, err := rs.PeekKind(ctx, "alice")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, kind)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending.db")
	ctx := context.Background()

	first, err := OpenSQLiteStore(path, "", DefaultMaxAge)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "alice", action(intent.KindYieldWithdraw, "pv_1")))
	require.NoError(t, first.Close())

	second, err := OpenSQLiteStore(path, "", DefaultMaxAge)
	require.NoError(t, err)
	defer second.Close()
	got, ok, err := second.Take(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, intent.KindYieldWithdraw, got.Kind())
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "etcd"})
	require.Error(t, err)
}

func TestPutRejectsEmptyUser(t *testing.T) {
	require.Error(t, NewMemoryStore(DefaultMaxAge).Put(context.Background(), " ", action(intent.KindTransfer, "pv")))
}
