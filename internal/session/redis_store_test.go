package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStoreCreateAndGet(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)
	require.True(t, ValidID(id))

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, s.ID)
	require.Empty(t, s.Values)
	require.False(t, s.CreatedAt.IsZero())
	require.True(t, s.ExpiresAt.After(s.LastAccessAt))
}

func TestRedisStoreSetDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, id, "return_to", "https://app.example.com/a"))
	require.NoError(t, store.Set(ctx, id, "return_to", "https://app.example.com/b"))

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	v, ok := s.Value("return_to")
	require.True(t, ok)
	require.Equal(t, "https://app.example.com/b", v)

	require.NoError(t, store.Delete(ctx, id, "return_to"))

	s, err = store.Get(ctx, id)
	require.NoError(t, err)
	_, ok = s.Value("return_to")
	require.False(t, ok)
}

func TestRedisStoreValueKeysDoNotShadowMetadata(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, id, "m:created", "x"))

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, s.CreatedAt.IsZero())
	require.Equal(t, "x", s.Values["m:created"])
}

func TestRedisStoreDestroy(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Destroy(ctx, id))

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	err = store.Set(ctx, id, "user", "{}")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)

	mr.FastForward(time.Hour + time.Second)

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

// destroyingHook deletes a session key around every script call, standing
// in for a logout that lands while Get is in flight.
type destroyingHook struct {
	mr     *miniredis.Miniredis
	key    string
	before bool
}

func (h destroyingHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h destroyingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		isScript := cmd.Name() == "evalsha" || cmd.Name() == "eval"
		if isScript && h.before {
			h.mr.Del(h.key)
		}
		err := next(ctx, cmd)
		if isScript && !h.before && err == nil {
			h.mr.Del(h.key)
		}
		return err
	}
}

func (h destroyingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStoreGetDoesNotResurrectDestroyedSession(t *testing.T) {
	for _, before := range []bool{true, false} {
		t.Run(fmt.Sprintf("destroy_before_read=%v", before), func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			store := NewRedisStore(client, time.Hour)
			ctx := context.Background()

			id, err := store.Create(ctx)
			require.NoError(t, err)
			client.AddHook(destroyingHook{mr: mr, key: store.key(id), before: before})

			_, err = store.Get(ctx, id)
			if before {
				require.ErrorIs(t, err, ErrNotFound)
			} else {
				require.NoError(t, err)
			}
			require.False(t, mr.Exists(store.key(id)))

			_, err = store.Get(ctx, id)
			require.ErrorIs(t, err, ErrNotFound)
			require.False(t, mr.Exists(store.key(id)))
		})
	}
}

func TestRedisStoreGetAfterExpiryLeavesNoKey(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)
	mr.FastForward(time.Hour + time.Second)

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists(store.key(id)))
}

func TestRedisStoreSlidingExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)

	mr.FastForward(40 * time.Minute)
	_, err = store.Get(ctx, id)
	require.NoError(t, err)

	mr.FastForward(40 * time.Minute)
	_, err = store.Get(ctx, id)
	require.NoError(t, err)
}

func TestRedisStoreRejectsMalformedID(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Get(context.Background(), "not-a-session")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)

	mr.Close()

	_, err = store.Get(ctx, id)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestRedisStoreConcurrentWrites(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(ctx, id, fmt.Sprintf("k%d", i), "v")
		}(i)
	}
	wg.Wait()

	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, s.Values, 20)
}
