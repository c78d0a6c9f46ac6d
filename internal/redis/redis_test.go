package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/occupancy"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDayLock_ReleasesAfterRun(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisDayLocker(client, 5*time.Second)

	ran := false
	err := locker.WithDayLock(context.Background(), "A", "2025-06-02", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(lockKey("A", "2025-06-02")))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(lockKey("A", "2025-06-02")))
}

func TestDayLock_ContendedDayIsRejected(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewRedisDayLocker(client, 5*time.Second)
	ctx := context.Background()

	err := locker.WithDayLock(ctx, "A", "2025-06-02", func(ctx context.Context) error {
		inner := locker.WithDayLock(ctx, "A", "2025-06-02", func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		other := locker.WithDayLock(ctx, "B", "2025-06-02", func(context.Context) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)
}

func TestDayLock_PropagatesCallbackError(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisDayLocker(client, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithDayLock(context.Background(), "A", "2025-06-03", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(lockKey("A", "2025-06-03")))
}

func TestDayLock_WaitsForRelease(t *testing.T) {
	mr, client := newTestClient(t)
	key := lockKey("A", "2025-06-05")
	require.NoError(t, mr.Set(key, "other-booking"))
	time.AfterFunc(30*time.Millisecond, func() { mr.Del(key) })

	locker := NewRedisDayLocker(client, 5*time.Second, WithAcquireWait(time.Second, 10*time.Millisecond))

	ran := false
	err := locker.WithDayLock(context.Background(), "A", "2025-06-05", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestDayLock_GivesUpAfterWait(t *testing.T) {
	mr, client := newTestClient(t)
	require.NoError(t, mr.Set(lockKey("A", "2025-06-06"), "other-booking"))

	locker := NewRedisDayLocker(client, 5*time.Second, WithAcquireWait(60*time.Millisecond, 10*time.Millisecond))

	started := time.Now()
	err := locker.WithDayLock(context.Background(), "A", "2025-06-06", func(context.Context) error {
		t.Fatal("callback must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)
	assert.True(t, mr.Exists(lockKey("A", "2025-06-06")))
}

func TestDayLock_DoesNotReleaseForeignToken(t *testing.T) {
	mr, client := newTestClient(t)
	l := &redisDayLocker{client: client, ttl: time.Second}

	require.NoError(t, mr.Set(lockKey("A", "2025-06-04"), "someone-else"))
	require.NoError(t, l.release(context.Background(), lockKey("A", "2025-06-04"), "mine"))
	assert.True(t, mr.Exists(lockKey("A", "2025-06-04")))
}

func TestSnapshotCache_RoundTripAndInvalidate(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	miss, err := cache.Get(ctx, appointment.SiteA)
	require.NoError(t, err)
	assert.Nil(t, miss)

	snap := occupancy.Snapshot{
		Site:        appointment.SiteA,
		GeneratedAt: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		PerDate:     map[string]int{"2025-06-02": 2},
		Stats:       occupancy.Stats{Min: 2, Max: 2, Avg: 2, Total: 2},
		Streaks:     occupancy.Streaks{Longest: 1, Current: 1},
		Predictions: occupancy.Predictions{BusiestWeekday: time.Monday, BusiestAverage: 2},
	}
	require.NoError(t, cache.Put(ctx, snap))
	assert.Equal(t, time.Minute, mr.TTL(snapshotKey(appointment.SiteA)))

	got, err := cache.Get(ctx, appointment.SiteA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.PerDate, got.PerDate)
	assert.Equal(t, snap.Stats, got.Stats)
	assert.Equal(t, time.Monday, got.Predictions.BusiestWeekday)
	assert.True(t, snap.GeneratedAt.Equal(got.GeneratedAt))

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists(snapshotKey(appointment.SiteA)))
}
