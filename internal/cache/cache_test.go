package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type entry struct {
	Slots []string `json:"slots"`
}

func TestSlotCache_GetSet(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := NewSlotCache(rdb, time.Minute, nil)
	ctx := context.Background()

	var got entry
	assert.False(t, c.Get(ctx, "doc-1", "2026-10-19", &got))

	c.Set(ctx, "doc-1", "2026-10-19", entry{Slots: []string{"09:00", "09:40"}}, 0)
	require.True(t, c.Get(ctx, "doc-1", "2026-10-19", &got))
	assert.Equal(t, []string{"09:00", "09:40"}, got.Slots)
	assert.Equal(t, time.Minute, mr.TTL("slots:doc-1:2026-10-19"))

	c.Set(ctx, "doc-1", "2026-10-20", entry{}, 5*time.Second)
	assert.Equal(t, 5*time.Second, mr.TTL("slots:doc-1:2026-10-20"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, c.Get(ctx, "doc-1", "2026-10-19", &got))
}

func TestSlotCache_Invalidate(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := NewSlotCache(rdb, time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "doc-1", "2026-10-19", entry{}, 0)
	c.Set(ctx, "doc-1", "2026-10-20", entry{}, 0)
	c.Set(ctx, "doc-2", "2026-10-19", entry{}, 0)

	require.NoError(t, c.Invalidate(ctx, "doc-1"))
	assert.False(t, mr.Exists("slots:doc-1:2026-10-19"))
	assert.False(t, mr.Exists("slots:doc-1:2026-10-20"))
	assert.True(t, mr.Exists("slots:doc-2:2026-10-19"))
}

func TestSlotCache_Disabled(t *testing.T) {
	var c *SlotCache
	var got entry
	ctx := context.Background()

	assert.False(t, c.Get(ctx, "doc-1", "2026-10-19", &got))
	c.Set(ctx, "doc-1", "2026-10-19", entry{}, 0)
	assert.NoError(t, c.Invalidate(ctx, "doc-1"))
}

func TestLock(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	a := NewLock(rdb, "sweep:lock", time.Minute)
	b := NewLock(rdb, "sweep:lock", time.Minute)

	release, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("sweep:lock"))

	_, ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseAfterExpiry(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	release, ok, err := NewLock(rdb, "sweep:lock", time.Second).Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = NewLock(rdb, "sweep:lock", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists("sweep:lock"), "stale release keeps the new holder's lock")
}

func TestSlotCache_HandleEvent(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := NewSlotCache(rdb, time.Minute, nil)
	ctx := context.Background()

	bus := events.NewEventBus()
	bus.Subscribe(c.HandleEvent, events.SlotReserved)

	c.Set(ctx, "doc-1", "2026-10-19", entry{}, 0)
	bus.Publish(events.Event{Type: events.SlotReserved, DoctorID: "doc-1"})
	assert.False(t, mr.Exists("slots:doc-1:2026-10-19"))
}
