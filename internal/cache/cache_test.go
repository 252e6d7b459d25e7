package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	_, ok, err := m.Get(ctx, "doc:policy:access:")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "doc:policy:access:", "# Access Policy"))
	v, ok, err := m.Get(ctx, "doc:policy:access:")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "# Access Policy", v)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", "v"))
	now = now.Add(59 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_SetSweepsUnreadExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "doc:policy:a", "a"))
	require.NoError(t, m.Set(ctx, "doc:policy:b", "b"))
	assert.Equal(t, 2, m.Len())

	now = now.Add(2 * time.Minute)
	require.NoError(t, m.Set(ctx, "doc:policy:c", "c"))
	assert.Equal(t, 1, m.Len())

	v, ok, _ := m.Get(ctx, "doc:policy:c")
	assert.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestMemory_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewMemory(0).ttl)
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r, err := NewRedis(ctx, "redis://"+mr.Addr(), "controldesk", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, ok, err := r.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "doc:procedure:network:aws", "# Network Procedure"))
	assert.True(t, mr.Exists("controldesk:doc:procedure:network:aws"))

	v, ok, err := r.Get(ctx, "doc:procedure:network:aws")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "# Network Procedure", v)
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "p:", 10*time.Minute)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Set(ctx, "k", "v"))
	assert.Equal(t, 10*time.Minute, mr.TTL("p:k"))

	mr.FastForward(11 * time.Minute)
	_, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, "redis://"+addr, "", 0)
	assert.Error(t, err)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "://nope", "", 0)
	assert.Error(t, err)
}
