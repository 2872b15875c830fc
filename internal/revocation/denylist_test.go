package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisDenylist(t *testing.T) {
	mr, client := newTestRedis(t)
	d := NewRedisDenylist(client)
	ctx := context.Background()

	require.NoError(t, d.Ping(ctx))

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists("denylist:jti:jti-1"))

	ttl := mr.TTL("denylist:jti:jti-1")
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(2 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisDenylist_ExpiredTokenIsNotStored(t *testing.T) {
	mr, client := newTestRedis(t)
	d := NewRedisDenylist(client)

	require.NoError(t, d.Revoke(context.Background(), "old", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists("denylist:jti:old"))
}

func TestRedisDenylist_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	d := NewRedisDenylist(client)
	mr.Close()

	_, err := d.IsRevoked(context.Background(), "jti")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, d.Revoke(context.Background(), "jti", time.Now().Add(time.Minute)), ErrUnavailable)
	assert.Error(t, d.Ping(context.Background()))
}

func TestMemoryDenylist(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemoryDenylist()
	d.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, d.Revoke(ctx, "a", now.Add(time.Minute)))
	require.NoError(t, d.Revoke(ctx, "b", now.Add(time.Hour)))
	require.NoError(t, d.Revoke(ctx, "stale", now))
	assert.Equal(t, 2, d.Len())

	revoked, err := d.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 1, d.Len())

	now = now.Add(2 * time.Hour)
	require.NoError(t, d.Revoke(ctx, "c", now.Add(time.Minute)))
	assert.Equal(t, 1, d.Len())
	require.NoError(t, d.Ping(ctx))
}
