package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdapter(t *testing.T, prefix string) (*miniredis.Miniredis, RedisAdapter) {
	mr := miniredis.RunT(t)
	adapter, err := NewRedisAdapter(t.Name()+"-"+mr.Addr(), prefix, &Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	return mr, adapter
}

func TestRedisAdapter_SetNXAndCompareAndDelete(t *testing.T) {
	mr, r := setupAdapter(t, "rec:")
	ctx := context.Background()

	ok, err := r.SetNX(ctx, "lock", []byte("owner-a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("rec:lock"))

	ok, err = r.SetNX(ctx, "lock", []byte("owner-b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := r.CompareAndDelete(ctx, "lock", []byte("owner-b"))
	require.NoError(t, err)
	assert.False(t, deleted, "wrong owner must not delete")

	extended, err := r.CompareAndExpire(ctx, "lock", []byte("owner-a"), 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, 2*time.Minute, mr.TTL("rec:lock"))

	deleted, err = r.CompareAndDelete(ctx, "lock", []byte("owner-a"))
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("rec:lock"))
}

func TestRedisAdapter_GetMissing(t *testing.T) {
	_, r := setupAdapter(t, "")
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, NilError)
}

func TestRedisAdapter_Stream(t *testing.T) {
	_, r := setupAdapter(t, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.XAdd(ctx, "events", map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	n, err := r.XLen(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	msgs, err := r.XRange(ctx, "events", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "0", msgs[0].Values["n"])
}

func TestNewRedisAdapter_ReusesNamedConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	name := t.Name()

	a, err := NewRedisAdapter(name, "", &Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	b, err := NewRedisAdapter(name, "", &Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Same(t, a, GetRedis(name))
}
