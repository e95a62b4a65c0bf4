package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_AcquireRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock := NewRunLock(f.adapter, "lock:run", time.Minute)

	lease, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, f.mr.TTL("test:lock:run"))

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, f.mr.Exists("test:lock:run"))

	again, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRunLock_ExpiredLeaseDoesNotDeleteNewHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock := NewRunLock(f.adapter, "lock:run", time.Minute)

	stale, err := lock.Acquire(ctx)
	require.NoError(t, err)
	f.mr.FastForward(2 * time.Minute)

	current, err := lock.Acquire(ctx)
	require.NoError(t, err)

	ok, err := stale.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, f.mr.Exists("test:lock:run"))

	f.mr.FastForward(30 * time.Second)
	ok, err = current.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, f.mr.TTL("test:lock:run"))
}

func TestRunLock_KeepAlive(t *testing.T) {
	f := newFixture(t)
	lock := NewRunLock(f.adapter, "lock:run", 30*time.Millisecond)

	lease, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	lease.KeepAlive()
	lease.KeepAlive()

	f.mr.SetTTL("test:lock:run", time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.mr.TTL("test:lock:run") == 30*time.Millisecond
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, lease.Release(context.Background()))
	assert.False(t, f.mr.Exists("test:lock:run"))
}
