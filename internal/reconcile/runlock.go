package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/redis"
)

var ErrLockHeld = errors.New("run lock held by another instance")

// RunLock is a Redis lease shared by every worker of a deployment so that
// only one of them runs a pass at a time.
type RunLock struct {
	redis redis.RedisAdapter
	key   string
	ttl   time.Duration
}

func NewRunLock(adapter redis.RedisAdapter, key string, ttl time.Duration) *RunLock {
	return &RunLock{redis: adapter, key: key, ttl: ttl}
}

type Lease struct {
	lock  *RunLock
	value []byte
	stop  chan struct{}
	done  chan struct{}
}

// Acquire takes the lease or returns ErrLockHeld.
func (l *RunLock) Acquire(ctx context.Context) (*Lease, error) {
	value := []byte(uuid.NewString())
	ok, err := l.redis.SetNX(ctx, l.key, value, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	logger.Debug("run lock acquired", "key", l.key, "ttl", l.ttl)
	return &Lease{lock: l, value: value}, nil
}

// Extend pushes the expiry out by one ttl. It returns false when the lease
// was lost.
func (le *Lease) Extend(ctx context.Context) (bool, error) {
	return le.lock.redis.CompareAndExpire(ctx, le.lock.key, le.value, le.lock.ttl)
}

// KeepAlive extends the lease every third of its ttl until Release.
func (le *Lease) KeepAlive() {
	if le.stop != nil {
		return
	}
	le.stop = make(chan struct{})
	le.done = make(chan struct{})

	go func() {
		defer close(le.done)
		ticker := time.NewTicker(le.lock.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-le.stop:
				return
			case <-ticker.C:
				ok, err := le.Extend(context.Background())
				if err != nil {
					logger.Warn("failed to extend run lock", "key", le.lock.key, "error", err)
					continue
				}
				if !ok {
					logger.Warn("run lock lost", "key", le.lock.key)
					return
				}
			}
		}
	}()
}

// Release deletes the lease if it is still ours.
func (le *Lease) Release(ctx context.Context) error {
	if le.stop != nil {
		close(le.stop)
		<-le.done
		le.stop = nil
	}
	_, err := le.lock.redis.CompareAndDelete(ctx, le.lock.key, le.value)
	return err
}
