package scheduler

import (
	"context"
	"errors"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

const lockPrefix = "placementpay:scheduler:"

// Locker hands out a cluster-wide lease per job. ok is false when another
// instance holds it.
type Locker interface {
	Acquire(ctx context.Context, job string) (release func(), ok bool, err error)
}

type redisLocker struct {
	client *redislock.Client
	cfg    Config
}

// NewRedisLocker returns nil when no Redis client is configured; the
// scheduler then runs every tick unguarded.
func NewRedisLocker(client redis.UniversalClient, cfg Config) Locker {
	if client == nil {
		return nil
	}
	return &redisLocker{client: redislock.New(client), cfg: cfg}
}

func (l *redisLocker) Acquire(ctx context.Context, job string) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, lockPrefix+job, l.cfg.LockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, true, nil
}
