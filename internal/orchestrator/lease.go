package orchestrator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shaiso/Bulksub/internal/lease"
)

// Lease — удерживаемая аренда run.
type Lease interface {
	Release(ctx context.Context) error
	Lost() <-chan struct{}
}

// Locker выдаёт аренды runs.
type Locker interface {
	Acquire(ctx context.Context, runID uuid.UUID) (Lease, error)
}

// RedisLocker адаптирует lease.Locker к Locker.
func RedisLocker(l *lease.Locker) Locker {
	return redisLocker{l: l}
}

type redisLocker struct {
	l *lease.Locker
}

func (r redisLocker) Acquire(ctx context.Context, runID uuid.UUID) (Lease, error) {
	held, err := r.l.Acquire(ctx, runID)
	if errors.Is(err, lease.ErrHeld) {
		return nil, ErrRunLeased
	}
	if err != nil {
		return nil, err
	}
	return held, nil
}
