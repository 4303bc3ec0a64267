package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker serializes the reservation critical section per doctor-day.
type Locker interface {
	WithDayLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error
}

// KeyedLocker is an in-process Locker for tests and single-node
// deployments. Multi-node deployments use the Redis DayLocker.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *KeyedLocker) WithDayLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	key := doctorID.String() + "|" + day.Format(time.DateOnly)

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
