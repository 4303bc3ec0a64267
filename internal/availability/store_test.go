package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *MemoryRepository, uuid.UUID) {
	t.Helper()

	repo := NewMemoryRepository()
	ds := workingDay(t)
	repo.AddDaySchedule(ds)

	store := NewStore(repo, NewKeyedLocker(), 30*time.Minute, zerolog.Nop())
	return store, repo, ds.DoctorID
}

func TestReserveAndConflict(t *testing.T) {
	store, _, doctorID := newTestStore(t)
	ctx := context.Background()

	iv := NewInterval(day(t, 9, 0), 60*time.Minute)
	require.NoError(t, store.Reserve(ctx, doctorID, iv))

	// Same interval again.
	err := store.Reserve(ctx, doctorID, iv)
	assert.ErrorIs(t, err, ErrIntervalConflict)

	// Partial overlap.
	err = store.Reserve(ctx, doctorID, NewInterval(day(t, 9, 30), 60*time.Minute))
	assert.ErrorIs(t, err, ErrIntervalConflict)

	// Adjacent block is fine.
	assert.NoError(t, store.Reserve(ctx, doctorID, NewInterval(day(t, 10, 0), 30*time.Minute)))
}

func TestReserveRejectsOutsideWorkingHours(t *testing.T) {
	store, _, doctorID := newTestStore(t)
	ctx := context.Background()

	err := store.Reserve(ctx, doctorID, NewInterval(day(t, 8, 0), 30*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	err = store.Reserve(ctx, doctorID, NewInterval(day(t, 16, 30), 60*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	// Lunch break.
	err = store.Reserve(ctx, doctorID, NewInterval(day(t, 12, 0), 30*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestReserveUnknownDoctor(t *testing.T) {
	store, _, _ := newTestStore(t)

	err := store.Reserve(context.Background(), uuid.New(), NewInterval(day(t, 9, 0), 30*time.Minute))
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	store, _, doctorID := newTestStore(t)
	ctx := context.Background()

	iv := NewInterval(day(t, 9, 0), 60*time.Minute)
	require.NoError(t, store.Reserve(ctx, doctorID, iv))

	require.NoError(t, store.Release(ctx, doctorID, iv.Start, iv.End))
	// Releasing again is a no-op, not an error.
	require.NoError(t, store.Release(ctx, doctorID, iv.Start, iv.End))

	// The freed block is reservable again.
	assert.NoError(t, store.Reserve(ctx, doctorID, iv))
}

func TestConcurrentReservesOneWinner(t *testing.T) {
	store, _, doctorID := newTestStore(t)
	iv := NewInterval(day(t, 9, 0), 60*time.Minute)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Reserve(context.Background(), doctorID, iv)
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrIntervalConflict):
			conflicts++
		}
	}

	assert.Equal(t, 1, wins, "exactly one racer may hold the interval")
	assert.Equal(t, racers-1, conflicts)
}

func TestFreeStartsReflectsReservations(t *testing.T) {
	store, _, doctorID := newTestStore(t)
	ctx := context.Background()

	before, err := store.FreeStarts(ctx, doctorID, day(t, 0, 0), 30*time.Minute)
	require.NoError(t, err)
	require.Contains(t, before, day(t, 9, 0))

	require.NoError(t, store.Reserve(ctx, doctorID, NewInterval(day(t, 9, 0), 30*time.Minute)))

	after, err := store.FreeStarts(ctx, doctorID, day(t, 0, 0), 30*time.Minute)
	require.NoError(t, err)
	assert.NotContains(t, after, day(t, 9, 0))
	assert.Len(t, after, len(before)-1)
}
