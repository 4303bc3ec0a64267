package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// Store is the source of truth for free/busy state. Reserve and Release
// are the only mutations, both scoped to one doctor-day critical section.
type Store struct {
	repo   Repository
	locker Locker
	grid   time.Duration
	log    zerolog.Logger
}

func NewStore(repo Repository, locker Locker, grid time.Duration, log zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		locker: locker,
		grid:   grid,
		log:    log,
	}
}

func (s *Store) DaySchedule(ctx context.Context, doctorID uuid.UUID, day time.Time) (*DaySchedule, error) {
	return s.repo.GetDaySchedule(ctx, doctorID, DayOf(day))
}

// FreeStarts lists candidate start times for a block of the given
// duration on the doctor's day, earliest first. Candidates can go stale
// between listing and reserving; Reserve re-checks.
func (s *Store) FreeStarts(ctx context.Context, doctorID uuid.UUID, day time.Time, duration time.Duration) ([]time.Time, error) {
	ds, err := s.repo.GetDaySchedule(ctx, doctorID, DayOf(day))
	if err != nil {
		return nil, err
	}
	return ds.FreeStarts(duration, s.grid), nil
}

// Reserve inserts the interval after re-checking for overlap inside the
// doctor-day lock. Losing a race surfaces as ErrIntervalConflict so the
// caller can retry against fresh candidates.
func (s *Store) Reserve(ctx context.Context, doctorID uuid.UUID, iv Interval) error {
	day := DayOf(iv.Start)

	err := s.locker.WithDayLock(ctx, doctorID, day, func(lockCtx context.Context) error {
		ds, err := s.repo.GetDaySchedule(lockCtx, doctorID, day)
		if err != nil {
			return err
		}

		if ds.conflictsBooked(iv) {
			return ErrIntervalConflict
		}
		if !ds.fits(iv) {
			return ErrInvalidInterval
		}

		if err := s.repo.InsertBooked(lockCtx, doctorID, iv); err != nil {
			return fmt.Errorf("insert booked interval: %w", err)
		}
		return nil
	})

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		// Another booking holds the day; indistinguishable from losing
		// the race for the caller's purposes.
		return ErrIntervalConflict
	}
	return err
}

// Release removes a booked interval. Releasing an interval that is not
// booked is a no-op, so a repeated cancellation cannot corrupt the grid.
func (s *Store) Release(ctx context.Context, doctorID uuid.UUID, start, end time.Time) error {
	iv := Interval{Start: start, End: end}
	day := DayOf(start)

	return s.locker.WithDayLock(ctx, doctorID, day, func(lockCtx context.Context) error {
		removed, err := s.repo.DeleteBooked(lockCtx, doctorID, iv)
		if err != nil {
			return fmt.Errorf("delete booked interval: %w", err)
		}
		if !removed {
			s.log.Debug().
				Str("doctor_id", doctorID.String()).
				Time("start", start).
				Msg("release of unbooked interval ignored")
		}
		return nil
	})
}
