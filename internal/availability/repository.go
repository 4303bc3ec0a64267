package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrScheduleNotFound = errors.New("no schedule for doctor on that day")
	ErrIntervalConflict = errors.New("interval overlaps a booked interval")
	ErrInvalidInterval  = errors.New("interval outside working hours or inside a break")
)

// Repository contains the calendar reads and writes needed by the Store.
// Overlap checking is not the repository's job; Reserve re-checks inside
// the doctor-day critical section.
type Repository interface {
	GetDaySchedule(ctx context.Context, doctorID uuid.UUID, day time.Time) (*DaySchedule, error)

	InsertBooked(ctx context.Context, doctorID uuid.UUID, iv Interval) error
	// DeleteBooked removes a booked interval if present and reports
	// whether a row was removed.
	DeleteBooked(ctx context.Context, doctorID uuid.UUID, iv Interval) (bool, error)
}
