package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps calendars in process memory. Used by tests and
// by the simulate binary when no Postgres is around.
type MemoryRepository struct {
	mu        sync.RWMutex
	doctors   map[uuid.UUID]bool
	schedules map[string]*DaySchedule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:   make(map[uuid.UUID]bool),
		schedules: make(map[string]*DaySchedule),
	}
}

func dayKey(doctorID uuid.UUID, day time.Time) string {
	return doctorID.String() + "|" + day.Format(time.DateOnly)
}

// AddDoctor registers a doctor without any schedule.
func (r *MemoryRepository) AddDoctor(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[id] = true
}

// AddDaySchedule registers a doctor-day working window with breaks.
func (r *MemoryRepository) AddDaySchedule(ds DaySchedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[ds.DoctorID] = true
	copied := ds
	copied.Day = DayOf(ds.Day)
	copied.Breaks = append([]Interval(nil), ds.Breaks...)
	copied.Booked = append([]Interval(nil), ds.Booked...)
	r.schedules[dayKey(ds.DoctorID, copied.Day)] = &copied
}

func (r *MemoryRepository) GetDaySchedule(_ context.Context, doctorID uuid.UUID, day time.Time) (*DaySchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.doctors[doctorID] {
		return nil, ErrDoctorNotFound
	}
	ds, ok := r.schedules[dayKey(doctorID, DayOf(day))]
	if !ok {
		return nil, ErrScheduleNotFound
	}

	copied := *ds
	copied.Breaks = append([]Interval(nil), ds.Breaks...)
	copied.Booked = append([]Interval(nil), ds.Booked...)
	return &copied, nil
}

func (r *MemoryRepository) InsertBooked(_ context.Context, doctorID uuid.UUID, iv Interval) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.schedules[dayKey(doctorID, DayOf(iv.Start))]
	if !ok {
		return ErrScheduleNotFound
	}
	ds.Booked = append(ds.Booked, iv)
	return nil
}

func (r *MemoryRepository) DeleteBooked(_ context.Context, doctorID uuid.UUID, iv Interval) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.schedules[dayKey(doctorID, DayOf(iv.Start))]
	if !ok {
		return false, nil
	}
	for i, b := range ds.Booked {
		if b.Start.Equal(iv.Start) && b.End.Equal(iv.End) {
			ds.Booked = append(ds.Booked[:i], ds.Booked[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
