package availability

import (
	"time"

	"github.com/google/uuid"
)

// Interval is a half-open [Start, End) span on a doctor's calendar day.
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, duration time.Duration) Interval {
	return Interval{Start: start, End: start.Add(duration)}
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func (iv Interval) Within(outer Interval) bool {
	return !iv.Start.Before(outer.Start) && !iv.End.After(outer.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// DaySchedule is the slot grid for one doctor on one calendar day.
// Booked intervals never overlap each other and always lie inside the
// working window and outside breaks; Reserve enforces that invariant.
type DaySchedule struct {
	DoctorID  uuid.UUID
	Day       time.Time // midnight, date component only
	WorkStart time.Time
	WorkEnd   time.Time
	Breaks    []Interval
	Booked    []Interval
}

func (ds *DaySchedule) workWindow() Interval {
	return Interval{Start: ds.WorkStart, End: ds.WorkEnd}
}

// fits reports whether iv is inside working hours, clear of breaks and
// clear of every booked interval.
func (ds *DaySchedule) fits(iv Interval) bool {
	if !iv.Within(ds.workWindow()) {
		return false
	}
	for _, b := range ds.Breaks {
		if iv.Overlaps(b) {
			return false
		}
	}
	for _, b := range ds.Booked {
		if iv.Overlaps(b) {
			return false
		}
	}
	return true
}

// conflictsBooked reports whether iv overlaps an already booked interval.
func (ds *DaySchedule) conflictsBooked(iv Interval) bool {
	for _, b := range ds.Booked {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

// FreeStarts returns every grid-aligned start time where a contiguous
// free block of at least duration exists, in ascending order.
func (ds *DaySchedule) FreeStarts(duration, grid time.Duration) []time.Time {
	if duration <= 0 || grid <= 0 {
		return nil
	}

	var starts []time.Time
	for t := ds.WorkStart; !t.Add(duration).After(ds.WorkEnd); t = t.Add(grid) {
		if ds.fits(NewInterval(t, duration)) {
			starts = append(starts, t)
		}
	}
	return starts
}

// DayOf truncates t to its calendar day in t's location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
