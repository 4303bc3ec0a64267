package ledger

import (
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateScheduled    State = "scheduled"
	StateConfirmed    State = "confirmed"
	StateReminderSent State = "reminder_sent"
	StateCancelled    State = "cancelled"
	StateCompleted    State = "completed"
	StateNoShow       State = "no_show"
)

// Terminal reports whether no further transition is permitted.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateCompleted, StateNoShow:
		return true
	}
	return false
}

// Stage is one of the three fixed pre-appointment reminder points.
type Stage string

const (
	Stage24h Stage = "24h"
	Stage2h  Stage = "2h"
	Stage1h  Stage = "1h"
)

// Stages lists the reminder stages in dispatch order.
func Stages() []Stage {
	return []Stage{Stage24h, Stage2h, Stage1h}
}

// Offset returns how long before the slot start the stage fires.
func (s Stage) Offset() time.Duration {
	switch s {
	case Stage24h:
		return 24 * time.Hour
	case Stage2h:
		return 2 * time.Hour
	case Stage1h:
		return time.Hour
	}
	return 0
}

type Response string

const (
	ResponseNone      Response = "none"
	ResponseConfirmed Response = "confirmed"
	ResponseCancelled Response = "cancelled"
)

// Slot is the reserved interval on a doctor's calendar.
type Slot struct {
	DoctorID uuid.UUID
	Start    time.Time
	Duration time.Duration
}

func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

type Insurance struct {
	Carrier     string
	MemberID    string
	GroupNumber *string
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Slot      Slot
	Insurance *Insurance
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditEntry is one row of the append-only transition trail. Rejected
// transitions are recorded with Accepted=false and an unchanged state.
type AuditEntry struct {
	ID            int64
	AppointmentID uuid.UUID
	PriorState    State
	NewState      State
	EventType     string
	Accepted      bool
	Payload       []byte
	CreatedAt     time.Time
}
