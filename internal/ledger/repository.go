package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrValidation          = errors.New("invalid appointment fields")
	// ErrStateChanged means the compare-and-set lost to a concurrent
	// transition; the caller reloads and re-applies.
	ErrStateChanged = errors.New("appointment state changed concurrently")
)

// Repository contains all ledger persistence. State writes are
// compare-and-set on the prior state so concurrent transitions on the
// same appointment serialize.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasAppointments(ctx context.Context, patientID uuid.UUID) (bool, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error)

	// UpdateState applies the CAS and appends the audit entry atomically.
	UpdateState(ctx context.Context, id uuid.UUID, from, to State, entry AuditEntry) (*Appointment, error)
	// CancelAndRelease additionally frees the booked interval held by
	// the appointment, in the same atomic step.
	CancelAndRelease(ctx context.Context, id uuid.UUID, from State, entry AuditEntry) (*Appointment, error)

	// AppendAudit records entries outside a state write, e.g. rejected
	// transitions. The trail is append-only.
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, appointmentID uuid.UUID) ([]AuditEntry, error)
}
