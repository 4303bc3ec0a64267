package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/ledger"
)

var (
	ErrReminderNotFound = errors.New("no reminder event for that stage")
)

// Repository contains reminder event persistence. Creation is
// idempotent per (appointment, stage) so a repeated confirmation hook
// cannot duplicate the timeline.
type Repository interface {
	CreateBatch(ctx context.Context, events []Event) error
	GetByStage(ctx context.Context, appointmentID uuid.UUID, stage ledger.Stage) (*Event, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Event, error)

	// ListDue returns pending events whose scheduled time has elapsed,
	// ordered by scheduled time.
	ListDue(ctx context.Context, now time.Time) ([]Event, error)

	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	// RecordAttempt bumps the attempt counter and returns the new count.
	RecordAttempt(ctx context.Context, id uuid.UUID) (int, error)
	SetResponse(ctx context.Context, id uuid.UUID, resp ledger.Response) error

	// CancelPending cancels every still-pending event for the
	// appointment. Already sent or failed events are untouched.
	CancelPending(ctx context.Context, appointmentID uuid.UUID) error
}
