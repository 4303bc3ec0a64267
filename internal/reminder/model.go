package reminder

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/ledger"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Event is one reminder stage for one appointment. Exactly three are
// created together when the appointment is confirmed.
type Event struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Stage         ledger.Stage
	ScheduledAt   time.Time
	SentAt        *time.Time
	Attempts      int
	Status        Status
	Response      ledger.Response
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
