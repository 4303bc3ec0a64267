package patient

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeNew       Type = "new"
	TypeReturning Type = "returning"
)

type Patient struct {
	ID               uuid.UUID
	FirstName        string
	LastName         string
	DateOfBirth      time.Time
	Phone            string
	Email            string
	Address          *string
	EmergencyContact *string
	EmergencyPhone   *string
	// Type is derived per session: returning iff the ledger holds a
	// prior appointment for this patient. Never persisted.
	Type      Type
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Demographics are the structured fields handed over by the intake
// collaborator when a patient is not on file yet.
type Demographics struct {
	FirstName        string
	LastName         string
	DateOfBirth      time.Time
	Phone            string
	Email            string
	Address          string
	EmergencyContact string
	EmergencyPhone   string
}
