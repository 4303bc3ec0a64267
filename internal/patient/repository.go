package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrValidation      = errors.New("invalid patient fields")
)

// Repository contains the profile reads and writes needed by the Directory.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindByNameDOB(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error)
	FindByPhone(ctx context.Context, phone string) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
}
