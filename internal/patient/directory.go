package patient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AppointmentChecker answers whether the ledger already holds an
// appointment for a patient. The ledger repository satisfies this.
type AppointmentChecker interface {
	HasAppointments(ctx context.Context, patientID uuid.UUID) (bool, error)
}

// Lookup identifies a patient either directly or by demographic match.
type Lookup struct {
	PatientID   *uuid.UUID
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Phone       string
}

// Directory resolves a patient identity to new/returning and returns
// the profile. It creates profiles on first contact but never writes
// to the ledger.
type Directory struct {
	repo    Repository
	checker AppointmentChecker
	now     func() time.Time
	log     zerolog.Logger
}

func NewDirectory(repo Repository, checker AppointmentChecker, log zerolog.Logger) *Directory {
	return &Directory{
		repo:    repo,
		checker: checker,
		now:     time.Now,
		log:     log,
	}
}

// Classify finds or creates the patient profile and derives its type.
// A patient is returning iff a prior appointment exists for the
// identifier; a profile without appointments still classifies as new.
func (d *Directory) Classify(ctx context.Context, lookup Lookup, demo Demographics) (*Patient, error) {
	p, err := d.find(ctx, lookup)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}

	if p == nil {
		created, err := d.create(ctx, demo)
		if err != nil {
			return nil, err
		}
		created.Type = TypeNew
		return created, nil
	}

	has, err := d.checker.HasAppointments(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("check appointment history: %w", err)
	}
	if has {
		p.Type = TypeReturning
	} else {
		p.Type = TypeNew
	}
	return p, nil
}

func (d *Directory) find(ctx context.Context, lookup Lookup) (*Patient, error) {
	if lookup.PatientID != nil {
		return d.repo.GetByID(ctx, *lookup.PatientID)
	}

	if lookup.FirstName != "" && lookup.LastName != "" && !lookup.DateOfBirth.IsZero() {
		p, err := d.repo.FindByNameDOB(ctx, lookup.FirstName, lookup.LastName, lookup.DateOfBirth)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
	}

	if lookup.Phone != "" {
		return d.repo.FindByPhone(ctx, lookup.Phone)
	}

	return nil, ErrPatientNotFound
}

func (d *Directory) create(ctx context.Context, demo Demographics) (*Patient, error) {
	if err := validate(demo, d.now()); err != nil {
		return nil, err
	}

	p := &Patient{
		ID:          uuid.New(),
		FirstName:   strings.TrimSpace(demo.FirstName),
		LastName:    strings.TrimSpace(demo.LastName),
		DateOfBirth: demo.DateOfBirth,
		Phone:       demo.Phone,
		Email:       strings.ToLower(demo.Email),
		CreatedAt:   d.now(),
		UpdatedAt:   d.now(),
	}
	if demo.Address != "" {
		p.Address = &demo.Address
	}
	if demo.EmergencyContact != "" {
		p.EmergencyContact = &demo.EmergencyContact
	}
	if demo.EmergencyPhone != "" {
		p.EmergencyPhone = &demo.EmergencyPhone
	}

	if err := d.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	d.log.Info().
		Str("patient_id", p.ID.String()).
		Msg("patient profile created")

	return p, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validate(demo Demographics, now time.Time) error {
	if strings.TrimSpace(demo.FirstName) == "" || strings.TrimSpace(demo.LastName) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if demo.DateOfBirth.IsZero() || demo.DateOfBirth.After(now) {
		return fmt.Errorf("%w: date of birth is required and must be in the past", ErrValidation)
	}
	if countDigits(demo.Phone) < 10 {
		return fmt.Errorf("%w: phone number must have at least 10 digits", ErrValidation)
	}
	if !emailPattern.MatchString(demo.Email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
