package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/patient"
)

var (
	// ErrNoAvailability is a business outcome, not a fault: no slot fits
	// within the look-ahead window (or retries ran out during a rush).
	ErrNoAvailability = errors.New("no availability within the look-ahead window")
)

const (
	NewPatientDuration       = 60 * time.Minute
	ReturningPatientDuration = 30 * time.Minute
)

// DurationFor maps patient type to appointment length.
func DurationFor(t patient.Type) time.Duration {
	if t == patient.TypeReturning {
		return ReturningPatientDuration
	}
	return NewPatientDuration
}

// Request is the structured booking request handed over by the intake
// collaborator, patient already classified.
type Request struct {
	Patient   *patient.Patient
	DoctorID  uuid.UUID
	From      time.Time // requested date
	To        time.Time // optional range end, zero means From only plus look-ahead
	Insurance *ledger.Insurance
}

// Allocator finds and reserves slots. It is the only path that calls
// Reserve, so interval writes have a single conceptual writer.
type Allocator struct {
	store     *availability.Store
	ledger    *ledger.Service
	lookAhead int
	retries   int
	metrics   *metrics.BookingMetrics
	log       zerolog.Logger
}

func NewAllocator(store *availability.Store, ledgerSvc *ledger.Service, lookAheadDays, retries int, m *metrics.BookingMetrics, log zerolog.Logger) *Allocator {
	return &Allocator{
		store:     store,
		ledger:    ledgerSvc,
		lookAhead: lookAheadDays,
		retries:   retries,
		metrics:   m,
		log:       log,
	}
}

// Book reserves the earliest candidate slot for the request and records
// the appointment as scheduled. Losing a reservation race refreshes the
// candidate list and retries up to the bounded count.
func (a *Allocator) Book(ctx context.Context, req Request) (*ledger.Appointment, error) {
	if req.Patient == nil {
		return nil, fmt.Errorf("%w: patient is required", ledger.ErrValidation)
	}
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor is required", ledger.ErrValidation)
	}
	if req.From.IsZero() {
		return nil, fmt.Errorf("%w: requested date is required", ledger.ErrValidation)
	}

	duration := DurationFor(req.Patient.Type)
	firstDay := availability.DayOf(req.From)
	lastDay := a.lastSearchDay(firstDay, req.To)

	for attempt := 0; attempt <= a.retries; attempt++ {
		start, err := a.earliestCandidate(ctx, req.DoctorID, firstDay, lastDay, duration)
		if err != nil {
			a.metrics.ObserveBooking("error")
			return nil, err
		}
		if start.IsZero() {
			a.metrics.ObserveBooking("no_availability")
			return nil, ErrNoAvailability
		}

		err = a.store.Reserve(ctx, req.DoctorID, availability.NewInterval(start, duration))
		if errors.Is(err, availability.ErrIntervalConflict) {
			// Lost the race; candidates are stale, refresh and go again.
			a.metrics.ObserveConflict()
			a.log.Debug().
				Str("doctor_id", req.DoctorID.String()).
				Time("start", start).
				Int("attempt", attempt+1).
				Msg("reservation conflict, retrying")
			continue
		}
		if err != nil {
			a.metrics.ObserveBooking("error")
			return nil, fmt.Errorf("reserve slot: %w", err)
		}

		appt := &ledger.Appointment{
			PatientID: req.Patient.ID,
			DoctorID:  req.DoctorID,
			Slot: ledger.Slot{
				DoctorID: req.DoctorID,
				Start:    start,
				Duration: duration,
			},
			Insurance: req.Insurance,
		}

		if _, err := a.ledger.Create(ctx, appt); err != nil {
			// The reservation must not outlive a failed ledger write.
			if relErr := a.store.Release(ctx, req.DoctorID, start, start.Add(duration)); relErr != nil {
				a.log.Error().
					Err(relErr).
					Str("doctor_id", req.DoctorID.String()).
					Time("start", start).
					Msg("failed to release interval after ledger error")
			}
			a.metrics.ObserveBooking("error")
			return nil, err
		}

		a.metrics.ObserveBooking("booked")
		a.log.Info().
			Str("appointment_id", appt.ID.String()).
			Str("patient_id", req.Patient.ID.String()).
			Str("doctor_id", req.DoctorID.String()).
			Time("start", start).
			Dur("duration", duration).
			Msg("appointment booked")

		return appt, nil
	}

	a.metrics.ObserveBooking("no_availability")
	return nil, ErrNoAvailability
}

func (a *Allocator) lastSearchDay(firstDay time.Time, to time.Time) time.Time {
	lastDay := firstDay.AddDate(0, 0, a.lookAhead-1)
	if !to.IsZero() {
		rangeEnd := availability.DayOf(to)
		if rangeEnd.Before(lastDay) {
			lastDay = rangeEnd
		}
	}
	return lastDay
}

// earliestCandidate walks forward day by day and returns the first free
// start, or the zero time when the whole window is full. Days without a
// published schedule are skipped; an unknown doctor is an error.
func (a *Allocator) earliestCandidate(ctx context.Context, doctorID uuid.UUID, firstDay, lastDay time.Time, duration time.Duration) (time.Time, error) {
	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		starts, err := a.store.FreeStarts(ctx, doctorID, day, duration)
		if err != nil {
			if errors.Is(err, availability.ErrScheduleNotFound) {
				continue
			}
			return time.Time{}, err
		}
		if len(starts) > 0 {
			return starts[0], nil
		}
	}
	return time.Time{}, nil
}
