package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/metrics"
)

const applyAttempts = 3

// ReminderPlanner creates the reminder timeline once an appointment
// reaches confirmed. The reminder scheduler satisfies this; the hook
// keeps the ledger free of a package cycle.
type ReminderPlanner interface {
	Plan(ctx context.Context, a *Appointment) error
}

// Result reports an applied transition.
type Result struct {
	Appointment *Appointment
	Prior       State
}

// Service owns every appointment record and is the single place state
// transitions are validated and applied.
type Service struct {
	repo    Repository
	planner ReminderPlanner
	metrics *metrics.BookingMetrics
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
		log:  log,
	}
}

// SetReminderPlanner wires the reminder scheduler in after both sides
// exist. Call once during startup.
func (s *Service) SetReminderPlanner(p ReminderPlanner) {
	s.planner = p
}

// SetMetrics wires transition counters in. A nil receiver on the
// metrics side makes this optional.
func (s *Service) SetMetrics(m *metrics.BookingMetrics) {
	s.metrics = m
}

// Create validates and persists a new appointment in state scheduled.
// The slot allocator is the only intended caller.
func (s *Service) Create(ctx context.Context, a *Appointment) (uuid.UUID, error) {
	if a == nil {
		return uuid.Nil, fmt.Errorf("%w: nil appointment", ErrValidation)
	}
	if a.PatientID == uuid.Nil || a.DoctorID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: patient and doctor are required", ErrValidation)
	}
	if a.Slot.Start.IsZero() || a.Slot.Duration <= 0 {
		return uuid.Nil, fmt.Errorf("%w: slot start and duration are required", ErrValidation)
	}
	if a.Slot.DoctorID != a.DoctorID {
		return uuid.Nil, fmt.Errorf("%w: slot doctor does not match appointment doctor", ErrValidation)
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.State = StateScheduled
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt

	if err := s.repo.Create(ctx, a); err != nil {
		return uuid.Nil, fmt.Errorf("create appointment: %w", err)
	}

	s.appendAudit(ctx, AuditEntry{
		AppointmentID: a.ID,
		PriorState:    "",
		NewState:      StateScheduled,
		EventType:     "create",
		Accepted:      true,
		CreatedAt:     a.CreatedAt,
	}, nil)

	return a.ID, nil
}

// Apply validates the event against the state machine and persists the
// transition. Cancellations release the held interval in the same
// atomic step. Concurrent transitions on the same appointment lose the
// state CAS and are re-applied against the fresh record.
func (s *Service) Apply(ctx context.Context, id uuid.UUID, ev Event) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt < applyAttempts; attempt++ {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		next, terr := Transition(a, ev, s.now())
		if terr != nil {
			s.metrics.ObserveTransition(string(ev.Kind), false)
			s.appendAudit(ctx, AuditEntry{
				AppointmentID: a.ID,
				PriorState:    a.State,
				NewState:      a.State,
				EventType:     string(ev.Kind),
				Accepted:      false,
				CreatedAt:     s.now(),
			}, &ev)
			return nil, terr
		}

		entry := AuditEntry{
			AppointmentID: a.ID,
			PriorState:    a.State,
			NewState:      next,
			EventType:     string(ev.Kind),
			Accepted:      true,
			CreatedAt:     s.now(),
			Payload:       eventPayload(&ev),
		}

		var updated *Appointment
		if next == StateCancelled {
			updated, err = s.repo.CancelAndRelease(ctx, a.ID, a.State, entry)
		} else {
			updated, err = s.repo.UpdateState(ctx, a.ID, a.State, next, entry)
		}
		if err != nil {
			if errors.Is(err, ErrStateChanged) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("apply %s: %w", ev.Kind, err)
		}

		s.metrics.ObserveTransition(string(ev.Kind), true)
		res := &Result{Appointment: updated, Prior: a.State}

		if ev.Kind == EventConfirm && s.planner != nil {
			if err := s.planner.Plan(ctx, updated); err != nil {
				return res, fmt.Errorf("plan reminders: %w", err)
			}
		}

		return res, nil
	}

	return nil, fmt.Errorf("apply %s: %w", ev.Kind, lastErr)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

func (s *Service) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListByDoctorDay(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

func (s *Service) Audit(ctx context.Context, appointmentID uuid.UUID) ([]AuditEntry, error) {
	entries, err := s.repo.ListAudit(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	return entries, nil
}

func (s *Service) appendAudit(ctx context.Context, entry AuditEntry, ev *Event) {
	if entry.Payload == nil {
		entry.Payload = eventPayload(ev)
	}
	if err := s.repo.AppendAudit(ctx, entry); err != nil {
		s.log.Error().
			Err(err).
			Str("appointment_id", entry.AppointmentID.String()).
			Str("event", entry.EventType).
			Msg("failed to append audit entry")
	}
}

func eventPayload(ev *Event) []byte {
	if ev == nil {
		return nil
	}
	payload := map[string]any{}
	if ev.Stage != "" {
		payload["stage"] = string(ev.Stage)
	}
	if ev.Response != "" {
		payload["response"] = string(ev.Response)
	}
	if ev.Reason != "" {
		payload["reason"] = ev.Reason
	}
	if len(payload) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
