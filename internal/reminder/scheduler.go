package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/patient"
)

// ContactLookup resolves a patient id to its profile for addressing.
// The patient repository satisfies this.
type ContactLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Scheduler derives reminder timelines from confirmed appointments,
// dispatches due stages on each tick and feeds responses back into the
// ledger. It decides when and what stage; sending is the dispatcher's job.
type Scheduler struct {
	repo            Repository
	ledger          *ledger.Service
	contacts        ContactLookup
	dispatcher      notify.Dispatcher
	dispatchTimeout time.Duration
	maxAttempts     int
	opsRecipient    string
	metrics         *metrics.BookingMetrics
	now             func() time.Time
	log             zerolog.Logger
}

type SchedulerConfig struct {
	DispatchTimeout time.Duration
	MaxAttempts     int
	OpsRecipient    string
}

func NewScheduler(repo Repository, ledgerSvc *ledger.Service, contacts ContactLookup, dispatcher notify.Dispatcher, cfg SchedulerConfig, m *metrics.BookingMetrics, log zerolog.Logger) *Scheduler {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Scheduler{
		repo:            repo,
		ledger:          ledgerSvc,
		contacts:        contacts,
		dispatcher:      dispatcher,
		dispatchTimeout: cfg.DispatchTimeout,
		maxAttempts:     cfg.MaxAttempts,
		opsRecipient:    cfg.OpsRecipient,
		metrics:         m,
		now:             time.Now,
		log:             log,
	}
}

// Plan creates the 24h/2h/1h timeline for a freshly confirmed
// appointment. A stage whose offset already passed is scheduled for
// right now rather than skipped.
func (s *Scheduler) Plan(ctx context.Context, a *ledger.Appointment) error {
	now := s.now()
	events := make([]Event, 0, 3)

	for _, stage := range ledger.Stages() {
		at := a.Slot.Start.Add(-stage.Offset())
		if at.Before(now) {
			at = now
		}
		events = append(events, Event{
			ID:            uuid.New(),
			AppointmentID: a.ID,
			Stage:         stage,
			ScheduledAt:   at,
			Status:        StatusPending,
			Response:      ledger.ResponseNone,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := s.repo.CreateBatch(ctx, events); err != nil {
		return fmt.Errorf("create reminder events: %w", err)
	}

	s.log.Info().
		Str("appointment_id", a.ID.String()).
		Time("slot_start", a.Slot.Start).
		Msg("reminder timeline planned")
	return nil
}

// Tick dispatches every due pending stage once. Re-running a tick over
// the same window is a no-op because only pending events are due, and
// events of appointments that went terminal are cancelled instead of
// sent. Returns the number of dispatched reminders.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	dispatched := 0
	for i := range due {
		ev := &due[i]
		if err := s.processDue(ctx, ev); err != nil {
			s.log.Error().
				Err(err).
				Str("appointment_id", ev.AppointmentID.String()).
				Str("stage", string(ev.Stage)).
				Msg("reminder dispatch failed")
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

func (s *Scheduler) processDue(ctx context.Context, ev *Event) error {
	appt, err := s.ledger.Get(ctx, ev.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	if appt.State.Terminal() {
		// The appointment resolved while the stage waited; never send.
		if err := s.repo.CancelPending(ctx, ev.AppointmentID); err != nil {
			return fmt.Errorf("cancel pending stages: %w", err)
		}
		s.metrics.ObserveReminder(string(ev.Stage), "cancelled")
		return nil
	}

	if err := s.dispatch(ctx, ev, appt); err != nil {
		return s.recordFailure(ctx, ev, err)
	}

	sentAt := s.now()
	if err := s.repo.MarkSent(ctx, ev.ID, sentAt); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	// Best effort: the ledger tracks that outreach began; a failure here
	// must not resend the reminder.
	if _, err := s.ledger.Apply(ctx, ev.AppointmentID, ledger.ReminderDispatched(ev.Stage)); err != nil {
		s.log.Warn().
			Err(err).
			Str("appointment_id", ev.AppointmentID.String()).
			Str("stage", string(ev.Stage)).
			Msg("could not record reminder dispatch in ledger")
	}

	s.metrics.ObserveReminder(string(ev.Stage), "sent")
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, ev *Event, appt *ledger.Appointment) error {
	p, err := s.contacts.GetByID(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("resolve patient contact: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	return s.dispatcher.Dispatch(dctx, notify.Request{
		Channel:    notify.ChannelEmail,
		Recipient:  p.Email,
		TemplateID: "reminder_" + string(ev.Stage),
		Payload: map[string]string{
			"patient_name":   p.FirstName + " " + p.LastName,
			"appointment_id": appt.ID.String(),
			"doctor_id":      appt.DoctorID.String(),
			"slot_start":     appt.Slot.Start.Format(time.RFC3339),
			"stage":          string(ev.Stage),
		},
	})
}

func (s *Scheduler) recordFailure(ctx context.Context, ev *Event, dispatchErr error) error {
	attempts, err := s.repo.RecordAttempt(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	if attempts < s.maxAttempts {
		// Stays pending; the next tick retries.
		s.metrics.ObserveReminder(string(ev.Stage), "retry")
		return fmt.Errorf("dispatch attempt %d/%d: %w", attempts, s.maxAttempts, dispatchErr)
	}

	if err := s.repo.MarkFailed(ctx, ev.ID); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	s.metrics.ObserveReminder(string(ev.Stage), "failed")
	s.alertOps(ctx, ev)
	return fmt.Errorf("dispatch gave up after %d attempts: %w", attempts, dispatchErr)
}

// alertOps surfaces an exhausted stage to the operator channel rather
// than dropping it silently.
func (s *Scheduler) alertOps(ctx context.Context, ev *Event) {
	if s.opsRecipient == "" {
		return
	}

	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	err := s.dispatcher.Dispatch(dctx, notify.Request{
		Channel:    notify.ChannelEmail,
		Recipient:  s.opsRecipient,
		TemplateID: "dispatch_failed",
		Payload: map[string]string{
			"appointment_id": ev.AppointmentID.String(),
			"stage":          string(ev.Stage),
		},
	})
	if err != nil {
		s.log.Error().
			Err(err).
			Str("appointment_id", ev.AppointmentID.String()).
			Str("stage", string(ev.Stage)).
			Msg("operator alert dispatch failed")
	}
}

// RecordResponse stores the patient's answer for a stage and forwards
// it to the ledger. A cancelled response also cancels every pending
// later stage so nothing more is dispatched.
func (s *Scheduler) RecordResponse(ctx context.Context, appointmentID uuid.UUID, stage ledger.Stage, resp ledger.Response) error {
	ev, err := s.repo.GetByStage(ctx, appointmentID, stage)
	if err != nil {
		return err
	}
	if ev.Status != StatusPending && ev.Status != StatusSent {
		return fmt.Errorf("%w: stage %s is %s", ErrReminderNotFound, stage, ev.Status)
	}

	if _, err := s.ledger.Apply(ctx, appointmentID, ledger.ReminderResponse(stage, resp)); err != nil {
		return err
	}

	if err := s.repo.SetResponse(ctx, ev.ID, resp); err != nil {
		return fmt.Errorf("set reminder response: %w", err)
	}

	if resp == ledger.ResponseCancelled {
		if err := s.repo.CancelPending(ctx, appointmentID); err != nil {
			return fmt.Errorf("cancel pending stages: %w", err)
		}
	}
	return nil
}

// Events lists the reminder timeline for an appointment.
func (s *Scheduler) Events(ctx context.Context, appointmentID uuid.UUID) ([]Event, error) {
	events, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list reminder events: %w", err)
	}
	return events, nil
}

// WithClock replaces the scheduler's clock, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}
