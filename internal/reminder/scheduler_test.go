package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/patient"
)

type stubDispatcher struct {
	mu            sync.Mutex
	failReminders bool
	sent          []notify.Request
}

func (d *stubDispatcher) Dispatch(_ context.Context, req notify.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failReminders && req.TemplateID != "dispatch_failed" {
		return errors.New("smtp down")
	}
	d.sent = append(d.sent, req)
	return nil
}

func (d *stubDispatcher) requests() []notify.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Request(nil), d.sent...)
}

type harness struct {
	scheduler  *Scheduler
	repo       *MemoryRepository
	ledger     *ledger.Service
	ledgerRepo *ledger.MemoryRepository
	dispatcher *stubDispatcher
	patients   *patient.MemoryRepository
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		repo:       NewMemoryRepository(),
		ledgerRepo: ledger.NewMemoryRepository(),
		dispatcher: &stubDispatcher{},
		patients:   patient.NewMemoryRepository(),
		now:        time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	h.ledger = ledger.NewService(h.ledgerRepo, zerolog.Nop())
	h.scheduler = NewScheduler(h.repo, h.ledger, h.patients, h.dispatcher, SchedulerConfig{
		DispatchTimeout: time.Second,
		MaxAttempts:     3,
		OpsRecipient:    "ops@example.com",
	}, nil, zerolog.Nop()).WithClock(func() time.Time { return h.now })
	h.ledger.SetReminderPlanner(h.scheduler)
	return h
}

// confirmedAppointment books and confirms an appointment starting the
// given distance in the future, which plans its reminder timeline.
func (h *harness) confirmedAppointment(t *testing.T, startIn time.Duration) uuid.UUID {
	t.Helper()

	p := &patient.Patient{
		ID:          uuid.New(),
		FirstName:   "Maria",
		LastName:    "Santos",
		DateOfBirth: time.Date(1985, 6, 12, 0, 0, 0, 0, time.UTC),
		Phone:       "5551234567",
		Email:       "maria.santos@example.com",
	}
	require.NoError(t, h.patients.Create(context.Background(), p))

	doctorID := uuid.New()
	id, err := h.ledger.Create(context.Background(), &ledger.Appointment{
		PatientID: p.ID,
		DoctorID:  doctorID,
		Slot: ledger.Slot{
			DoctorID: doctorID,
			Start:    h.now.Add(startIn),
			Duration: 30 * time.Minute,
		},
	})
	require.NoError(t, err)

	_, err = h.ledger.Apply(context.Background(), id, ledger.Confirm())
	require.NoError(t, err)
	return id
}

func TestPlanCreatesThreeStages(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedAppointment(t, 48*time.Hour)

	events, err := h.repo.ListByAppointment(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 3)

	start := h.now.Add(48 * time.Hour)
	byStage := make(map[ledger.Stage]Event)
	for _, e := range events {
		byStage[e.Stage] = e
		assert.Equal(t, StatusPending, e.Status)
	}
	assert.True(t, byStage[ledger.Stage24h].ScheduledAt.Equal(start.Add(-24*time.Hour)))
	assert.True(t, byStage[ledger.Stage2h].ScheduledAt.Equal(start.Add(-2*time.Hour)))
	assert.True(t, byStage[ledger.Stage1h].ScheduledAt.Equal(start.Add(-time.Hour)))
}

func TestPlanClampsPastStagesToNow(t *testing.T) {
	h := newHarness(t)
	// 90 minutes out: the 24h and 2h offsets already passed.
	id := h.confirmedAppointment(t, 90*time.Minute)

	events, err := h.repo.ListByAppointment(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for _, e := range events {
		switch e.Stage {
		case ledger.Stage24h, ledger.Stage2h:
			assert.True(t, e.ScheduledAt.Equal(h.now), "stage %s clamped to now", e.Stage)
		case ledger.Stage1h:
			assert.True(t, e.ScheduledAt.Equal(h.now.Add(30*time.Minute)))
		}
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedAppointment(t, 48*time.Hour)

	appt, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, h.scheduler.Plan(context.Background(), appt))

	events, err := h.repo.ListByAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, events, 3, "re-planning must not duplicate stages")
}

func TestTickDispatchesDueStages(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedAppointment(t, 90*time.Minute)

	sent, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "24h and 2h stages are due, 1h is not")

	reqs := h.dispatcher.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"reminder_24h", "reminder_2h"}, templateIDs(reqs))
	assert.Equal(t, "maria.santos@example.com", reqs[0].Recipient)

	// The ledger saw the dispatch.
	appt, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateReminderSent, appt.State)

	// A second tick over the same window sends nothing new.
	sent, err = h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, h.dispatcher.requests(), 2)

	// Advance past the 1h mark; only that stage fires.
	h.now = h.now.Add(31 * time.Minute)
	sent, err = h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func templateIDs(reqs []notify.Request) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.TemplateID
	}
	return ids
}

// A last-minute confirmation clamps every stage to the same instant;
// dispatch still runs 24h, then 2h, then 1h.
func TestTickClampedStagesKeepDispatchOrder(t *testing.T) {
	h := newHarness(t)
	h.confirmedAppointment(t, 30*time.Minute)

	sent, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	reqs := h.dispatcher.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"reminder_24h", "reminder_2h", "reminder_1h"}, templateIDs(reqs))
}

func TestTickRetriesThenFailsWithOpsAlert(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedAppointment(t, 90*time.Minute)
	h.dispatcher.failReminders = true

	// Three ticks exhaust the attempt budget for both due stages.
	for i := 0; i < 3; i++ {
		sent, err := h.scheduler.Tick(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
	}

	ev, err := h.repo.GetByStage(context.Background(), id, ledger.Stage24h)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.Status)
	assert.Equal(t, 3, ev.Attempts)

	// Each exhausted stage raised one operator alert.
	var alerts int
	for _, req := range h.dispatcher.requests() {
		if req.TemplateID == "dispatch_failed" {
			alerts++
			assert.Equal(t, "ops@example.com", req.Recipient)
		}
	}
	assert.Equal(t, 2, alerts)

	// Failed stages are never retried.
	sent, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestTickCancelsStagesOfResolvedAppointments(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedAppointment(t, 90*time.Minute)

	_, err := h.ledger.Apply(context.Background(), id, ledger.Cancel("patient called"))
	require.NoError(t, err)

	sent, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, h.dispatcher.requests())

	events, err := h.repo.ListByAppointment(context.Background(), id)
	require.NoError(t, err)
	for _, e := range events {
		assert.Equal(t, StatusCancelled, e.Status)
	}
}

func TestRecordResponseConfirm(t *testing.T) {
	h := newHarness(t)
	id := h.confirmedAppointment(t, 90*time.Minute)

	_, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)

	err = h.scheduler.RecordResponse(context.Background(), id, ledger.Stage24h, ledger.ResponseConfirmed)
	require.NoError(t, err)

	ev, err := h.repo.GetByStage(context.Background(), id, ledger.Stage24h)
	require.NoError(t, err)
	assert.Equal(t, ledger.ResponseConfirmed, ev.Response)

	appt, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateConfirmed, appt.State)

	// Later stages stay pending and still fire.
	pending, err := h.repo.GetByStage(context.Background(), id, ledger.Stage1h)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status)
}

func TestRecordResponseCancelStopsTimeline(t *testing.T) {
	h := newHarness(t)
	released := 0
	h.ledgerRepo.SetReleaseFunc(func(doctorID uuid.UUID, start, end time.Time) {
		released++
	})
	id := h.confirmedAppointment(t, 90*time.Minute)

	_, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)

	err = h.scheduler.RecordResponse(context.Background(), id, ledger.Stage24h, ledger.ResponseCancelled)
	require.NoError(t, err)

	appt, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCancelled, appt.State)
	assert.Equal(t, 1, released, "cancelling via a reminder response frees the slot")

	// The 1h stage is cancelled, not dispatched.
	h.now = h.now.Add(45 * time.Minute)
	sent, err := h.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)

	ev, err := h.repo.GetByStage(context.Background(), id, ledger.Stage1h)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ev.Status)
}

func TestRecordResponseUnknownStage(t *testing.T) {
	h := newHarness(t)
	h.confirmedAppointment(t, 90*time.Minute)

	err := h.scheduler.RecordResponse(context.Background(), uuid.New(), ledger.Stage24h, ledger.ResponseConfirmed)
	assert.ErrorIs(t, err, ErrReminderNotFound)
}
