package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/metrics"
)

type capturePlanner struct {
	planned []uuid.UUID
}

func (p *capturePlanner) Plan(_ context.Context, a *Appointment) error {
	p.planned = append(p.planned, a.ID)
	return nil
}

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, zerolog.Nop()), repo
}

func createScheduled(t *testing.T, svc *Service, start time.Time) uuid.UUID {
	t.Helper()
	doctorID := uuid.New()
	id, err := svc.Create(context.Background(), &Appointment{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Slot:      Slot{DoctorID: doctorID, Start: start, Duration: 30 * time.Minute},
	})
	require.NoError(t, err)
	return id
}

func TestCreateStartsScheduledWithAudit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id := createScheduled(t, svc, time.Now().Add(48*time.Hour))

	a, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, a.State)

	entries, err := svc.Audit(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "create", entries[0].EventType)
	assert.True(t, entries[0].Accepted)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, &Appointment{PatientID: uuid.New()})
	assert.ErrorIs(t, err, ErrValidation)

	doctorID := uuid.New()
	_, err = svc.Create(ctx, &Appointment{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Slot:      Slot{DoctorID: uuid.New(), Start: time.Now(), Duration: 30 * time.Minute},
	})
	assert.ErrorIs(t, err, ErrValidation, "slot doctor mismatch")
}

func TestConfirmTriggersReminderPlanning(t *testing.T) {
	svc, _ := newTestService(t)
	planner := &capturePlanner{}
	svc.SetReminderPlanner(planner)
	ctx := context.Background()

	id := createScheduled(t, svc, time.Now().Add(48*time.Hour))

	res, err := svc.Apply(ctx, id, Confirm())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.Appointment.State)
	assert.Equal(t, StateScheduled, res.Prior)
	assert.Equal(t, []uuid.UUID{id}, planner.planned)

	// A reminder response back to confirmed must not re-plan.
	_, err = svc.Apply(ctx, id, ReminderDispatched(Stage24h))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, id, ReminderResponse(Stage24h, ResponseConfirmed))
	require.NoError(t, err)
	assert.Len(t, planner.planned, 1)
}

func TestCancelReleasesInterval(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	type released struct {
		doctorID   uuid.UUID
		start, end time.Time
	}
	var got []released
	repo.SetReleaseFunc(func(doctorID uuid.UUID, start, end time.Time) {
		got = append(got, released{doctorID, start, end})
	})

	start := time.Now().Add(48 * time.Hour)
	id := createScheduled(t, svc, start)

	res, err := svc.Apply(ctx, id, Cancel("feeling better"))
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.Appointment.State)

	require.Len(t, got, 1)
	assert.Equal(t, res.Appointment.DoctorID, got[0].doctorID)
	assert.True(t, got[0].start.Equal(start))
	assert.True(t, got[0].end.Equal(start.Add(30*time.Minute)))
}

func TestRejectedTransitionIsAudited(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id := createScheduled(t, svc, time.Now().Add(48*time.Hour))

	// Completing a future scheduled appointment is invalid.
	_, err := svc.Apply(ctx, id, MarkCompleted())
	require.ErrorIs(t, err, ErrInvalidTransition)

	entries, err := svc.Audit(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	rejected := entries[1]
	assert.Equal(t, string(EventMarkCompleted), rejected.EventType)
	assert.False(t, rejected.Accepted)
	assert.Equal(t, StateScheduled, rejected.PriorState)
	assert.Equal(t, StateScheduled, rejected.NewState)

	// The rejection left the state untouched.
	a, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, a.State)
}

func TestApplyCountsTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	svc.SetMetrics(metrics.NewBookingMetrics(registry))

	id := createScheduled(t, svc, time.Now().Add(48*time.Hour))

	_, err := svc.Apply(ctx, id, Confirm())
	require.NoError(t, err)
	_, err = svc.Apply(ctx, id, MarkCompleted())
	require.ErrorIs(t, err, ErrInvalidTransition)

	counts := transitionCounts(t, registry)
	assert.Equal(t, float64(1), counts[string(EventConfirm)+"/true"])
	assert.Equal(t, float64(1), counts[string(EventMarkCompleted)+"/false"])
}

// transitionCounts flattens the transitions counter into
// "event/accepted" keys.
func transitionCounts(t *testing.T, g prometheus.Gatherer) map[string]float64 {
	t.Helper()

	families, err := g.Gather()
	require.NoError(t, err)

	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "clinic_ledger_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			counts[labels["event"]+"/"+labels["accepted"]] = m.GetCounter().GetValue()
		}
	}
	return counts
}

func TestCompleteAfterSlotEnd(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id := createScheduled(t, svc, time.Now().Add(-2*time.Hour))
	_, err := svc.Apply(ctx, id, Confirm())
	require.NoError(t, err)

	res, err := svc.Apply(ctx, id, MarkCompleted())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.Appointment.State)

	// Terminal now; further events are rejected and audited.
	_, err = svc.Apply(ctx, id, Cancel(""))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAuditTrailRecordsFullHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id := createScheduled(t, svc, time.Now().Add(-2*time.Hour))
	_, err := svc.Apply(ctx, id, Confirm())
	require.NoError(t, err)
	_, err = svc.Apply(ctx, id, MarkNoShow())
	require.NoError(t, err)

	entries, err := svc.Audit(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "create", entries[0].EventType)
	assert.Equal(t, string(EventConfirm), entries[1].EventType)
	assert.Equal(t, string(EventMarkNoShow), entries[2].EventType)
	assert.Equal(t, StateNoShow, entries[2].NewState)

	// Entries are strictly ordered.
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].ID, entries[i-1].ID)
	}
}

func TestListByPatientClampsLimit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	patientID := uuid.New()
	doctorID := uuid.New()
	for i := 0; i < 30; i++ {
		_, err := svc.Create(ctx, &Appointment{
			PatientID: patientID,
			DoctorID:  doctorID,
			Slot: Slot{
				DoctorID: doctorID,
				Start:    time.Now().Add(time.Duration(i+1) * time.Hour),
				Duration: 30 * time.Minute,
			},
		})
		require.NoError(t, err)
	}

	appts, err := svc.ListByPatient(ctx, patientID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 20, "default limit")

	appts, err = svc.ListByPatient(ctx, patientID, 500, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 30, "max limit clamps to 100, all 30 fit")

	has, err := repo.HasAppointments(ctx, patientID)
	require.NoError(t, err)
	assert.True(t, has)
}
