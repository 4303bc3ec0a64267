package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppointment(state State, start time.Time) *Appointment {
	doctorID := uuid.New()
	return &Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Slot: Slot{
			DoctorID: doctorID,
			Start:    start,
			Duration: 30 * time.Minute,
		},
		State: state,
	}
}

func TestTransitionTable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-2 * time.Hour)

	tests := []struct {
		name    string
		state   State
		start   time.Time
		event   Event
		want    State
		wantErr bool
	}{
		{"confirm scheduled", StateScheduled, future, Confirm(), StateConfirmed, false},
		{"confirm twice", StateConfirmed, future, Confirm(), "", true},
		{"cancel scheduled", StateScheduled, future, Cancel("patient request"), StateCancelled, false},
		{"cancel confirmed", StateConfirmed, future, Cancel(""), StateCancelled, false},
		{"cancel reminder_sent", StateReminderSent, future, Cancel(""), StateCancelled, false},
		{"complete after slot", StateConfirmed, past, MarkCompleted(), StateCompleted, false},
		{"complete before slot", StateConfirmed, future, MarkCompleted(), "", true},
		{"complete from scheduled", StateScheduled, past, MarkCompleted(), "", true},
		{"no-show after slot", StateReminderSent, past, MarkNoShow(), StateNoShow, false},
		{"no-show before slot", StateConfirmed, future, MarkNoShow(), "", true},
		{"reminder from confirmed", StateConfirmed, future, ReminderDispatched(Stage24h), StateReminderSent, false},
		{"reminder re-entrant", StateReminderSent, future, ReminderDispatched(Stage2h), StateReminderSent, false},
		{"reminder from scheduled", StateScheduled, future, ReminderDispatched(Stage24h), "", true},
		{"response confirm", StateReminderSent, future, ReminderResponse(Stage24h, ResponseConfirmed), StateConfirmed, false},
		{"response cancel", StateReminderSent, future, ReminderResponse(Stage2h, ResponseCancelled), StateCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAppointment(tt.state, tt.start)
			got, err := Transition(a, tt.event, now)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	events := []Event{
		Confirm(),
		Cancel("too late"),
		MarkCompleted(),
		MarkNoShow(),
		ReminderDispatched(Stage1h),
		ReminderResponse(Stage1h, ResponseConfirmed),
	}

	for _, terminal := range []State{StateCancelled, StateCompleted, StateNoShow} {
		for _, ev := range events {
			a := testAppointment(terminal, now.Add(-time.Hour))
			_, err := Transition(a, ev, now)
			assert.ErrorIs(t, err, ErrInvalidTransition, "state %s event %s", terminal, ev.Kind)
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StateScheduled.Terminal())
	assert.False(t, StateConfirmed.Terminal())
	assert.False(t, StateReminderSent.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateNoShow.Terminal())
}

func TestStageOffsets(t *testing.T) {
	assert.Equal(t, []Stage{Stage24h, Stage2h, Stage1h}, Stages())
	assert.Equal(t, 24*time.Hour, Stage24h.Offset())
	assert.Equal(t, 2*time.Hour, Stage2h.Offset())
	assert.Equal(t, time.Hour, Stage1h.Offset())
}
