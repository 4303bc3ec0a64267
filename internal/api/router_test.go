package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/patient"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

type testEnv struct {
	server   *httptest.Server
	doctorID uuid.UUID
	day      time.Time
}

// newTestEnv runs the full stack over in-memory repositories with one
// doctor working tomorrow 09:00-17:00 with a lunch break.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zerolog.Nop()
	doctorID := uuid.New()
	day := availability.DayOf(time.Now().AddDate(0, 0, 1))

	calendar := availability.NewMemoryRepository()
	calendar.AddDaySchedule(availability.DaySchedule{
		DoctorID:  doctorID,
		Day:       day,
		WorkStart: day.Add(9 * time.Hour),
		WorkEnd:   day.Add(17 * time.Hour),
		Breaks: []availability.Interval{
			{Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour)},
		},
	})
	store := availability.NewStore(calendar, availability.NewKeyedLocker(), 30*time.Minute, log)

	ledgerRepo := ledger.NewMemoryRepository()
	ledgerRepo.SetReleaseFunc(func(doctorID uuid.UUID, start, end time.Time) {
		_ = store.Release(context.Background(), doctorID, start, end)
	})
	ledgerSvc := ledger.NewService(ledgerRepo, log)

	patientRepo := patient.NewMemoryRepository()
	directory := patient.NewDirectory(patientRepo, ledgerRepo, log)

	allocator := booking.NewAllocator(store, ledgerSvc, 14, 3, nil, log)

	scheduler := reminder.NewScheduler(
		reminder.NewMemoryRepository(),
		ledgerSvc,
		patientRepo,
		notify.NewLogDispatcher(log),
		reminder.SchedulerConfig{},
		nil,
		log,
	)
	ledgerSvc.SetReminderPlanner(scheduler)

	router := NewRouter(RouterConfig{
		Directory:    directory,
		Allocator:    allocator,
		Ledger:       ledgerSvc,
		Availability: store,
		Reminders:    scheduler,
		Logger:       log,
		Env:          "test",
		Version:      "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, doctorID: doctorID, day: day}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func bookingBody(e *testEnv) map[string]any {
	return map[string]any{
		"first_name":    "Maria",
		"last_name":     "Santos",
		"date_of_birth": "1985-06-12",
		"phone":         "5551234567",
		"email":         "maria.santos@example.com",
		"doctor_id":     e.doctorID.String(),
		"from":          e.day.Format("2006-01-02"),
		"insurance": map[string]any{
			"carrier":   "Acme Health",
			"member_id": "M-123",
		},
	}
}

func TestBookingFlow(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/bookings", bookingBody(e))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booked := decode[BookingResponse](t, resp)

	assert.Equal(t, "new", booked.Patient.Type)
	assert.Equal(t, 60, booked.Appointment.DurationMinutes)
	assert.Equal(t, "scheduled", booked.Appointment.State)
	assert.True(t, booked.Appointment.SlotStart.Equal(e.day.Add(9*time.Hour)))

	// Confirm plans the reminder timeline.
	resp = e.post(t, "/appointments/"+booked.Appointment.ID.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decode[AppointmentResponse](t, resp)
	assert.Equal(t, "confirmed", confirmed.State)

	resp = e.get(t, "/appointments/"+booked.Appointment.ID.String()+"/reminders")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reminders := decode[[]ReminderEventResponse](t, resp)
	assert.Len(t, reminders, 3)

	// Same identity books again: now a returning patient, 30 minutes.
	resp = e.post(t, "/bookings", bookingBody(e))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decode[BookingResponse](t, resp)
	assert.Equal(t, "returning", second.Patient.Type)
	assert.Equal(t, 30, second.Appointment.DurationMinutes)
	assert.Equal(t, booked.Patient.ID, second.Patient.ID)
}

func TestBookingValidationError(t *testing.T) {
	e := newTestEnv(t)

	body := bookingBody(e)
	body["phone"] = "123"
	resp := e.post(t, "/bookings", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelFreesSlot(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/bookings", bookingBody(e))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booked := decode[BookingResponse](t, resp)

	resp = e.post(t, "/appointments/"+booked.Appointment.ID.String()+"/cancel",
		map[string]any{"reason": "feeling better"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[AppointmentResponse](t, resp)
	assert.Equal(t, "cancelled", cancelled.State)

	// Cancelling again conflicts: terminal states are immutable.
	resp = e.post(t, "/appointments/"+booked.Appointment.ID.String()+"/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Availability shows the opening slot free again.
	resp = e.get(t, "/doctors/"+e.doctorID.String()+"/availability?date="+e.day.Format("2006-01-02"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	avail := decode[AvailabilityResponse](t, resp)
	require.NotEmpty(t, avail.FreeStarts)
	assert.True(t, avail.FreeStarts[0].Equal(e.day.Add(9*time.Hour)))
}

func TestAuditTrailEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/bookings", bookingBody(e))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booked := decode[BookingResponse](t, resp)

	id := booked.Appointment.ID.String()
	resp = e.post(t, "/appointments/"+id+"/confirm", nil)
	resp.Body.Close()
	// Invalid: completing before the slot ends.
	resp = e.post(t, "/appointments/"+id+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = e.get(t, "/appointments/"+id+"/audit")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]AuditEntryResponse](t, resp)
	require.Len(t, entries, 3)
	assert.Equal(t, "create", entries[0].EventType)
	assert.Equal(t, "confirm", entries[1].EventType)
	assert.Equal(t, "mark_completed", entries[2].EventType)
	assert.False(t, entries[2].Accepted)
}

func TestGetUnknownAppointment(t *testing.T) {
	e := newTestEnv(t)

	resp := e.get(t, "/appointments/"+uuid.NewString())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2 := e.get(t, "/appointments/not-a-uuid")
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestListAppointmentsByPatient(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/bookings", bookingBody(e))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	booked := decode[BookingResponse](t, resp)

	resp = e.get(t, "/appointments?patient_id="+booked.Patient.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	appts := decode[[]AppointmentResponse](t, resp)
	require.Len(t, appts, 1)
	assert.Equal(t, booked.Appointment.ID, appts[0].ID)

	resp = e.get(t, "/appointments?doctor_id=" + e.doctorID.String() + "&date=" + e.day.Format("2006-01-02"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byDoctor := decode[[]AppointmentResponse](t, resp)
	assert.Len(t, byDoctor, 1)
}

func TestHealthLiveness(t *testing.T) {
	e := newTestEnv(t)

	resp := e.get(t, "/health/live")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := decode[LivenessResponse](t, resp)
	assert.Equal(t, "ok", live.Status)
}
