package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

const dateLayout = "2006-01-02"

func createBookingHandler(directory *patient.Directory, allocator *booking.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		from, err := time.Parse(dateLayout, req.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}

		var to time.Time
		if req.To != "" {
			to, err = time.Parse(dateLayout, req.To)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
		}

		lookup, demo, err := intakeFields(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient", err.Error())
			return
		}

		p, err := directory.Classify(r.Context(), lookup, demo)
		if err != nil {
			handlePatientError(w, err)
			return
		}

		var ins *ledger.Insurance
		if req.Insurance != nil {
			ins = &ledger.Insurance{
				Carrier:     req.Insurance.Carrier,
				MemberID:    req.Insurance.MemberID,
				GroupNumber: req.Insurance.GroupNumber,
			}
		}

		appt, err := allocator.Book(r.Context(), booking.Request{
			Patient:   p,
			DoctorID:  doctorID,
			From:      from,
			To:        to,
			Insurance: ins,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Patient:     toPatientResponse(p),
			Appointment: toAppointmentResponse(appt),
		})
	}
}

func intakeFields(req BookingRequest) (patient.Lookup, patient.Demographics, error) {
	var lookup patient.Lookup

	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			return lookup, patient.Demographics{}, errors.New("patient_id must be a valid UUID")
		}
		lookup.PatientID = &id
	}

	var dob time.Time
	if req.DateOfBirth != "" {
		var err error
		dob, err = time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			return lookup, patient.Demographics{}, errors.New("date_of_birth must be YYYY-MM-DD")
		}
	}

	lookup.FirstName = req.FirstName
	lookup.LastName = req.LastName
	lookup.DateOfBirth = dob
	lookup.Phone = req.Phone

	demo := patient.Demographics{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DateOfBirth:      dob,
		Phone:            req.Phone,
		Email:            req.Email,
		Address:          req.Address,
		EmergencyContact: req.EmergencyContact,
		EmergencyPhone:   req.EmergencyPhone,
	}
	return lookup, demo, nil
}

func getAppointmentHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if pid := q.Get("patient_id"); pid != "" {
			patientID, err := uuid.Parse(pid)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			limit, _ := strconv.Atoi(q.Get("limit"))
			offset, _ := strconv.Atoi(q.Get("offset"))

			appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
			if err != nil {
				handleLedgerError(w, err)
				return
			}
			writeAppointments(w, appts)
			return
		}

		if did := q.Get("doctor_id"); did != "" {
			doctorID, err := uuid.Parse(did)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			day, err := time.Parse(dateLayout, q.Get("date"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}

			appts, err := svc.ListByDoctorDay(r.Context(), doctorID, day)
			if err != nil {
				handleLedgerError(w, err)
				return
			}
			writeAppointments(w, appts)
			return
		}

		writeError(w, http.StatusBadRequest, "missing_filter", "provide patient_id or doctor_id with date")
	}
}

func writeAppointments(w http.ResponseWriter, appts []ledger.Appointment) {
	result := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		result = append(result, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, result)
}

func transitionHandler(svc *ledger.Service, build func(r *http.Request) (ledger.Event, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		ev, err := build(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		res, err := svc.Apply(r.Context(), id, ev)
		if err != nil {
			handleLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(res.Appointment))
	}
}

func confirmEvent(*http.Request) (ledger.Event, error)  { return ledger.Confirm(), nil }
func completeEvent(*http.Request) (ledger.Event, error) { return ledger.MarkCompleted(), nil }
func noShowEvent(*http.Request) (ledger.Event, error)   { return ledger.MarkNoShow(), nil }

func cancelEvent(r *http.Request) (ledger.Event, error) {
	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return ledger.Event{}, errors.New("could not parse JSON")
		}
	}
	return ledger.Cancel(req.Reason), nil
}

func auditTrailHandler(svc *ledger.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		entries, err := svc.Audit(r.Context(), id)
		if err != nil {
			handleLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAuditResponse(entries))
	}
}

func availabilityHandler(store *availability.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		day, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		duration := booking.NewPatientDuration
		if pt := r.URL.Query().Get("patient_type"); pt != "" {
			duration = booking.DurationFor(patient.Type(pt))
		}

		starts, err := store.FreeStarts(r.Context(), doctorID, day, duration)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:        doctorID,
			Date:            day.Format(dateLayout),
			DurationMinutes: int(duration.Minutes()),
			FreeStarts:      starts,
		})
	}
}

func listRemindersHandler(sched *reminder.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		events, err := sched.Events(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toReminderResponse(events))
	}
}

func reminderResponseHandler(sched *reminder.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		stage := ledger.Stage(chi.URLParam(r, "stage"))
		switch stage {
		case ledger.Stage24h, ledger.Stage2h, ledger.Stage1h:
		default:
			writeError(w, http.StatusBadRequest, "invalid_stage", "stage must be 24h, 2h or 1h")
			return
		}

		var req ReminderResponseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		resp := ledger.Response(req.Response)
		if resp != ledger.ResponseConfirmed && resp != ledger.ResponseCancelled {
			writeError(w, http.StatusBadRequest, "invalid_response", "response must be confirmed or cancelled")
			return
		}

		if err := sched.RecordResponse(r.Context(), id, stage, resp); err != nil {
			handleReminderError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handlePatientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, patient.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_patient", err.Error())
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, availability.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrNoAvailability):
		writeError(w, http.StatusConflict, "no_availability", err.Error())
	case errors.Is(err, availability.ErrIntervalConflict),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_conflict", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, ledger.ErrStateChanged):
		writeError(w, http.StatusConflict, "state_changed", "appointment changed concurrently, please retry")
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, availability.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleReminderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reminder.ErrReminderNotFound):
		writeError(w, http.StatusNotFound, "reminder_not_found", err.Error())
	case errors.Is(err, ledger.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
