package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/ledger"
	"github.com/hackgods/clinic-booking/internal/patient"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

type InsurancePayload struct {
	Carrier     string  `json:"carrier"`
	MemberID    string  `json:"member_id"`
	GroupNumber *string `json:"group_number,omitempty"`
}

type BookingRequest struct {
	// Identify an existing patient directly or by demographics.
	PatientID string `json:"patient_id,omitempty"`

	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`

	Address          string `json:"address,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty"`
	EmergencyPhone   string `json:"emergency_phone,omitempty"`

	DoctorID string `json:"doctor_id"`
	From     string `json:"from"`         // YYYY-MM-DD
	To       string `json:"to,omitempty"` // optional range end

	Insurance *InsurancePayload `json:"insurance,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ReminderResponseRequest struct {
	Response string `json:"response"` // confirmed | cancelled
}

type PatientResponse struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email,omitempty"`
	Type        string    `json:"type"`
}

type AppointmentResponse struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	DoctorID        uuid.UUID         `json:"doctor_id"`
	SlotStart       time.Time         `json:"slot_start"`
	SlotEnd         time.Time         `json:"slot_end"`
	DurationMinutes int               `json:"duration_minutes"`
	State           string            `json:"state"`
	Insurance       *InsurancePayload `json:"insurance,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type BookingResponse struct {
	Patient     PatientResponse     `json:"patient"`
	Appointment AppointmentResponse `json:"appointment"`
}

type AuditEntryResponse struct {
	ID            int64     `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PriorState    string    `json:"prior_state,omitempty"`
	NewState      string    `json:"new_state"`
	EventType     string    `json:"event_type"`
	Accepted      bool      `json:"accepted"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReminderEventResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Stage         string     `json:"stage"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	Attempts      int        `json:"attempts"`
	Status        string     `json:"status"`
	Response      string     `json:"response"`
}

type AvailabilityResponse struct {
	DoctorID        uuid.UUID   `json:"doctor_id"`
	Date            string      `json:"date"`
	DurationMinutes int         `json:"duration_minutes"`
	FreeStarts      []time.Time `json:"free_starts"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toPatientResponse(p *patient.Patient) PatientResponse {
	return PatientResponse{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth.Format("2006-01-02"),
		Phone:       p.Phone,
		Email:       p.Email,
		Type:        string(p.Type),
	}
}

func toAppointmentResponse(a *ledger.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		SlotStart:       a.Slot.Start,
		SlotEnd:         a.Slot.End(),
		DurationMinutes: int(a.Slot.Duration.Minutes()),
		State:           string(a.State),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.Insurance != nil {
		resp.Insurance = &InsurancePayload{
			Carrier:     a.Insurance.Carrier,
			MemberID:    a.Insurance.MemberID,
			GroupNumber: a.Insurance.GroupNumber,
		}
	}
	return resp
}

func toAuditResponse(entries []ledger.AuditEntry) []AuditEntryResponse {
	result := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, AuditEntryResponse{
			ID:            e.ID,
			AppointmentID: e.AppointmentID,
			PriorState:    string(e.PriorState),
			NewState:      string(e.NewState),
			EventType:     e.EventType,
			Accepted:      e.Accepted,
			CreatedAt:     e.CreatedAt,
		})
	}
	return result
}

func toReminderResponse(events []reminder.Event) []ReminderEventResponse {
	result := make([]ReminderEventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, ReminderEventResponse{
			ID:            e.ID,
			AppointmentID: e.AppointmentID,
			Stage:         string(e.Stage),
			ScheduledAt:   e.ScheduledAt,
			SentAt:        e.SentAt,
			Attempts:      e.Attempts,
			Status:        string(e.Status),
			Response:      string(e.Response),
		})
	}
	return result
}
