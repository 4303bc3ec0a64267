package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReleaseFunc frees a booked calendar interval. The in-memory
// availability repository provides one at wiring time so cancellation
// behaves like the Postgres repository's single transaction.
type ReleaseFunc func(doctorID uuid.UUID, start, end time.Time)

type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	audit        []AuditEntry
	nextAuditID  int64
	release      ReleaseFunc
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]*Appointment),
		nextAuditID:  1,
	}
}

// SetReleaseFunc wires interval release into cancellation.
func (r *MemoryRepository) SetReleaseFunc(fn ReleaseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release = fn
}

func (r *MemoryRepository) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *a
	r.appointments[a.ID] = &copied
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *MemoryRepository) HasAppointments(_ context.Context, patientID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.appointments {
		if a.PatientID == patientID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Slot.Start.After(all[j].Slot.Start)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) ListByDoctorDay(_ context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	y, m, d := day.Date()
	var result []Appointment
	for _, a := range r.appointments {
		ay, am, ad := a.Slot.Start.Date()
		if a.DoctorID == doctorID && ay == y && am == m && ad == d {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot.Start.Before(result[j].Slot.Start)
	})
	return result, nil
}

func (r *MemoryRepository) UpdateState(_ context.Context, id uuid.UUID, from, to State, entry AuditEntry) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.casLocked(id, from, to, entry)
}

func (r *MemoryRepository) CancelAndRelease(_ context.Context, id uuid.UUID, from State, entry AuditEntry) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.casLocked(id, from, StateCancelled, entry)
	if err != nil {
		return nil, err
	}
	if r.release != nil {
		r.release(a.DoctorID, a.Slot.Start, a.Slot.End())
	}
	return a, nil
}

func (r *MemoryRepository) casLocked(id uuid.UUID, from, to State, entry AuditEntry) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.State != from {
		return nil, ErrStateChanged
	}

	a.State = to
	a.UpdatedAt = time.Now()
	r.appendAuditLocked(entry)

	copied := *a
	return &copied, nil
}

func (r *MemoryRepository) AppendAudit(_ context.Context, entry AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendAuditLocked(entry)
	return nil
}

func (r *MemoryRepository) appendAuditLocked(entry AuditEntry) {
	entry.ID = r.nextAuditID
	r.nextAuditID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.audit = append(r.audit, entry)
}

func (r *MemoryRepository) ListAudit(_ context.Context, appointmentID uuid.UUID) ([]AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []AuditEntry
	for _, e := range r.audit {
		if e.AppointmentID == appointmentID {
			result = append(result, e)
		}
	}
	return result, nil
}
