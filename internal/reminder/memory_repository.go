package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/ledger"
)

// MemoryRepository is an in-process Repository for tests and local runs.
type MemoryRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]*Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[uuid.UUID]*Event)}
}

func (r *MemoryRepository) CreateBatch(_ context.Context, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		if r.findByStageLocked(e.AppointmentID, e.Stage) != nil {
			continue
		}
		cp := e
		r.events[e.ID] = &cp
	}
	return nil
}

func (r *MemoryRepository) GetByStage(_ context.Context, appointmentID uuid.UUID, stage ledger.Stage) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.findByStageLocked(appointmentID, stage)
	if e == nil {
		return nil, ErrReminderNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryRepository) findByStageLocked(appointmentID uuid.UUID, stage ledger.Stage) *Event {
	for _, e := range r.events {
		if e.AppointmentID == appointmentID && e.Stage == stage {
			return e
		}
	}
	return nil
}

func (r *MemoryRepository) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Event
	for _, e := range r.events {
		if e.AppointmentID == appointmentID {
			result = append(result, *e)
		}
	}
	sortByScheduledAt(result)
	return result, nil
}

func (r *MemoryRepository) ListDue(_ context.Context, now time.Time) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Event
	for _, e := range r.events {
		if e.Status == StatusPending && !e.ScheduledAt.After(now) {
			result = append(result, *e)
		}
	}
	sortByScheduledAt(result)
	return result, nil
}

// sortByScheduledAt orders by due time, earlier stage first when
// clamping put several stages on the same instant.
func sortByScheduledAt(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].ScheduledAt.Equal(events[j].ScheduledAt) {
			return events[i].ScheduledAt.Before(events[j].ScheduledAt)
		}
		return stageRank(events[i].Stage) < stageRank(events[j].Stage)
	})
}

func stageRank(stage ledger.Stage) int {
	for i, s := range ledger.Stages() {
		if s == stage {
			return i
		}
	}
	return len(ledger.Stages())
}

func (r *MemoryRepository) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(e *Event) {
		e.Status = StatusSent
		e.SentAt = &at
	})
}

func (r *MemoryRepository) MarkFailed(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(e *Event) {
		e.Status = StatusFailed
	})
}

func (r *MemoryRepository) RecordAttempt(_ context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.update(id, func(e *Event) {
		e.Attempts++
		attempts = e.Attempts
	})
	return attempts, err
}

func (r *MemoryRepository) SetResponse(_ context.Context, id uuid.UUID, resp ledger.Response) error {
	return r.update(id, func(e *Event) {
		e.Response = resp
	})
}

func (r *MemoryRepository) CancelPending(_ context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.AppointmentID == appointmentID && e.Status == StatusPending {
			e.Status = StatusCancelled
			e.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (r *MemoryRepository) update(id uuid.UUID, fn func(*Event)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return ErrReminderNotFound
	}
	fn(e)
	e.UpdatedAt = time.Now()
	return nil
}
