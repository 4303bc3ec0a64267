package patient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{patients: make(map[uuid.UUID]*Patient)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *MemoryRepository) FindByNameDOB(_ context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if strings.EqualFold(p.FirstName, firstName) &&
			strings.EqualFold(p.LastName, lastName) &&
			sameDay(p.DateOfBirth, dob) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) FindByPhone(_ context.Context, phone string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if p.Phone == phone {
			copied := *p
			return &copied, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *p
	r.patients[p.ID] = &copied
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
