package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const patientColumns = `id, first_name, last_name, date_of_birth, phone, email,
	address, emergency_contact, emergency_phone, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.DateOfBirth,
		&p.Phone,
		&p.Email,
		&p.Address,
		&p.EmergencyContact,
		&p.EmergencyPhone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) FindByNameDOB(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE lower(first_name) = lower($1)
		  AND lower(last_name) = lower($2)
		  AND date_of_birth = $3
	`, firstName, lastName, dob)
	return scanPatient(row)
}

func (r *PgRepository) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE phone = $1
	`, phone)
	return scanPatient(row)
}

func (r *PgRepository) Create(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, first_name, last_name, date_of_birth, phone, email,
			address, emergency_contact, emergency_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Phone, p.Email,
		p.Address, p.EmergencyContact, p.EmergencyPhone)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}
