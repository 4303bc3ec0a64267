package ledger

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

const appointmentColumns = `id, patient_id, doctor_id, slot_start, slot_duration_minutes,
	insurance_carrier, insurance_member_id, insurance_group, state, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		durationMin int
		carrier     *string
		memberID    *string
		group       *string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Slot.Start,
		&durationMin,
		&carrier,
		&memberID,
		&group,
		&a.State,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Slot.DoctorID = a.DoctorID
	a.Slot.Duration = time.Duration(durationMin) * time.Minute
	if carrier != nil && memberID != nil {
		a.Insurance = &Insurance{
			Carrier:     *carrier,
			MemberID:    *memberID,
			GroupNumber: group,
		}
	}
	return &a, nil
}

func insuranceFields(a *Appointment) (carrier, memberID, group *string) {
	if a.Insurance == nil {
		return nil, nil, nil
	}
	return &a.Insurance.Carrier, &a.Insurance.MemberID, a.Insurance.GroupNumber
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	carrier, memberID, group := insuranceFields(a)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_start, slot_duration_minutes,
			insurance_carrier, insurance_member_id, insurance_group, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, a.ID, a.PatientID, a.DoctorID, a.Slot.Start, int(a.Slot.Duration.Minutes()),
		carrier, memberID, group, a.State)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasAppointments(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE patient_id = $1)
	`, patientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointments for patient: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY slot_start DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND slot_start >= $2
		  AND slot_start < $3
		ORDER BY slot_start
	`, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to State, entry AuditEntry) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := casState(ctx, tx, id, from, to)
	if err != nil {
		return nil, err
	}

	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return a, nil
}

func (r *PgRepository) CancelAndRelease(ctx context.Context, id uuid.UUID, from State, entry AuditEntry) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancellation: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := casState(ctx, tx, id, from, StateCancelled)
	if err != nil {
		return nil, err
	}

	if err := appendAuditTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	// Free the held interval in the same transaction; a missing row
	// means it was already released and is not an error.
	_, err = tx.Exec(ctx, `
		DELETE FROM booked_intervals
		WHERE doctor_id = $1 AND start_time = $2 AND end_time = $3
	`, a.DoctorID, a.Slot.Start, a.Slot.End())
	if err != nil {
		return nil, fmt.Errorf("release booked interval: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancellation: %w", err)
	}
	return a, nil
}

func casState(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to State) (*Appointment, error) {
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET state = $2,
		    updated_at = now()
		WHERE id = $1
		  AND state = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Either the row is gone or the state moved underneath us;
			// disambiguate so the service can retry.
			var exists bool
			if checkErr := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
			`, id).Scan(&exists); checkErr == nil && exists {
				return nil, ErrStateChanged
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) AppendAudit(ctx context.Context, entry AuditEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_audit (appointment_id, prior_state, new_state, event_type, accepted, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`, entry.AppointmentID, entry.PriorState, entry.NewState, entry.EventType,
		entry.Accepted, entry.Payload, nullableTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func appendAuditTx(ctx context.Context, tx pgx.Tx, entry AuditEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_audit (appointment_id, prior_state, new_state, event_type, accepted, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`, entry.AppointmentID, entry.PriorState, entry.NewState, entry.EventType,
		entry.Accepted, entry.Payload, nullableTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *PgRepository) ListAudit(ctx context.Context, appointmentID uuid.UUID) ([]AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, prior_state, new_state, event_type, accepted, payload, created_at
		FROM appointment_audit
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.PriorState, &e.NewState,
			&e.EventType, &e.Accepted, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
