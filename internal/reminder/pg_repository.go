package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-booking/internal/ledger"
)

// DB is the slice of pgxpool.Pool the repository needs. Narrowed to an
// interface so a mock pool can stand in.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool DB
}

func NewPgRepository(pool DB) *PgRepository {
	return &PgRepository{pool: pool}
}

const eventColumns = `id, appointment_id, stage, scheduled_at, sent_at, attempts, status, response, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID,
		&e.AppointmentID,
		&e.Stage,
		&e.ScheduledAt,
		&e.SentAt,
		&e.Attempts,
		&e.Status,
		&e.Response,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) CreateBatch(ctx context.Context, events []Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reminder batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		// ON CONFLICT keeps a re-planned timeline from duplicating stages.
		_, err := tx.Exec(ctx, `
			INSERT INTO reminder_events (id, appointment_id, stage, scheduled_at, attempts, status, response, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (appointment_id, stage) DO NOTHING
		`, e.ID, e.AppointmentID, e.Stage, e.ScheduledAt, e.Attempts, e.Status, e.Response)
		if err != nil {
			return fmt.Errorf("insert reminder event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reminder batch: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByStage(ctx context.Context, appointmentID uuid.UUID, stage ledger.Stage) (*Event, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM reminder_events
		WHERE appointment_id = $1 AND stage = $2
	`, appointmentID, stage)
	return scanEvent(row)
}

func (r *PgRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM reminder_events
		WHERE appointment_id = $1
		ORDER BY scheduled_at, CASE stage WHEN '24h' THEN 0 WHEN '2h' THEN 1 ELSE 2 END
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *PgRepository) ListDue(ctx context.Context, now time.Time) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM reminder_events
		WHERE status = $1
		  AND scheduled_at <= $2
		ORDER BY scheduled_at, CASE stage WHEN '24h' THEN 0 WHEN '2h' THEN 1 ELSE 2 END
	`, StatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	var result []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateOne(ctx, `
		UPDATE reminder_events
		SET status = $2,
		    sent_at = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, StatusSent, at)
}

func (r *PgRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.updateOne(ctx, `
		UPDATE reminder_events
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, StatusFailed)
}

func (r *PgRepository) RecordAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE reminder_events
		SET attempts = attempts + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING attempts
	`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrReminderNotFound
		}
		return 0, fmt.Errorf("record reminder attempt: %w", err)
	}
	return attempts, nil
}

func (r *PgRepository) SetResponse(ctx context.Context, id uuid.UUID, resp ledger.Response) error {
	return r.updateOne(ctx, `
		UPDATE reminder_events
		SET response = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, resp)
}

func (r *PgRepository) CancelPending(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminder_events
		SET status = $2,
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = $3
	`, appointmentID, StatusCancelled, StatusPending)
	if err != nil {
		return fmt.Errorf("cancel pending reminders: %w", err)
	}
	return nil
}

func (r *PgRepository) updateOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update reminder event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}
