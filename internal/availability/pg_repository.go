package availability

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

func (r *PgRepository) GetDaySchedule(ctx context.Context, doctorID uuid.UUID, day time.Time) (*DaySchedule, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)
	`, doctorID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check doctor: %w", err)
	}
	if !exists {
		return nil, ErrDoctorNotFound
	}

	ds := DaySchedule{DoctorID: doctorID, Day: DayOf(day)}

	err = r.pool.QueryRow(ctx, `
		SELECT work_start, work_end
		FROM day_schedules
		WHERE doctor_id = $1 AND day = $2
	`, doctorID, ds.Day).Scan(&ds.WorkStart, &ds.WorkEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	ds.Breaks, err = r.queryIntervals(ctx, `
		SELECT start_time, end_time
		FROM schedule_breaks
		WHERE doctor_id = $1 AND day = $2
		ORDER BY start_time
	`, doctorID, ds.Day)
	if err != nil {
		return nil, fmt.Errorf("load breaks: %w", err)
	}

	ds.Booked, err = r.queryIntervals(ctx, `
		SELECT start_time, end_time
		FROM booked_intervals
		WHERE doctor_id = $1 AND day = $2
		ORDER BY start_time
	`, doctorID, ds.Day)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	return &ds, nil
}

func (r *PgRepository) queryIntervals(ctx context.Context, sql string, args ...any) ([]Interval, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertBooked(ctx context.Context, doctorID uuid.UUID, iv Interval) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booked_intervals (doctor_id, day, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, doctorID, DayOf(iv.Start), iv.Start, iv.End)
	if err != nil {
		return fmt.Errorf("insert booked interval: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteBooked(ctx context.Context, doctorID uuid.UUID, iv Interval) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM booked_intervals
		WHERE doctor_id = $1 AND start_time = $2 AND end_time = $3
	`, doctorID, iv.Start, iv.End)
	if err != nil {
		return false, fmt.Errorf("delete booked interval: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
