package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, patient_id, site, start_time, end_time, duration_minutes,
	status, priority, confirmed_by_patient, notes, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Site,
		&a.Start,
		&a.End,
		&a.DurationMinutes,
		&a.Status,
		&a.Priority,
		&a.ConfirmedByPatient,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

func scanBlockedPeriod(row pgx.Row) (*BlockedPeriod, error) {
	var b BlockedPeriod
	var reason *string

	err := row.Scan(
		&b.ID,
		&b.Site,
		&b.Start,
		&b.End,
		&reason,
		&b.Restrictions,
	)
	if err != nil {
		return nil, err
	}

	if reason != nil {
		b.Reason = *reason
	}
	return &b, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// siteFilter turns SiteAll into a NULL argument so one query serves both cases.
func siteFilter(site Site) *string {
	if site == SiteAll || site == "" {
		return nil
	}
	s := string(site)
	return &s
}

// Interface methods

func (r *PgRepository) ListAppointments(ctx context.Context, site Site, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::text IS NULL OR site = $1)
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time, created_at
	`, siteFilter(site), from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListHistory(ctx context.Context, site Site) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::text IS NULL OR site = $1)
		ORDER BY start_time
	`, siteFilter(site))
	if err != nil {
		return nil, fmt.Errorf("list appointment history: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListBlockedPeriods(ctx context.Context, site Site, from, to time.Time) ([]BlockedPeriod, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, site, start_time, end_time, reason, restrictions
		FROM blocked_periods
		WHERE ($1::text IS NULL OR site = $1 OR site = 'all')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, siteFilter(site), from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocked periods: %w", err)
	}
	defer rows.Close()

	var result []BlockedPeriod
	for rows.Next() {
		b, err := scanBlockedPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// CreateAppointment inserts a. The partial unique index on (site, start_time)
// for active rows surfaces as ErrSlotTaken.
func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, site, start_time, end_time, duration_minutes,
			status, priority, confirmed_by_patient, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.Site, a.Start, a.End, a.DurationMinutes,
		a.Status, a.Priority, a.ConfirmedByPatient, nullableString(a.Notes))

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    confirmed_by_patient = confirmed_by_patient OR $2 = 'confirmed',
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
