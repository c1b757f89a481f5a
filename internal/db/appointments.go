package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
)

const appointmentColumns = `id, doctor_id, patient_id, status, date, time, is_completed, completed_at, created_at, updated_at`

// CreateAppointment stores a new appointment. A missing ID is generated and
// a missing status defaults to pending.
func (db *DB) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	if a == nil {
		return fmt.Errorf("appointment is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unknown appointment status %q", a.Status)
	}
	if _, err := time.Parse(model.DateLayout, a.Date); err != nil {
		return fmt.Errorf("appointment date: %w", err)
	}
	clock, err := model.CanonicalClock(a.Time)
	if err != nil {
		return fmt.Errorf("appointment time: %w", err)
	}
	a.Time = clock

	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err = db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DoctorID, a.PatientID, string(a.Status), a.Date, a.Time,
		a.IsCompleted, toMillis(a.CompletedAt), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// GetAppointment returns an appointment by id.
func (db *DB) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

// BookedTimes returns the start clocks of the doctor's slot-occupying
// appointments on date.
func (db *DB) BookedTimes(ctx context.Context, doctorID, date string) ([]string, error) {
	query, args := withStatuses(`
		SELECT time FROM appointments
		WHERE doctor_id = ? AND date = ? AND status IN (%s)
		ORDER BY time`,
		[]any{doctorID, date}, model.BlockingStatuses)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// HasConflict reports whether a slot-occupying appointment exists at date and clock.
func (db *DB) HasConflict(ctx context.Context, doctorID, date, clock string) (bool, error) {
	query, args := withStatuses(`
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = ? AND date = ? AND time = ? AND status IN (%s)`,
		[]any{doctorID, date, clock}, model.BlockingStatuses)

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check conflict: %w", err)
	}
	return count > 0, nil
}

// CountApprovedByDate counts approved appointments per date within [from, to].
func (db *DB) CountApprovedByDate(ctx context.Context, doctorID, from, to string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, COUNT(*) FROM appointments
		WHERE doctor_id = ? AND status = ? AND date >= ? AND date <= ?
		GROUP BY date`,
		doctorID, string(model.StatusApproved), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("count approved: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			date  string
			count int
		)
		if err := rows.Scan(&date, &count); err != nil {
			return nil, err
		}
		counts[date] = count
	}
	return counts, rows.Err()
}

// ListByStatusUntil returns appointments in status dated on or before the given date.
func (db *DB) ListByStatusUntil(ctx context.Context, status model.AppointmentStatus, onOrBefore string) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE status = ? AND date <= ?
		ORDER BY date, time`,
		string(status), onOrBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s appointments: %w", status, err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// TransitionStatus moves an appointment from one status to another. The
// update only applies while the row is still in from, so a concurrent
// transition makes it report false instead of overwriting.
func (db *DB) TransitionStatus(ctx context.Context, id string, from, to model.AppointmentStatus, completedAt *time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if to == model.StatusCompleted {
		res, err = db.ExecContext(ctx, `
			UPDATE appointments
			SET status = ?, is_completed = 1, completed_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(to), toMillis(completedAt), time.Now(), id, string(from),
		)
	} else {
		res, err = db.ExecContext(ctx, `
			UPDATE appointments
			SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(to), time.Now(), id, string(from),
		)
	}
	if err != nil {
		return false, fmt.Errorf("transition appointment %s: %w", id, err)
	}
	return affected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var (
		a         model.Appointment
		status    string
		patientID sql.NullString
		completed sql.NullInt64
	)
	if err := row.Scan(
		&a.ID, &a.DoctorID, &patientID, &status, &a.Date, &a.Time,
		&a.IsCompleted, &completed, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = model.AppointmentStatus(status)
	a.PatientID = patientID.String
	a.CompletedAt = fromMillis(completed)
	return &a, nil
}

func withStatuses(query string, args []any, statuses []model.AppointmentStatus) (string, []any) {
	placeholders := make([]string, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	return fmt.Sprintf(query, strings.Join(placeholders, ", ")), args
}
