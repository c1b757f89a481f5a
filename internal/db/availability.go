package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
)

// GetAvailability loads a doctor's record together with its slot cache.
func (db *DB) GetAvailability(ctx context.Context, doctorID string) (*model.AvailabilityRecord, error) {
	var (
		r           model.AvailabilityRecord
		workingDays string
		holiday     string
	)
	err := db.QueryRowContext(ctx, `
		SELECT doctor_id, working_days, start_time, end_time, weekly_holiday,
		       appointment_duration, buffer_time, max_appointments_per_day, created_at, updated_at
		FROM availability
		WHERE doctor_id = ?`,
		doctorID,
	).Scan(
		&r.DoctorID, &workingDays, &r.StartTime, &r.EndTime, &holiday,
		&r.AppointmentDuration, &r.BufferTime, &r.MaxAppointmentsPerDay, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, doctorID)
	}
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}

	r.WeeklyHoliday = model.Weekday(holiday)
	if err := json.Unmarshal([]byte(workingDays), &r.WorkingDays); err != nil {
		return nil, fmt.Errorf("decode working days: %w", err)
	}
	r.ApplyDefaults()

	r.TimeSlots, err = db.listTimeSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) listTimeSlots(ctx context.Context, doctorID string) ([]model.DaySlots, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day, start_time, end_time, is_available, reserved_until
		FROM time_slots
		WHERE doctor_id = ?
		ORDER BY start_time`,
		doctorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	defer rows.Close()

	byDay := make(map[model.Weekday][]model.TimeSlot)
	for rows.Next() {
		var (
			day      string
			s        model.TimeSlot
			reserved sql.NullInt64
		)
		if err := rows.Scan(&day, &s.StartTime, &s.EndTime, &s.IsAvailable, &reserved); err != nil {
			return nil, err
		}
		s.ReservedUntil = fromMillis(reserved)
		byDay[model.Weekday(day)] = append(byDay[model.Weekday(day)], s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.DaySlots
	for _, d := range model.Weekdays {
		if list, ok := byDay[d]; ok {
			out = append(out, model.DaySlots{Day: d, Slots: list})
		}
	}
	return out, nil
}

// SaveAvailability creates or updates the schedule settings of a record.
// The slot cache is left untouched; regenerate it to apply new hours.
func (db *DB) SaveAvailability(ctx context.Context, r *model.AvailabilityRecord) error {
	if r == nil {
		return fmt.Errorf("availability record is nil")
	}
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return err
	}

	workingDays, err := json.Marshal(r.WorkingDays)
	if err != nil {
		return fmt.Errorf("encode working days: %w", err)
	}

	now := time.Now()
	_, err = db.ExecContext(ctx, `
		INSERT INTO availability (
			doctor_id, working_days, start_time, end_time, weekly_holiday,
			appointment_duration, buffer_time, max_appointments_per_day, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doctor_id) DO UPDATE SET
			working_days = excluded.working_days,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			weekly_holiday = excluded.weekly_holiday,
			appointment_duration = excluded.appointment_duration,
			buffer_time = excluded.buffer_time,
			max_appointments_per_day = excluded.max_appointments_per_day,
			updated_at = excluded.updated_at`,
		r.DoctorID, string(workingDays), r.StartTime, r.EndTime, string(r.WeeklyHoliday),
		r.AppointmentDuration, r.BufferTime, r.MaxAppointmentsPerDay, now, now,
	)
	if err != nil {
		return fmt.Errorf("save availability: %w", err)
	}
	return nil
}

// ReplaceTimeSlots overwrites a doctor's whole slot cache in one transaction.
func (db *DB) ReplaceTimeSlots(ctx context.Context, doctorID string, week []model.DaySlots) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM availability WHERE doctor_id = ?", doctorID).Scan(&exists); err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, doctorID)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM time_slots WHERE doctor_id = ?", doctorID); err != nil {
		return fmt.Errorf("clear time slots: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO time_slots (doctor_id, day, start_time, end_time, is_available, reserved_until)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range week {
		for _, s := range d.Slots {
			if _, err = stmt.ExecContext(ctx, doctorID, string(d.Day), s.StartTime, s.EndTime, s.IsAvailable, toMillis(s.ReservedUntil)); err != nil {
				return fmt.Errorf("insert slot %s %s: %w", d.Day, s.StartTime, err)
			}
		}
	}

	if _, err = tx.ExecContext(ctx, "UPDATE availability SET updated_at = ? WHERE doctor_id = ?", time.Now(), doctorID); err != nil {
		return fmt.Errorf("touch availability: %w", err)
	}

	return tx.Commit()
}

// EnsureTimeSlots inserts the given days' slots without touching slots that
// already exist, so concurrent callers converge on the same cache.
func (db *DB) EnsureTimeSlots(ctx context.Context, doctorID string, week []model.DaySlots) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO time_slots (doctor_id, day, start_time, end_time, is_available, reserved_until)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doctor_id, day, start_time) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range week {
		for _, s := range d.Slots {
			if _, err = stmt.ExecContext(ctx, doctorID, string(d.Day), s.StartTime, s.EndTime, s.IsAvailable, toMillis(s.ReservedUntil)); err != nil {
				return fmt.Errorf("insert slot %s %s: %w", d.Day, s.StartTime, err)
			}
		}
	}

	return tx.Commit()
}

// GetSlot returns one cached slot.
func (db *DB) GetSlot(ctx context.Context, doctorID string, day model.Weekday, start string) (*model.TimeSlot, error) {
	var (
		s        model.TimeSlot
		reserved sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT start_time, end_time, is_available, reserved_until
		FROM time_slots
		WHERE doctor_id = ? AND day = ? AND start_time = ?`,
		doctorID, string(day), start,
	).Scan(&s.StartTime, &s.EndTime, &s.IsAvailable, &reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	s.ReservedUntil = fromMillis(reserved)
	return &s, nil
}

// InsertSlot adds a slot unless one with the same start already exists.
// It reports whether the row was inserted.
func (db *DB) InsertSlot(ctx context.Context, doctorID string, day model.Weekday, s model.TimeSlot) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO time_slots (doctor_id, day, start_time, end_time, is_available, reserved_until)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(doctor_id, day, start_time) DO NOTHING`,
		doctorID, string(day), s.StartTime, s.EndTime, s.IsAvailable, toMillis(s.ReservedUntil),
	)
	if err != nil {
		return false, fmt.Errorf("insert slot: %w", err)
	}
	return affected(res)
}

// HoldSlot reserves a slot until the given instant, but only if the slot is
// still open at now. Check and write happen in one statement, so two
// concurrent holds on the same slot cannot both succeed.
func (db *DB) HoldSlot(ctx context.Context, doctorID string, day model.Weekday, start string, now, until time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE time_slots
		SET is_available = 0, reserved_until = ?
		WHERE doctor_id = ? AND day = ? AND start_time = ?
		AND (
			(reserved_until IS NULL AND is_available = 1)
			OR (reserved_until IS NOT NULL AND reserved_until <= ?)
		)`,
		until.UnixMilli(), doctorID, string(day), start, nowMs,
	)
	if err != nil {
		return false, fmt.Errorf("hold slot: %w", err)
	}
	return affected(res)
}

// ConfirmSlot turns a slot into a permanent booking. It reports whether a
// cached slot existed.
func (db *DB) ConfirmSlot(ctx context.Context, doctorID string, day model.Weekday, start string) (bool, error) {
	return db.setSlot(ctx, doctorID, day, start, false)
}

// ReleaseSlot makes a slot bookable again. It reports whether a cached slot existed.
func (db *DB) ReleaseSlot(ctx context.Context, doctorID string, day model.Weekday, start string) (bool, error) {
	return db.setSlot(ctx, doctorID, day, start, true)
}

func (db *DB) setSlot(ctx context.Context, doctorID string, day model.Weekday, start string, available bool) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE time_slots
		SET is_available = ?, reserved_until = NULL
		WHERE doctor_id = ? AND day = ? AND start_time = ?`,
		available, doctorID, string(day), start,
	)
	if err != nil {
		return false, fmt.Errorf("update slot: %w", err)
	}
	return affected(res)
}

// ClearExpiredReservations reopens every slot of the day whose hold lapsed at now.
func (db *DB) ClearExpiredReservations(ctx context.Context, doctorID string, day model.Weekday, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE time_slots
		SET is_available = 1, reserved_until = NULL
		WHERE doctor_id = ? AND day = ?
		AND reserved_until IS NOT NULL AND reserved_until <= ?`,
		doctorID, string(day), now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("clear expired reservations: %w", err)
	}
	return res.RowsAffected()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
