package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/db"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/events"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/metrics"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/slots"
)

// ReserveSlot holds a start time for the reservation window.
//
// A working day that is not cached yet is materialized first. A time that
// has no cached slot gets one synthesized from the appointment duration.
// The hold itself is a single conditional write, so only one of several
// concurrent callers can win a slot.
func (s *Service) ReserveSlot(ctx context.Context, doctorID, date, clock string) (Result, error) {
	date, weekday, err := s.weekdayOf(date)
	if err != nil {
		return Result{}, err
	}
	if clock, err = model.CanonicalClock(clock); err != nil {
		return Result{}, err
	}

	rec, err := s.store.GetAvailability(ctx, doctorID)
	if err != nil {
		return Result{}, err
	}
	if !rec.WorksOn(weekday) {
		metrics.IncSlotOperation("reserve", string(ReasonNotWorkingDay))
		return deny(ReasonNotWorkingDay), nil
	}

	if _, ok := rec.SlotsFor(weekday); !ok {
		if err := s.materialize(ctx, rec); err != nil {
			return Result{}, err
		}
	}

	conflict, err := s.appts.HasConflict(ctx, doctorID, date, clock)
	if err != nil {
		return Result{}, err
	}
	if conflict {
		metrics.IncSlotOperation("reserve", string(ReasonBooked))
		return deny(ReasonBooked), nil
	}

	now := s.now()
	until := now.Add(s.hold)

	_, err = s.store.GetSlot(ctx, doctorID, weekday, clock)
	switch {
	case errors.Is(err, db.ErrSlotNotFound):
		end, err := slots.EndOf(clock, rec.AppointmentDuration)
		if err != nil {
			return Result{}, err
		}
		inserted, err := s.store.InsertSlot(ctx, doctorID, weekday, model.TimeSlot{
			StartTime:     clock,
			EndTime:       end,
			IsAvailable:   false,
			ReservedUntil: &until,
		})
		if err != nil {
			return Result{}, err
		}
		if inserted {
			return s.reserved(doctorID, date, clock, until), nil
		}
		// Someone inserted it first; compete for it below.
	case err != nil:
		return Result{}, err
	}

	held, err := s.store.HoldSlot(ctx, doctorID, weekday, clock, now, until)
	if err != nil {
		return Result{}, err
	}
	if !held {
		metrics.IncSlotOperation("reserve", string(ReasonUnavailable))
		return deny(ReasonUnavailable), nil
	}
	return s.reserved(doctorID, date, clock, until), nil
}

func (s *Service) reserved(doctorID, date, clock string, until time.Time) Result {
	metrics.IncSlotOperation("reserve", string(ReasonOK))
	s.logger.Info().Str("doctor_id", doctorID).Str("date", date).Str("time", clock).Time("reserved_until", until).Msg("slot reserved")
	s.publish(events.SlotReserved, doctorID, date, clock)

	res := okResult()
	res.ReservedUntil = &until
	return res
}

// materialize stores generated slots for every working day that has none.
// Cached days keep their slots and holds.
func (s *Service) materialize(ctx context.Context, rec *model.AvailabilityRecord) error {
	week, err := slots.GenerateWeek(rec)
	if err != nil {
		return fmt.Errorf("generate slots: %w", err)
	}

	var missing []model.DaySlots
	for _, d := range week {
		if _, ok := rec.SlotsFor(d.Day); !ok {
			missing = append(missing, d)
		}
	}
	if err := s.store.EnsureTimeSlots(ctx, rec.DoctorID, missing); err != nil {
		return err
	}
	s.logger.Debug().Str("doctor_id", rec.DoctorID).Int("days", len(missing)).Msg("slot cache materialized")
	return nil
}

// ConfirmSlot turns a slot into a permanent booking. A time without a
// cached slot is left alone.
func (s *Service) ConfirmSlot(ctx context.Context, doctorID, date, clock string) error {
	return s.settle(ctx, "confirm", doctorID, date, clock)
}

// ReleaseSlot makes a slot bookable again. A time without a cached slot is
// left alone.
func (s *Service) ReleaseSlot(ctx context.Context, doctorID, date, clock string) error {
	return s.settle(ctx, "release", doctorID, date, clock)
}

func (s *Service) settle(ctx context.Context, op, doctorID, date, clock string) error {
	date, weekday, err := s.weekdayOf(date)
	if err != nil {
		return err
	}
	if clock, err = model.CanonicalClock(clock); err != nil {
		return err
	}

	var (
		existed   bool
		eventType string
		msg       string
	)
	if op == "confirm" {
		existed, err = s.store.ConfirmSlot(ctx, doctorID, weekday, clock)
		eventType, msg = events.SlotConfirmed, "slot confirmed"
	} else {
		existed, err = s.store.ReleaseSlot(ctx, doctorID, weekday, clock)
		eventType, msg = events.SlotReleased, "slot released"
	}
	if err != nil {
		return err
	}

	if !existed {
		metrics.IncSlotOperation(op, "noop")
		s.logger.Debug().Str("doctor_id", doctorID).Str("date", date).Str("time", clock).Msg("no cached slot to " + op)
		return nil
	}
	metrics.IncSlotOperation(op, string(ReasonOK))
	s.logger.Info().Str("doctor_id", doctorID).Str("date", date).Str("time", clock).Msg(msg)
	s.publish(eventType, doctorID, date, clock)
	return nil
}
