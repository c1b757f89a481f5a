package availability

import (
	"context"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/metrics"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/slots"
)

// AvailableSlots lists the bookable start times of a doctor on date.
//
// A cached day answers from its slot flags, after lapsed holds are reopened
// in storage. A day without cache is generated on the fly and not stored.
// Either way, times taken by approved or under-review appointments are removed.
func (s *Service) AvailableSlots(ctx context.Context, doctorID, date string) (Result, error) {
	date, weekday, err := s.weekdayOf(date)
	if err != nil {
		return Result{}, err
	}

	if s.cache != nil {
		var cached Result
		if s.cache.Get(ctx, doctorID, date, &cached) {
			metrics.IncSlotCache("hit")
			if cached.Reason == ReasonNotWorkingDay {
				cached.Slots = []string{}
				return cached, nil
			}
			// Appointments change without slot events, so bookings are
			// re-applied on every hit.
			booked, err := s.bookedSet(ctx, doctorID, date)
			if err != nil {
				return Result{}, err
			}
			return withSlots(cached.Slots, booked), nil
		}
		metrics.IncSlotCache("miss")
	}

	rec, err := s.store.GetAvailability(ctx, doctorID)
	if err != nil {
		return Result{}, err
	}
	if !rec.WorksOn(weekday) {
		res := deny(ReasonNotWorkingDay)
		res.Slots = []string{}
		s.remember(ctx, doctorID, date, res, 0)
		return res, nil
	}

	booked, err := s.bookedSet(ctx, doctorID, date)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	var (
		open   []model.TimeSlot
		maxAge time.Duration
	)
	if day, ok := rec.SlotsFor(weekday); ok {
		if err := s.clearExpired(ctx, doctorID, day, now); err != nil {
			return Result{}, err
		}
		for _, slot := range day.Slots {
			if slot.ReservedUntil != nil && slot.ReservedUntil.After(now) {
				if left := slot.ReservedUntil.Sub(now); maxAge == 0 || left < maxAge {
					maxAge = left
				}
			}
			if slot.OpenAt(now) {
				open = append(open, slot)
			}
		}
		open = slots.Exclude(open, booked)
	} else {
		generated, err := slots.Generate(slots.FromRecord(rec))
		if err != nil {
			return Result{}, err
		}
		open = slots.Exclude(generated, booked)
	}

	res := withSlots(slots.StartTimes(open), nil)
	s.remember(ctx, doctorID, date, res, maxAge)
	return res, nil
}

// bookedSet returns the start times held by approved or under-review
// appointments on date.
func (s *Service) bookedSet(ctx context.Context, doctorID, date string) (map[string]bool, error) {
	times, err := s.appts.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(times))
	for _, t := range times {
		booked[t] = true
	}
	return booked, nil
}

func withSlots(starts []string, booked map[string]bool) Result {
	open := make([]string, 0, len(starts))
	for _, t := range starts {
		if !booked[t] {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return Result{Reason: ReasonFullyBooked}
	}
	return Result{Available: true, Reason: ReasonOK, Slots: open}
}

// GetAvailableSlots is AvailableSlots without the reason tag.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	res, err := s.AvailableSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return res.Slots, nil
}

func (s *Service) remember(ctx context.Context, doctorID, date string, res Result, maxAge time.Duration) {
	if s.cache == nil {
		return
	}
	s.cache.Set(ctx, doctorID, date, res, maxAge)
}

// CheckSlot reports whether one start time can be booked.
//
// When the slot is cached its flag decides, and appointments are not
// consulted. Otherwise an approved or under-review appointment at that
// time makes it booked.
func (s *Service) CheckSlot(ctx context.Context, doctorID, date, clock string) (Result, error) {
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
		return deny(ReasonNotWorkingDay), nil
	}
	within, err := rec.WithinHours(clock)
	if err != nil {
		return Result{}, err
	}
	if !within {
		return deny(ReasonOutsideHours), nil
	}

	if day, ok := rec.SlotsFor(weekday); ok {
		if slot, found := day.Find(clock); found {
			now := s.now()
			if slot.ReservationExpired(now) {
				if err := s.clearExpired(ctx, doctorID, day, now); err != nil {
					return Result{}, err
				}
				return okResult(), nil
			}
			if !slot.IsAvailable {
				return deny(ReasonUnavailable), nil
			}
			return okResult(), nil
		}
	}

	conflict, err := s.appts.HasConflict(ctx, doctorID, date, clock)
	if err != nil {
		return Result{}, err
	}
	if conflict {
		return deny(ReasonBooked), nil
	}
	return okResult(), nil
}

// IsAvailable is CheckSlot without the reason tag.
func (s *Service) IsAvailable(ctx context.Context, doctorID, date, clock string) (bool, error) {
	res, err := s.CheckSlot(ctx, doctorID, date, clock)
	if err != nil {
		return false, err
	}
	return res.Available, nil
}
