// Package slots derives bookable slot windows from a doctor's working hours.
package slots

import (
	"fmt"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
)

// ScheduleInfo contains the schedule parameters for one working day.
type ScheduleInfo struct {
	StartTime string // "09:00"
	EndTime   string // "17:00"
	Duration  int    // minutes per slot
	Buffer    int    // minutes between slots
}

// FromRecord extracts the daily schedule of an availability record.
func FromRecord(r *model.AvailabilityRecord) ScheduleInfo {
	return ScheduleInfo{
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Duration:  r.AppointmentDuration,
		Buffer:    r.BufferTime,
	}
}

// Generate returns the day's slots in order, all marked available.
//
// A slot is emitted for every start strictly before EndTime, so the last
// slot may end after the working window closes.
func Generate(schedule ScheduleInfo) ([]model.TimeSlot, error) {
	if schedule.Duration <= 0 {
		schedule.Duration = model.DefaultAppointmentDuration
	}
	if schedule.Buffer < 0 {
		schedule.Buffer = 0
	}

	start, err := model.ParseClock(schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := model.ParseClock(schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	var out []model.TimeSlot
	for cursor := start; cursor < end; cursor += schedule.Duration + schedule.Buffer {
		out = append(out, model.TimeSlot{
			StartTime:   model.FormatClock(cursor),
			EndTime:     model.FormatClock(cursor + schedule.Duration),
			IsAvailable: true,
		})
	}
	return out, nil
}

// GenerateWeek builds the slot lists of every day the record works, Sunday first.
func GenerateWeek(r *model.AvailabilityRecord) ([]model.DaySlots, error) {
	schedule := FromRecord(r)
	daySlots, err := Generate(schedule)
	if err != nil {
		return nil, err
	}

	var week []model.DaySlots
	for _, day := range r.WorkingWeekdays() {
		cp := make([]model.TimeSlot, len(daySlots))
		copy(cp, daySlots)
		week = append(week, model.DaySlots{Day: day, Slots: cp})
	}
	return week, nil
}

// EndOf returns the end clock of a slot starting at clock.
func EndOf(clock string, duration int) (string, error) {
	start, err := model.ParseClock(clock)
	if err != nil {
		return "", err
	}
	if duration <= 0 {
		duration = model.DefaultAppointmentDuration
	}
	return model.FormatClock(start + duration), nil
}

// StartTimes lists the start clocks of slots.
func StartTimes(list []model.TimeSlot) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.StartTime)
	}
	return out
}

// Exclude drops slots whose start clock is in booked.
func Exclude(list []model.TimeSlot, booked map[string]bool) []model.TimeSlot {
	out := make([]model.TimeSlot, 0, len(list))
	for _, s := range list {
		if booked[s.StartTime] {
			continue
		}
		out = append(out, s)
	}
	return out
}
