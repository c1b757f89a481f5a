package model

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied to new availability records.
const (
	DefaultAppointmentDuration   = 30
	DefaultBufferTime            = 10
	DefaultMaxAppointmentsPerDay = 10
	DefaultWeeklyHoliday         = Sunday
)

var ErrInvalidWindow = errors.New("invalid working window")

// TimeSlot is one cached slot of a weekday.
type TimeSlot struct {
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	IsAvailable   bool       `json:"is_available"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`
}

// OpenAt reports whether the slot can be booked at now.
// A reservation that has lapsed counts as open regardless of the flag.
func (s TimeSlot) OpenAt(now time.Time) bool {
	if s.ReservedUntil != nil {
		return !s.ReservedUntil.After(now)
	}
	return s.IsAvailable
}

// ReservationExpired reports whether the slot carries a hold that lapsed before now.
func (s TimeSlot) ReservationExpired(now time.Time) bool {
	return s.ReservedUntil != nil && !s.ReservedUntil.After(now)
}

// DaySlots is the cached slot list of one weekday.
type DaySlots struct {
	Day   Weekday    `json:"day"`
	Slots []TimeSlot `json:"slots"`
}

// Find returns the slot starting at clock, if cached.
func (d *DaySlots) Find(clock string) (*TimeSlot, bool) {
	for i := range d.Slots {
		if d.Slots[i].StartTime == clock {
			return &d.Slots[i], true
		}
	}
	return nil, false
}

// AvailabilityRecord is a doctor's schedule configuration plus the per-weekday slot cache.
type AvailabilityRecord struct {
	DoctorID              string           `json:"doctor_id"`
	WorkingDays           map[Weekday]bool `json:"working_days"`
	StartTime             string           `json:"start_time"`
	EndTime               string           `json:"end_time"`
	WeeklyHoliday         Weekday          `json:"weekly_holiday"`
	AppointmentDuration   int              `json:"appointment_duration"`
	BufferTime            int              `json:"buffer_time"`
	MaxAppointmentsPerDay int              `json:"max_appointments_per_day"`
	TimeSlots             []DaySlots       `json:"time_slots,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// NewAvailabilityRecord returns a record with default settings and no working days.
// BufferTime is only defaulted here, since zero is a valid buffer.
func NewAvailabilityRecord(doctorID string) *AvailabilityRecord {
	r := &AvailabilityRecord{DoctorID: doctorID, BufferTime: DefaultBufferTime}
	r.ApplyDefaults()
	return r
}

// ApplyDefaults fills zero-valued settings.
func (r *AvailabilityRecord) ApplyDefaults() {
	if r.WorkingDays == nil {
		r.WorkingDays = make(map[Weekday]bool, len(Weekdays))
	}
	for _, d := range Weekdays {
		if _, ok := r.WorkingDays[d]; !ok {
			r.WorkingDays[d] = false
		}
	}
	if r.WeeklyHoliday == "" {
		r.WeeklyHoliday = DefaultWeeklyHoliday
	}
	if r.AppointmentDuration <= 0 {
		r.AppointmentDuration = DefaultAppointmentDuration
	}
	if r.BufferTime < 0 {
		r.BufferTime = 0
	}
	if r.MaxAppointmentsPerDay <= 0 {
		r.MaxAppointmentsPerDay = DefaultMaxAppointmentsPerDay
	}
}

// Validate checks the working window and the holiday name.
func (r *AvailabilityRecord) Validate() error {
	if r.DoctorID == "" {
		return fmt.Errorf("doctor id is required")
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("%w: %s is not before %s", ErrInvalidWindow, r.StartTime, r.EndTime)
	}
	if r.WeeklyHoliday != "" && r.WeeklyHoliday.Index() < 0 {
		return fmt.Errorf("unknown weekly holiday %q", r.WeeklyHoliday)
	}
	for d := range r.WorkingDays {
		if d.Index() < 0 {
			return fmt.Errorf("unknown working day %q", d)
		}
	}
	return nil
}

// WorksOn reports whether the doctor takes appointments on day.
// The weekly holiday wins over the working-day flag.
func (r *AvailabilityRecord) WorksOn(day Weekday) bool {
	if day == r.WeeklyHoliday {
		return false
	}
	return r.WorkingDays[day]
}

// WorkingWeekdays returns the days WorksOn accepts, Sunday first.
func (r *AvailabilityRecord) WorkingWeekdays() []Weekday {
	var days []Weekday
	for _, d := range Weekdays {
		if r.WorksOn(d) {
			days = append(days, d)
		}
	}
	return days
}

// SlotsFor returns the cached slot list of day, if any.
func (r *AvailabilityRecord) SlotsFor(day Weekday) (*DaySlots, bool) {
	for i := range r.TimeSlots {
		if r.TimeSlots[i].Day == day {
			return &r.TimeSlots[i], true
		}
	}
	return nil, false
}

// WithinHours reports whether clock falls in [StartTime, EndTime).
func (r *AvailabilityRecord) WithinHours(clock string) (bool, error) {
	at, err := ParseClock(clock)
	if err != nil {
		return false, err
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return false, fmt.Errorf("start time: %w", err)
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return false, fmt.Errorf("end time: %w", err)
	}
	return at >= start && at < end, nil
}
