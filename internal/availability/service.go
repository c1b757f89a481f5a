// Package availability answers slot queries for doctors and runs the
// reserve, confirm and release transitions on the per-weekday slot cache.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/events"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/metrics"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/slots"
	"github.com/rs/zerolog"
)

// DefaultReservationHold is how long a reserved slot stays held.
const DefaultReservationHold = 24 * time.Hour

var ErrInvalidDate = errors.New("invalid date")

// Store persists availability records and their slot cache.
type Store interface {
	GetAvailability(ctx context.Context, doctorID string) (*model.AvailabilityRecord, error)
	SaveAvailability(ctx context.Context, r *model.AvailabilityRecord) error
	ReplaceTimeSlots(ctx context.Context, doctorID string, week []model.DaySlots) error
	EnsureTimeSlots(ctx context.Context, doctorID string, week []model.DaySlots) error
	GetSlot(ctx context.Context, doctorID string, day model.Weekday, start string) (*model.TimeSlot, error)
	InsertSlot(ctx context.Context, doctorID string, day model.Weekday, s model.TimeSlot) (bool, error)
	HoldSlot(ctx context.Context, doctorID string, day model.Weekday, start string, now, until time.Time) (bool, error)
	ConfirmSlot(ctx context.Context, doctorID string, day model.Weekday, start string) (bool, error)
	ReleaseSlot(ctx context.Context, doctorID string, day model.Weekday, start string) (bool, error)
	ClearExpiredReservations(ctx context.Context, doctorID string, day model.Weekday, now time.Time) (int64, error)
}

// Appointments is the read side of the appointment collection.
type Appointments interface {
	BookedTimes(ctx context.Context, doctorID, date string) ([]string, error)
	HasConflict(ctx context.Context, doctorID, date, clock string) (bool, error)
	CountApprovedByDate(ctx context.Context, doctorID, from, to string) (map[string]int, error)
}

// SlotCache keeps computed slot lists for a short time.
type SlotCache interface {
	Get(ctx context.Context, doctorID, date string, out any) bool
	Set(ctx context.Context, doctorID, date string, val any, maxAge time.Duration)
}

// Publisher receives slot change events.
type Publisher interface {
	Publish(event events.Event)
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Location        *time.Location
	ReservationHold time.Duration
	Cache           SlotCache
	Events          Publisher
	Now             func() time.Time
}

// Service implements the availability operations.
type Service struct {
	store  Store
	appts  Appointments
	cache  SlotCache
	events Publisher
	loc    *time.Location
	hold   time.Duration
	now    func() time.Time
	logger *zerolog.Logger
}

// NewService wires a Service.
func NewService(store Store, appts Appointments, opts Options, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		store:  store,
		appts:  appts,
		cache:  opts.Cache,
		events: opts.Events,
		loc:    opts.Location,
		hold:   opts.ReservationHold,
		now:    opts.Now,
		logger: logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.hold <= 0 {
		s.hold = DefaultReservationHold
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location returns the time zone dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// GetAvailability returns a doctor's record with its slot cache.
func (s *Service) GetAvailability(ctx context.Context, doctorID string) (*model.AvailabilityRecord, error) {
	return s.store.GetAvailability(ctx, doctorID)
}

// SaveAvailability creates or updates a doctor's schedule settings.
func (s *Service) SaveAvailability(ctx context.Context, r *model.AvailabilityRecord) error {
	if err := s.store.SaveAvailability(ctx, r); err != nil {
		return err
	}
	s.publish(events.AvailabilitySaved, r.DoctorID, "", "")
	return nil
}

// GenerateTimeSlots rebuilds the whole slot cache from the record's
// settings. Existing holds and confirmations are discarded.
func (s *Service) GenerateTimeSlots(ctx context.Context, doctorID string) ([]model.DaySlots, error) {
	rec, err := s.store.GetAvailability(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	week, err := slots.GenerateWeek(rec)
	if err != nil {
		return nil, fmt.Errorf("generate slots: %w", err)
	}
	if err := s.store.ReplaceTimeSlots(ctx, doctorID, week); err != nil {
		return nil, err
	}

	total := 0
	for _, d := range week {
		total += len(d.Slots)
	}
	metrics.AddSlotsGenerated(total)
	s.logger.Info().Str("doctor_id", doctorID).Int("days", len(week)).Int("slots", total).Msg("time slots generated")
	s.publish(events.SlotsGenerated, doctorID, "", "")
	return week, nil
}

// weekdayOf parses a calendar date in the service time zone and returns it
// in "YYYY-MM-DD" form with its weekday. Only the canonical form may reach
// storage or the cache, where dates are compared as strings.
func (s *Service) weekdayOf(date string) (string, model.Weekday, error) {
	day, err := model.ParseDate(date, s.loc)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return day.Format(model.DateLayout), model.WeekdayOf(day), nil
}

func (s *Service) publish(eventType, doctorID, date, clock string) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{Type: eventType, DoctorID: doctorID, Date: date, Time: clock})
}

// clearExpired reopens lapsed holds of a cached day.
func (s *Service) clearExpired(ctx context.Context, doctorID string, day *model.DaySlots, now time.Time) error {
	expired := false
	for _, slot := range day.Slots {
		if slot.ReservationExpired(now) {
			expired = true
			break
		}
	}
	if !expired {
		return nil
	}

	n, err := s.store.ClearExpiredReservations(ctx, doctorID, day.Day, now)
	if err != nil {
		return err
	}
	metrics.AddExpiredReservations(n)
	s.logger.Debug().Str("doctor_id", doctorID).Str("day", string(day.Day)).Int64("cleared", n).Msg("expired reservations cleared")
	return nil
}
