// Package sweeper moves appointments whose time has passed into their
// terminal status: approved ones become completed, and ones still under
// review are rejected.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/events"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/metrics"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultSchedule   = "@every 1h"
	DefaultStartDelay = 10 * time.Second
	DefaultGrace      = 30 * time.Minute
)

// ErrRunInProgress is returned when another sweep holds the run lock.
var ErrRunInProgress = errors.New("sweep already running")

// Store is the appointment storage the sweeper works on.
type Store interface {
	ListByStatusUntil(ctx context.Context, status model.AppointmentStatus, onOrBefore string) ([]model.Appointment, error)
	TransitionStatus(ctx context.Context, id string, from, to model.AppointmentStatus, completedAt *time.Time) (bool, error)
}

// Locker guards a sweep across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// Publisher receives transition events.
type Publisher interface {
	Publish(event events.Event)
}

// Options configures a Sweeper.
type Options struct {
	Schedule   string
	StartDelay time.Duration
	Grace      time.Duration
	Location   *time.Location
	Lock       Locker
	Events     Publisher
	Now        func() time.Time
}

// Summary reports the outcome of one sweep.
type Summary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Completed int           `json:"completed"`
	Rejected  int           `json:"rejected"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
}

// Sweeper runs status sweeps once or on a cron schedule.
type Sweeper struct {
	store    Store
	opts     Options
	schedule cron.Schedule
	logger   *zerolog.Logger

	run     sync.Mutex
	mu      sync.Mutex
	running bool
}

// New validates opts and returns a Sweeper.
func New(store Store, opts Options, logger *zerolog.Logger) (*Sweeper, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.StartDelay <= 0 {
		opts.StartDelay = DefaultStartDelay
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	schedule, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", opts.Schedule, err)
	}

	return &Sweeper{store: store, opts: opts, schedule: schedule, logger: logger}, nil
}

// Start runs a first sweep after the start delay and then follows the
// schedule until ctx is done. It blocks.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Str("schedule", s.opts.Schedule).Dur("start_delay", s.opts.StartDelay).Msg("status sweeper started")

	select {
	case <-time.After(s.opts.StartDelay):
		s.runScheduled(ctx)
	case <-ctx.Done():
		s.logger.Info().Msg("status sweeper stopped by context")
		return
	}

	c := cron.New(cron.WithLocation(s.opts.Location))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runScheduled(ctx) }))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("status sweeper stopped by context")
}

func (s *Sweeper) runScheduled(ctx context.Context) {
	summary, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info().Msg("sweep skipped, previous run still active")
	case err != nil:
		s.logger.Error().Err(err).Int("completed", summary.Completed).Int("rejected", summary.Rejected).Msg("sweep failed")
	}
}

// RunNow runs one sweep immediately.
func (s *Sweeper) RunNow(ctx context.Context) (Summary, error) {
	return s.RunOnce(ctx)
}

// RunOnce performs one sweep. Each appointment is moved with its own
// conditional update; a failure on one record is logged and the sweep goes on.
func (s *Sweeper) RunOnce(ctx context.Context) (summary Summary, err error) {
	if !s.run.TryLock() {
		metrics.IncSweepRun("skipped")
		return Summary{}, ErrRunInProgress
	}
	defer s.run.Unlock()

	if s.opts.Lock != nil {
		release, ok, lockErr := s.opts.Lock.Acquire(ctx)
		switch {
		case lockErr != nil:
			// Per-record updates are conditional; go on with the local lock only.
			s.logger.Warn().Err(lockErr).Msg("sweep lock unavailable, continuing")
		case !ok:
			metrics.IncSweepRun("skipped")
			return Summary{}, ErrRunInProgress
		default:
			defer func() {
				if relErr := release(context.Background()); relErr != nil {
					s.logger.Warn().Err(relErr).Msg("release sweep lock")
				}
			}()
		}
	}

	now := s.opts.Now()
	summary.StartedAt = now
	defer func() {
		summary.Duration = s.opts.Now().Sub(now)
		metrics.ObserveSweepDuration(summary.Duration.Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.IncSweepRun(result)
	}()

	today := model.StartOfDay(now, s.opts.Location).Format(model.DateLayout)

	if err = s.completeApproved(ctx, now, today, &summary); err != nil {
		return summary, err
	}
	if err = s.rejectUnderReview(ctx, now, today, &summary); err != nil {
		return summary, err
	}

	s.logger.Info().
		Int("completed", summary.Completed).
		Int("rejected", summary.Rejected).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("sweep finished")
	if s.opts.Events != nil {
		s.opts.Events.Publish(events.Event{Type: events.SweepCompleted})
	}
	return summary, nil
}

func (s *Sweeper) completeApproved(ctx context.Context, now time.Time, today string, summary *Summary) error {
	list, err := s.store.ListByStatusUntil(ctx, model.StatusApproved, today)
	if err != nil {
		return fmt.Errorf("list approved appointments: %w", err)
	}

	for i := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := &list[i]

		due, err := s.completionDue(a, now, today)
		if err != nil {
			summary.Failed++
			s.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("unreadable appointment time")
			continue
		}
		if !due {
			continue
		}
		if s.transition(ctx, a, model.StatusApproved, model.StatusCompleted, now, summary) {
			summary.Completed++
		}
	}
	return nil
}

// completionDue reports whether an approved appointment is over: it is on
// an earlier day, or today and the grace period after its start has passed.
func (s *Sweeper) completionDue(a *model.Appointment, now time.Time, today string) (bool, error) {
	day, err := model.ParseDate(a.Date, s.opts.Location)
	if err != nil {
		return false, err
	}
	date := day.Format(model.DateLayout)
	if date < today {
		return true, nil
	}
	if date > today {
		return false, nil
	}
	start, err := model.AtClock(day, a.Time)
	if err != nil {
		return false, err
	}
	return !now.Before(start.Add(s.opts.Grace)), nil
}

func (s *Sweeper) rejectUnderReview(ctx context.Context, now time.Time, today string, summary *Summary) error {
	list, err := s.store.ListByStatusUntil(ctx, model.StatusUnderReview, today)
	if err != nil {
		return fmt.Errorf("list under-review appointments: %w", err)
	}

	for i := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := &list[i]

		day, err := model.ParseDate(a.Date, s.opts.Location)
		if err != nil {
			summary.Failed++
			s.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("unreadable appointment date")
			continue
		}
		if !day.Before(now) {
			continue
		}
		if s.transition(ctx, a, model.StatusUnderReview, model.StatusRejected, now, summary) {
			summary.Rejected++
		}
	}
	return nil
}

// transition moves one appointment and reports whether this sweep moved it.
func (s *Sweeper) transition(ctx context.Context, a *model.Appointment, from, to model.AppointmentStatus, now time.Time, summary *Summary) bool {
	var completedAt *time.Time
	if to == model.StatusCompleted {
		completedAt = &now
	}

	moved, err := s.store.TransitionStatus(ctx, a.ID, from, to, completedAt)
	if err != nil {
		summary.Failed++
		s.logger.Error().Err(err).Str("appointment_id", a.ID).Str("to", string(to)).Msg("appointment transition failed")
		return false
	}
	if !moved {
		summary.Skipped++
		return false
	}

	metrics.IncSweepTransition(string(to))
	s.logger.Debug().Str("appointment_id", a.ID).Str("doctor_id", a.DoctorID).Str("to", string(to)).Msg("appointment transitioned")
	if s.opts.Events != nil {
		s.opts.Events.Publish(events.Event{
			Type:     events.AppointmentTransitioned,
			DoctorID: a.DoctorID,
			Date:     a.Date,
			Time:     a.Time,
		})
	}
	return true
}
