// Package api exposes the availability operations over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/availability"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/db"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/sweeper"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SlotService is the availability side the handlers call.
type SlotService interface {
	GetAvailability(ctx context.Context, doctorID string) (*model.AvailabilityRecord, error)
	SaveAvailability(ctx context.Context, r *model.AvailabilityRecord) error
	AvailableSlots(ctx context.Context, doctorID, date string) (availability.Result, error)
	CheckSlot(ctx context.Context, doctorID, date, clock string) (availability.Result, error)
	ReserveSlot(ctx context.Context, doctorID, date, clock string) (availability.Result, error)
	ConfirmSlot(ctx context.Context, doctorID, date, clock string) error
	ReleaseSlot(ctx context.Context, doctorID, date, clock string) error
	GenerateTimeSlots(ctx context.Context, doctorID string) ([]model.DaySlots, error)
	AppointmentStats(ctx context.Context, doctorID string) (availability.WeeklyStats, error)
}

// SweepRunner triggers an immediate status sweep.
type SweepRunner interface {
	RunNow(ctx context.Context) (sweeper.Summary, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	APIKey      string
	RateLimit   float64
	RateBurst   int
	ReadTimeout time.Duration
}

// HTTPServer serves the scheduler API.
type HTTPServer struct {
	slots   SlotService
	sweeper SweepRunner
	apiKey  string
	limiter *rate.Limiter
	logger  *zerolog.Logger
	server  *http.Server
}

// NewHTTPServer builds the server. sweep may be nil when the sweeper is disabled.
func NewHTTPServer(slots SlotService, sweep SweepRunner, cfg Config, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	s := &HTTPServer{
		slots:   slots,
		sweeper: sweep,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
	return s
}

// Handler returns the routed API handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/doctors/{id}/availability", s.handleGetAvailability)
	mux.Handle("PUT /api/doctors/{id}/availability", s.limited(s.handleSaveAvailability))
	mux.HandleFunc("GET /api/doctors/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/doctors/{id}/slots/check", s.handleCheckSlot)
	mux.Handle("POST /api/doctors/{id}/slots/reserve", s.limited(s.handleReserve))
	mux.Handle("POST /api/doctors/{id}/slots/confirm", s.limited(s.handleConfirm))
	mux.Handle("POST /api/doctors/{id}/slots/release", s.limited(s.handleRelease))
	mux.Handle("POST /api/doctors/{id}/slots/generate", s.limited(s.handleGenerate))
	mux.HandleFunc("GET /api/doctors/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /api/doctors/{id}/stats.xlsx", s.handleStatsExport)
	mux.Handle("POST /api/sweeps/run", s.limited(s.handleRunSweep))

	return s.authenticate(mux)
}

// Start serves until ctx is done.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	})
}

// fail maps service errors onto HTTP statuses.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "availability not found")
	case errors.Is(err, availability.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidClock),
		errors.Is(err, model.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sweeper.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
