package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/availability"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/metrics"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/report"
)

// SlotRequest is the body of the reserve, confirm and release endpoints.
type SlotRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM
}

// SlotsResponse lists the free start times of a date.
type SlotsResponse struct {
	DoctorID  string              `json:"doctor_id"`
	Date      string              `json:"date"`
	Available bool                `json:"available"`
	Reason    availability.Reason `json:"reason"`
	Slots     []string            `json:"slots"`
}

// CheckResponse answers a single-slot check.
type CheckResponse struct {
	Date      string              `json:"date"`
	Time      string              `json:"time"`
	Available bool                `json:"available"`
	Reason    availability.Reason `json:"reason"`
}

// ReserveResponse is returned by the reserve endpoint.
type ReserveResponse struct {
	Success       bool                `json:"success"`
	Reason        availability.Reason `json:"reason"`
	ReservedUntil string              `json:"reserved_until,omitempty"`
}

// GET /api/doctors/{id}/availability
func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_availability")

	rec, err := s.slots.GetAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PUT /api/doctors/{id}/availability
func (s *HTTPServer) handleSaveAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("save_availability")

	rec := model.NewAvailabilityRecord(r.PathValue("id"))
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec.DoctorID = r.PathValue("id")
	rec.TimeSlots = nil
	rec.ApplyDefaults()
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.slots.SaveAvailability(r.Context(), rec); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/doctors/{id}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	res, err := s.slots.AvailableSlots(r.Context(), r.PathValue("id"), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Slots == nil {
		res.Slots = []string{}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{
		DoctorID:  r.PathValue("id"),
		Date:      date,
		Available: res.Available,
		Reason:    res.Reason,
		Slots:     res.Slots,
	})
}

// GET /api/doctors/{id}/slots/check?date=YYYY-MM-DD&time=HH:MM
func (s *HTTPServer) handleCheckSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_slot")

	date, clock := r.URL.Query().Get("date"), r.URL.Query().Get("time")
	if date == "" || clock == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	res, err := s.slots.CheckSlot(r.Context(), r.PathValue("id"), date, clock)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Date: date, Time: clock, Available: res.Available, Reason: res.Reason})
}

func decodeSlotRequest(w http.ResponseWriter, r *http.Request) (SlotRequest, bool) {
	var req SlotRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return req, false
	}
	return req, true
}

// POST /api/doctors/{id}/slots/reserve
func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reserve")

	req, ok := decodeSlotRequest(w, r)
	if !ok {
		return
	}
	res, err := s.slots.ReserveSlot(r.Context(), r.PathValue("id"), req.Date, req.Time)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := ReserveResponse{Success: res.Available, Reason: res.Reason}
	if res.ReservedUntil != nil {
		resp.ReservedUntil = res.ReservedUntil.UTC().Format(time.RFC3339)
	}
	status := http.StatusOK
	if !res.Available {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

// POST /api/doctors/{id}/slots/confirm
func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm")

	req, ok := decodeSlotRequest(w, r)
	if !ok {
		return
	}
	if err := s.slots.ConfirmSlot(r.Context(), r.PathValue("id"), req.Date, req.Time); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /api/doctors/{id}/slots/release
func (s *HTTPServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("release")

	req, ok := decodeSlotRequest(w, r)
	if !ok {
		return
	}
	if err := s.slots.ReleaseSlot(r.Context(), r.PathValue("id"), req.Date, req.Time); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /api/doctors/{id}/slots/generate
func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("generate")

	week, err := s.slots.GenerateTimeSlots(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if week == nil {
		week = []model.DaySlots{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_slots": week})
}

// GET /api/doctors/{id}/stats
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats")

	stats, err := s.slots.AppointmentStats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/doctors/{id}/stats.xlsx
func (s *HTTPServer) handleStatsExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats_export")

	stats, err := s.slots.AppointmentStats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWeeklyStats(&buf, stats); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "stats_"+stats.WeekStart+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// POST /api/sweeps/run
func (s *HTTPServer) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("run_sweep")

	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper disabled")
		return
	}
	summary, err := s.sweeper.RunNow(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
