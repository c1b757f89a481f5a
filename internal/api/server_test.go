package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/availability"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/db"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/sweeper"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockSlots struct {
	mock.Mock
}

func (m *mockSlots) GetAvailability(ctx context.Context, id string) (*model.AvailabilityRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AvailabilityRecord), args.Error(1)
}
func (m *mockSlots) SaveAvailability(ctx context.Context, r *model.AvailabilityRecord) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockSlots) AvailableSlots(ctx context.Context, id, date string) (availability.Result, error) {
	args := m.Called(ctx, id, date)
	return args.Get(0).(availability.Result), args.Error(1)
}
func (m *mockSlots) CheckSlot(ctx context.Context, id, date, clock string) (availability.Result, error) {
	args := m.Called(ctx, id, date, clock)
	return args.Get(0).(availability.Result), args.Error(1)
}
func (m *mockSlots) ReserveSlot(ctx context.Context, id, date, clock string) (availability.Result, error) {
	args := m.Called(ctx, id, date, clock)
	return args.Get(0).(availability.Result), args.Error(1)
}
func (m *mockSlots) ConfirmSlot(ctx context.Context, id, date, clock string) error {
	return m.Called(ctx, id, date, clock).Error(0)
}
func (m *mockSlots) ReleaseSlot(ctx context.Context, id, date, clock string) error {
	return m.Called(ctx, id, date, clock).Error(0)
}
func (m *mockSlots) GenerateTimeSlots(ctx context.Context, id string) ([]model.DaySlots, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]model.DaySlots), args.Error(1)
}
func (m *mockSlots) AppointmentStats(ctx context.Context, id string) (availability.WeeklyStats, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(availability.WeeklyStats), args.Error(1)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) RunNow(ctx context.Context) (sweeper.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(sweeper.Summary), args.Error(1)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("x-api-key", "test-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func newTestServer(slots SlotService, sweep SweepRunner) http.Handler {
	return NewHTTPServer(slots, sweep, Config{APIKey: "test-key"}, nil).Handler()
}

func TestAuthentication(t *testing.T) {
	h := newTestServer(&mockSlots{}, nil)

	tests := []struct {
		name   string
		apiKey string
		want   int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/doctors/doc-1/stats", http.NoBody)
			if tt.apiKey != "" {
				req.Header.Set("x-api-key", tt.apiKey)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSlotsEndpoint(t *testing.T) {
	slots := &mockSlots{}
	slots.On("AvailableSlots", mock.Anything, "doc-1", "2026-10-19").
		Return(availability.Result{Available: true, Reason: availability.ReasonOK, Slots: []string{"09:00"}}, nil)
	slots.On("AvailableSlots", mock.Anything, "doc-1", "2026-10-18").
		Return(availability.Result{Reason: availability.ReasonNotWorkingDay}, nil)
	slots.On("AvailableSlots", mock.Anything, "ghost", "2026-10-19").
		Return(availability.Result{}, db.ErrRecordNotFound)
	slots.On("AvailableSlots", mock.Anything, "doc-1", "tomorrow").
		Return(availability.Result{}, availability.ErrInvalidDate)
	h := newTestServer(slots, nil)

	w := do(t, h, http.MethodGet, "/api/doctors/doc-1/slots?date=2026-10-19", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SlotsResponse](t, w)
	assert.Equal(t, []string{"09:00"}, resp.Slots)
	assert.Equal(t, availability.ReasonOK, resp.Reason)

	w = do(t, h, http.MethodGet, "/api/doctors/doc-1/slots?date=2026-10-18", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[SlotsResponse](t, w)
	assert.Equal(t, []string{}, resp.Slots)
	assert.Equal(t, availability.ReasonNotWorkingDay, resp.Reason)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/doctors/ghost/slots?date=2026-10-19", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/doctors/doc-1/slots?date=tomorrow", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/doctors/doc-1/slots", "").Code)
	slots.AssertExpectations(t)
}

func TestReserveEndpoint(t *testing.T) {
	until := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	slots := &mockSlots{}
	slots.On("ReserveSlot", mock.Anything, "doc-1", "2026-10-19", "09:00").
		Return(availability.Result{Available: true, Reason: availability.ReasonOK, ReservedUntil: &until}, nil)
	slots.On("ReserveSlot", mock.Anything, "doc-1", "2026-10-19", "09:40").
		Return(availability.Result{Reason: availability.ReasonUnavailable}, nil)
	h := newTestServer(slots, nil)

	w := do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/reserve", `{"date":"2026-10-19","time":"09:00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ReserveResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "2026-10-16T08:00:00Z", resp.ReservedUntil)

	w = do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/reserve", `{"date":"2026-10-19","time":"09:40"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	resp = decode[ReserveResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, availability.ReasonUnavailable, resp.Reason)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/reserve", `{"date":"2026-10-19"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/reserve", `{"when":"now"}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/doctors/doc-1/slots/reserve", "").Code)
}

func TestConfirmReleaseEndpoints(t *testing.T) {
	slots := &mockSlots{}
	slots.On("ConfirmSlot", mock.Anything, "doc-1", "2026-10-19", "09:00").Return(nil)
	slots.On("ReleaseSlot", mock.Anything, "doc-1", "2026-10-19", "09:00").Return(nil)
	slots.On("ReleaseSlot", mock.Anything, "doc-1", "2026-10-19", "9").Return(model.ErrInvalidClock)
	h := newTestServer(slots, nil)

	for _, op := range []string{"confirm", "release"} {
		w := do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/"+op, `{"date":"2026-10-19","time":"09:00"}`)
		require.Equal(t, http.StatusOK, w.Code, op)
		assert.True(t, decode[map[string]bool](t, w)["success"])
	}

	w := do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/release", `{"date":"2026-10-19","time":"9"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	slots.AssertExpectations(t)
}

func TestSaveAvailabilityEndpoint(t *testing.T) {
	slots := &mockSlots{}
	slots.On("SaveAvailability", mock.Anything, mock.MatchedBy(func(r *model.AvailabilityRecord) bool {
		return r.DoctorID == "doc-1" && r.WorkingDays[model.Monday] && r.AppointmentDuration == 30
	})).Return(nil)
	h := newTestServer(slots, nil)

	w := do(t, h, http.MethodPut, "/api/doctors/doc-1/availability",
		`{"working_days":{"monday":true},"start_time":"09:00","end_time":"17:00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[model.AvailabilityRecord](t, w)
	assert.Equal(t, model.Sunday, rec.WeeklyHoliday)
	assert.Equal(t, 10, rec.BufferTime, "omitted buffer keeps the default")

	w = do(t, h, http.MethodPut, "/api/doctors/doc-1/availability",
		`{"working_days":{"monday":true},"start_time":"09:00","end_time":"17:00","buffer_time":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[model.AvailabilityRecord](t, w).BufferTime, "explicit zero buffer is kept")

	w = do(t, h, http.MethodPut, "/api/doctors/doc-1/availability", `{"start_time":"17:00","end_time":"09:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	slots.AssertExpectations(t)
}

func TestSweepEndpoint(t *testing.T) {
	sweep := &mockSweeper{}
	sweep.On("RunNow", mock.Anything).Return(sweeper.Summary{Completed: 2, Rejected: 1}, nil).Once()
	sweep.On("RunNow", mock.Anything).Return(sweeper.Summary{}, sweeper.ErrRunInProgress).Once()
	h := newTestServer(&mockSlots{}, sweep)

	w := do(t, h, http.MethodPost, "/api/sweeps/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[sweeper.Summary](t, w)
	assert.Equal(t, 2, summary.Completed)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/sweeps/run", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, newTestServer(&mockSlots{}, nil), http.MethodPost, "/api/sweeps/run", "").Code)
}

func TestInternalErrorIsHidden(t *testing.T) {
	slots := &mockSlots{}
	slots.On("GenerateTimeSlots", mock.Anything, "doc-1").Return([]model.DaySlots(nil), errors.New("disk on fire"))
	h := newTestServer(slots, nil)

	w := do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/generate", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode[map[string]string](t, w)["error"])
}

func TestRateLimit(t *testing.T) {
	slots := &mockSlots{}
	slots.On("ConfirmSlot", mock.Anything, "doc-1", "2026-10-19", "09:00").Return(nil)
	h := NewHTTPServer(slots, nil, Config{RateLimit: 0.001, RateBurst: 1}, nil).Handler()

	body := `{"date":"2026-10-19","time":"09:00"}`
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/confirm", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/confirm", body).Code)
}

// TestEndToEnd drives the real service over a sqlite store.
func TestEndToEnd(t *testing.T) {
	logger := zerolog.Nop()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	svc := availability.NewService(store, store, availability.Options{Now: func() time.Time { return now }}, &logger)
	h := newTestServer(svc, nil)

	w := do(t, h, http.MethodPut, "/api/doctors/doc-1/availability",
		`{"working_days":{"monday":true,"tuesday":true},"start_time":"09:00","end_time":"10:00"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/generate", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/doctors/doc-1/slots/reserve", `{"date":"2026-10-19","time":"09:00"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/doctors/doc-1/slots?date=2026-10-19", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"09:40"}, decode[SlotsResponse](t, w).Slots)

	w = do(t, h, http.MethodGet, "/api/doctors/doc-1/slots/check?date=2026-10-19&time=11:00", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, availability.ReasonOutsideHours, decode[CheckResponse](t, w).Reason)

	w = do(t, h, http.MethodGet, "/api/doctors/doc-1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[availability.WeeklyStats](t, w).Days, 7)

	w = do(t, h, http.MethodGet, "/api/doctors/doc-1/stats.xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "stats_2026-10-11.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	_ = f.Close()

	w = do(t, h, http.MethodGet, "/api/doctors/ghost/availability", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
