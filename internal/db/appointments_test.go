package db

import (
	"context"
	"testing"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createAppointment(t *testing.T, db *DB, date, clock string, status model.AppointmentStatus) *model.Appointment {
	t.Helper()
	a := &model.Appointment{DoctorID: "doc-1", PatientID: "pat-1", Date: date, Time: clock, Status: status}
	require.NoError(t, db.CreateAppointment(context.Background(), a))
	return a
}

func TestCreateAppointment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := &model.Appointment{DoctorID: "doc-1", Date: "2026-10-19", Time: "09:00"}
	require.NoError(t, db.CreateAppointment(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StatusPending, a.Status)

	got, err := db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00", got.Time)
	assert.Nil(t, got.CompletedAt)

	_, err = db.GetAppointment(ctx, "missing")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	assert.Error(t, db.CreateAppointment(ctx, &model.Appointment{DoctorID: "doc-1", Date: "19/10/2026", Time: "09:00"}))
	assert.Error(t, db.CreateAppointment(ctx, &model.Appointment{DoctorID: "doc-1", Date: "2026-10-19", Time: "9am"}))

	padded := createAppointment(t, db, "2026-10-19", " 9:40", model.StatusApproved)
	assert.Equal(t, "09:40", padded.Time)
	conflict, err := db.HasConflict(ctx, "doc-1", "2026-10-19", "09:40")
	require.NoError(t, err)
	assert.True(t, conflict, "time is stored in HH:MM form")
}

func TestBookedTimesAndConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createAppointment(t, db, "2026-10-19", "09:40", model.StatusApproved)
	createAppointment(t, db, "2026-10-19", "09:00", model.StatusUnderReview)
	createAppointment(t, db, "2026-10-19", "10:20", model.StatusPending)
	createAppointment(t, db, "2026-10-19", "11:00", model.StatusRejected)
	createAppointment(t, db, "2026-10-20", "09:00", model.StatusApproved)

	times, err := db.BookedTimes(ctx, "doc-1", "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:40"}, times)

	conflict, err := db.HasConflict(ctx, "doc-1", "2026-10-19", "09:40")
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = db.HasConflict(ctx, "doc-1", "2026-10-19", "10:20")
	require.NoError(t, err)
	assert.False(t, conflict, "pending does not occupy the slot")

	conflict, err = db.HasConflict(ctx, "doc-2", "2026-10-19", "09:40")
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestCountApprovedByDate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createAppointment(t, db, "2026-10-18", "09:00", model.StatusApproved)
	createAppointment(t, db, "2026-10-19", "09:00", model.StatusApproved)
	createAppointment(t, db, "2026-10-19", "09:40", model.StatusApproved)
	createAppointment(t, db, "2026-10-19", "10:20", model.StatusUnderReview)
	createAppointment(t, db, "2026-10-25", "09:00", model.StatusApproved)

	counts, err := db.CountApprovedByDate(ctx, "doc-1", "2026-10-18", "2026-10-24")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2026-10-18": 1, "2026-10-19": 2}, counts)
}

func TestTransitionStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := createAppointment(t, db, "2026-10-12", "09:00", model.StatusApproved)
	done := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	ok, err := db.TransitionStatus(ctx, a.ID, model.StatusApproved, model.StatusCompleted, &done)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.True(t, got.IsCompleted)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	ok, err = db.TransitionStatus(ctx, a.ID, model.StatusApproved, model.StatusCompleted, &done)
	require.NoError(t, err)
	assert.False(t, ok, "already moved")
}

func TestListByStatusUntil(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createAppointment(t, db, "2026-10-14", "09:00", model.StatusUnderReview)
	createAppointment(t, db, "2026-10-15", "09:00", model.StatusUnderReview)
	createAppointment(t, db, "2026-10-16", "09:00", model.StatusUnderReview)
	createAppointment(t, db, "2026-10-14", "10:00", model.StatusApproved)

	list, err := db.ListByStatusUntil(ctx, model.StatusUnderReview, "2026-10-15")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-10-14", list[0].Date)
	assert.Equal(t, "2026-10-15", list[1].Date)
}
