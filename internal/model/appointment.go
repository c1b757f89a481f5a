package model

import "time"

// AppointmentStatus is the lifecycle state of a second-opinion appointment.
type AppointmentStatus string

const (
	StatusPending          AppointmentStatus = "pending"
	StatusOpinionNeeded    AppointmentStatus = "opinion-needed"
	StatusOpinionNotNeeded AppointmentStatus = "opinion-not-needed"
	StatusUnderReview      AppointmentStatus = "under-review"
	StatusApproved         AppointmentStatus = "approved"
	StatusRejected         AppointmentStatus = "rejected"
	StatusCompleted        AppointmentStatus = "completed"
)

// BlockingStatuses are the statuses that occupy a slot.
var BlockingStatuses = []AppointmentStatus{StatusApproved, StatusUnderReview}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOpinionNeeded, StatusOpinionNotNeeded,
		StatusUnderReview, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Appointment holds the appointment fields this service reads and writes.
type Appointment struct {
	ID          string            `json:"id"`
	DoctorID    string            `json:"doctor_id"`
	PatientID   string            `json:"patient_id"`
	Status      AppointmentStatus `json:"status"`
	Date        string            `json:"date"` // YYYY-MM-DD
	Time        string            `json:"time"` // HH:MM
	IsCompleted bool              `json:"is_completed"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ScheduledAt returns the appointment's start instant in loc.
func (a *Appointment) ScheduledAt(loc *time.Location) (time.Time, error) {
	day, err := ParseDate(a.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return AtClock(day, a.Time)
}
