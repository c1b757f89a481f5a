package availability

import "time"

// Reason explains the outcome of an availability query or transition.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonNotWorkingDay Reason = "not_working_day"
	ReasonOutsideHours  Reason = "outside_hours"
	ReasonBooked        Reason = "booked"
	ReasonUnavailable   Reason = "unavailable"
	ReasonFullyBooked   Reason = "fully_booked"
)

// Result is the tagged answer of a query or reservation.
type Result struct {
	Available     bool       `json:"available"`
	Reason        Reason     `json:"reason"`
	Slots         []string   `json:"slots,omitempty"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`
}

func okResult() Result {
	return Result{Available: true, Reason: ReasonOK}
}

func deny(reason Reason) Result {
	return Result{Reason: reason}
}
