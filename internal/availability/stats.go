package availability

import (
	"context"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/model"
)

// DayCount is the number of approved appointments on one date.
type DayCount struct {
	Date  string        `json:"date"`
	Day   model.Weekday `json:"day"`
	Count int           `json:"count"`
}

// WeeklyStats covers the Sunday to Saturday week containing today.
type WeeklyStats struct {
	DoctorID  string     `json:"doctor_id"`
	WeekStart string     `json:"week_start"`
	WeekEnd   string     `json:"week_end"`
	Days      []DayCount `json:"days"`
	Total     int        `json:"total"`
}

// AppointmentStats counts the doctor's approved appointments for each day
// of the current week.
func (s *Service) AppointmentStats(ctx context.Context, doctorID string) (WeeklyStats, error) {
	today := model.StartOfDay(s.now(), s.loc)
	start := today.AddDate(0, 0, -int(today.Weekday()))
	end := start.AddDate(0, 0, 6)

	stats := WeeklyStats{
		DoctorID:  doctorID,
		WeekStart: start.Format(model.DateLayout),
		WeekEnd:   end.Format(model.DateLayout),
		Days:      make([]DayCount, 0, len(model.Weekdays)),
	}

	counts, err := s.appts.CountApprovedByDate(ctx, doctorID, stats.WeekStart, stats.WeekEnd)
	if err != nil {
		return WeeklyStats{}, err
	}

	for i := range model.Weekdays {
		day := start.AddDate(0, 0, i)
		date := day.Format(model.DateLayout)
		stats.Days = append(stats.Days, DayCount{
			Date:  date,
			Day:   model.WeekdayOf(day),
			Count: counts[date],
		})
		stats.Total += counts[date]
	}
	return stats, nil
}
