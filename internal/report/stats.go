package report

import (
	"io"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/availability"
)

// StatsSheet is the name of the sheet WriteWeeklyStats produces.
const StatsSheet = "Weekly stats"

// WriteWeeklyStats writes the week's approved-appointment counts as an
// xlsx workbook: one row per day followed by a total row.
func WriteWeeklyStats(out io.Writer, stats availability.WeeklyStats) (err error) {
	w := newSheetWriter()
	defer func() {
		if cerr := w.close(); err == nil {
			err = cerr
		}
	}()

	if err = w.addSheet(StatsSheet); err != nil {
		return err
	}
	if err = w.writeRow([]any{"Doctor", stats.DoctorID, "Week", stats.WeekStart + " - " + stats.WeekEnd}); err != nil {
		return err
	}
	if err = w.writeHeader([]string{"Date", "Day", "Approved"}); err != nil {
		return err
	}
	for _, d := range stats.Days {
		if err = w.writeRow([]any{d.Date, string(d.Day), d.Count}); err != nil {
			return err
		}
	}
	if err = w.writeRow([]any{"Total", "", stats.Total}); err != nil {
		return err
	}
	return w.save(out)
}
