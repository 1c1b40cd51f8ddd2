package services

import (
	"time"

	"events-cache/models"
)

// ComputeRefreshWindow returns the window containing now. A window opens at
// boundaryHour:00 local time and closes one millisecond before the next
// day's boundary; before the boundary, now still belongs to yesterday's window.
func ComputeRefreshWindow(now time.Time, boundaryHour int, loc *time.Location) models.RefreshWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	day := local
	if local.Hour() < boundaryHour {
		day = local.AddDate(0, 0, -1)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), boundaryHour, 0, 0, 0, loc)
	next := time.Date(day.Year(), day.Month(), day.Day()+1, boundaryHour, 0, 0, 0, loc)

	return models.RefreshWindow{
		Start: start,
		End:   next.Add(-time.Millisecond),
	}
}

// ComputeWeekWindow returns the calendar week (Monday 00:00 to the end of
// Sunday) containing now.
func ComputeWeekWindow(now time.Time, loc *time.Location) models.RefreshWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	// time.Sunday is 0
	offset := (int(local.Weekday()) + 6) % 7
	start := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	next := time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, loc)

	return models.RefreshWindow{
		Start: start,
		End:   next.Add(-time.Millisecond),
	}
}
