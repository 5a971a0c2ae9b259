package actions

import (
	"fmt"
	"time"
)

// The studio's weekly schedule, fixed in the studio's timezone:
// Monday-Friday 6am-10pm, Saturday & Sunday 7:30am-6pm.
const (
	weekdayOpenHour = 6
	weekdayLastHour = 21 // open through hour 21 (closes 22:00)
	weekendOpenHour = 7
	weekendOpenMin  = 30
	weekendLastHour = 17 // open through hour 17 (closes 18:00)
	studioTimezone  = "Asia/Singapore"
)

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// studioOpen reports whether the studio is open at t. Pure function of
// weekday, hour, and minute; t must already be in the studio's timezone.
func studioOpen(t time.Time) bool {
	hour, minute := t.Hour(), t.Minute()
	if isWeekend(t.Weekday()) {
		if hour >= 8 && hour <= weekendLastHour {
			return true
		}
		return hour == weekendOpenHour && minute >= weekendOpenMin
	}
	return hour >= weekdayOpenHour && hour <= weekdayLastHour
}

// nextOpening returns the first opening instant after t. Only meaningful
// when the studio is closed at t.
func nextOpening(t time.Time) time.Time {
	for d := 0; d <= 7; d++ {
		day := t.AddDate(0, 0, d)
		var opens time.Time
		if isWeekend(day.Weekday()) {
			opens = time.Date(day.Year(), day.Month(), day.Day(), weekendOpenHour, weekendOpenMin, 0, 0, t.Location())
		} else {
			opens = time.Date(day.Year(), day.Month(), day.Day(), weekdayOpenHour, 0, 0, 0, t.Location())
		}
		if opens.After(t) {
			return opens
		}
	}
	return t
}

// hoursStatus returns the human-readable open/closed fragment for the
// operating-hours card.
func hoursStatus(t time.Time) string {
	if studioOpen(t) {
		return "Currently Open"
	}
	opens := nextOpening(t)
	return fmt.Sprintf("Currently Closed - we open again %s at %s",
		opens.Weekday(), formatOpeningTime(opens))
}

func formatOpeningTime(t time.Time) string {
	if t.Minute() == 0 {
		return t.Format("3pm")
	}
	return t.Format("3:04pm")
}
