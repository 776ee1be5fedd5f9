package service

import (
	"time"

	"torch/internal/models"
)

// RenderCalendar builds the Sunday-first month grid for the booking calendar.
// Leading and trailing cells belong to the neighbouring months and are always disabled.
// The result depends only on its arguments.
func RenderCalendar(year int, month time.Month, today time.Time, sessions []models.Session, selected string) []models.CalendarCell {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	leading := int(first.Weekday())
	daysInMonth := first.AddDate(0, 1, -1).Day()
	total := (leading + daysInMonth + 6) / 7 * 7

	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	todayStr := todayDate.Format(models.DateLayout)

	booked := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		booked[s.Date] = true
	}

	cells := make([]models.CalendarCell, 0, total)
	for i := 0; i < total; i++ {
		// i-leading дней от первого числа, отрицательные уходят в прошлый месяц
		day := first.AddDate(0, 0, i-leading)
		cell := models.CalendarCell{
			Date: day.Format(models.DateLayout),
			Day:  day.Day(),
		}
		if day.Month() != month {
			cell.OtherMonth = true
			cell.Disabled = true
			cells = append(cells, cell)
			continue
		}
		cell.Disabled = day.Before(todayDate)
		cell.Today = cell.Date == todayStr
		cell.Booked = booked[cell.Date]
		cell.Selected = selected != "" && cell.Date == selected
		cells = append(cells, cell)
	}
	return cells
}

// MonthTitle is the calendar header, e.g. "March 2026".
func MonthTitle(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
}

// ShiftMonth moves a month cursor by delta months.
func ShiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	return t.Year(), t.Month()
}
