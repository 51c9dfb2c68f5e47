package daterange

import "time"

const (
	monthLayout = "2006-01"

	minTrendMonths      = 3
	fallbackTrendMonths = 12
)

// MonthBounds returns the first and last day of a YYYY-MM month.
func MonthBounds(month string) (Range, bool) {
	t, err := time.ParseInLocation(monthLayout, month, time.UTC)
	if err != nil || t.Format(monthLayout) != month {
		return Range{}, false
	}
	last := t.AddDate(0, 1, -1)
	return Range{Start: t.Format(isoLayout), End: last.Format(isoLayout)}, true
}

// MonthsBetween counts the calendar months from start to end inclusive, with
// a floor of 3 so trend windows never degenerate. It returns 12 when either
// date cannot be parsed.
func MonthsBetween(start, end string) int {
	s, okStart := parseDate(start)
	e, okEnd := parseDate(end)
	if !okStart || !okEnd {
		return fallbackTrendMonths
	}
	n := (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month()) + 1
	if n < minTrendMonths {
		return minTrendMonths
	}
	return n
}
