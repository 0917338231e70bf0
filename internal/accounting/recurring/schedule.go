package recurring

import "time"

// Advance returns the run date following from. Month-based cadences step
// through the first of the month and then clamp the day to the anchor, which
// is dayOfMonth when set and from's own day otherwise, so a day-31 template
// runs on the last day of shorter months and returns to the 31st afterwards.
func Advance(from time.Time, freq Frequency, dayOfMonth *int) time.Time {
	switch freq {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonths(from, 1, anchorDay(from, dayOfMonth))
	case FrequencyQuarterly:
		return addMonths(from, 3, anchorDay(from, dayOfMonth))
	case FrequencyYearly:
		return addMonths(from, 12, anchorDay(from, dayOfMonth))
	}
	return from
}

func anchorDay(from time.Time, dayOfMonth *int) int {
	if dayOfMonth != nil && *dayOfMonth >= 1 && *dayOfMonth <= 31 {
		return *dayOfMonth
	}
	return from.Day()
}

func addMonths(from time.Time, months, day int) time.Time {
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()).AddDate(0, months, 0)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, from.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
