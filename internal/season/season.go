// Package season provides college football calendar arithmetic.
package season

import "time"

// MaxRegularWeek is the last week CurrentWeek reports.
const MaxRegularWeek = 15

// LaborDay returns the first Monday of September of year in loc.
func LaborDay(year int, loc *time.Location) time.Time {
	d := time.Date(year, time.September, 1, 0, 0, 0, 0, loc)
	offset := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// StartDate returns the first Saturday on or after August 24 of year in loc.
// Week-zero games are played that weekend, ahead of Labor Day.
func StartDate(year int, loc *time.Location) time.Time {
	d := time.Date(year, time.August, 24, 0, 0, 0, 0, loc)
	offset := (int(time.Saturday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// CurrentWeek returns the week of year's season that contains now, counting the
// start weekend as week 1. Dates before the season give 0 and dates past the
// regular season give MaxRegularWeek.
func CurrentWeek(year int, now time.Time) int {
	start := StartDate(year, now.Location())
	days := daysBetween(start, now)
	week := floorDiv(days, 7) + 1
	return min(max(week, 0), MaxRegularWeek)
}

// Resolve returns override when it is positive, else the week containing now.
func Resolve(override, year int, now time.Time) int {
	if override > 0 {
		return override
	}
	return CurrentWeek(year, now)
}

// WeekRange returns the [start, end) dates covered by a week of year's season.
func WeekRange(year, week int, loc *time.Location) (time.Time, time.Time) {
	start := StartDate(year, loc).AddDate(0, 0, 7*(week-1))
	return start, start.AddDate(0, 0, 7)
}

// daysBetween counts whole calendar days from a to b (negative when b is earlier).
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
