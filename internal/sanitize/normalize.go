package sanitize

import (
	"time"

	"anoncal/internal/model"
)

// Timing is the normalized (start, end, all-day) triple for one event.
// All-day values are midnight-anchored in the target zone with an
// exclusive end; timed values are instants converted into the target
// zone.
type Timing struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Normalize applies the timing rules in order:
//
//  1. timed instants are converted into loc (instant unchanged)
//  2. forceAllDay: emit an all-day event over the dates the interval
//     overlaps in loc, exclusive end = last overlapped date + 1
//  3. already all-day: dates pass through unchanged (source end is
//     already exclusive)
//  4. timed otherwise: if the stay crosses a midnight in loc, convert
//     to all-day [start date, end date); the end date is the checkout
//     day and therefore naturally exclusive. Same-day events stay timed.
//
// An end exactly at local midnight counts as ending on the previous
// date, so it never adds an extra occupied day.
func Normalize(rec model.EventRecord, loc *time.Location, forceAllDay bool) Timing {
	if rec.AllDay {
		return normalizeAllDay(rec, loc)
	}

	startLocal := localize(rec.Start, rec.Floating, loc)
	endLocal := localize(rec.End, rec.Floating, loc)
	if endLocal.Before(startLocal) {
		endLocal = startLocal
	}

	startDate := dateOf(startLocal, loc)
	lastOccupied := lastOccupiedDate(endLocal, loc)
	if lastOccupied.Before(startDate) {
		lastOccupied = startDate
	}

	if forceAllDay {
		return Timing{
			Start:  startDate,
			End:    lastOccupied.AddDate(0, 0, 1),
			AllDay: true,
		}
	}

	if lastOccupied.After(startDate) {
		// Crosses at least one midnight: consolidate into an all-day
		// stay. dateOf(endLocal) is the checkout day for partial-day
		// ends and the day after the last full night for midnight-exact
		// ends; either way it is the correct exclusive bound.
		return Timing{
			Start:  startDate,
			End:    dateOf(endLocal, loc),
			AllDay: true,
		}
	}

	return Timing{Start: startLocal, End: endLocal, AllDay: false}
}

func normalizeAllDay(rec model.EventRecord, loc *time.Location) Timing {
	// Re-anchor the source calendar dates at midnight in the target
	// zone without instant conversion, which could shift the date.
	start := anchorDate(rec.Start, loc)
	end := anchorDate(rec.End, loc)
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return Timing{Start: start, End: end, AllDay: true}
}

// localize converts an instant into loc. Floating values (no TZID, no
// UTC marker) are reinterpreted as wall-clock time in loc instead.
func localize(t time.Time, floating bool, loc *time.Location) time.Time {
	if floating {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return t.In(loc)
}

// dateOf truncates an instant to midnight of its calendar date in loc.
func dateOf(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// anchorDate rebuilds the calendar date of t at midnight in loc.
func anchorDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// lastOccupiedDate returns the last calendar date the interval ending
// at end actually occupies: the date itself, or the previous date when
// end falls exactly on midnight.
func lastOccupiedDate(end time.Time, loc *time.Location) time.Time {
	d := dateOf(end, loc)
	if end.Equal(d) {
		return d.AddDate(0, 0, -1)
	}
	return d
}
