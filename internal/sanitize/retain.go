package sanitize

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "anoncal/internal/log"
)

// Retain reports whether an event survives the retention filter.
//
// The boundary is inclusive on the retain side: an event whose
// effective end is exactly horizonDays before now stays; one day older
// is dropped. Recurring events are judged by their recurrence's overall
// bounds when the rule is bounded (UNTIL/COUNT); unbounded or
// unparseable rules are conservatively retained, never silently
// dropped.
func Retain(t Timing, rruleStr string, now time.Time, horizonDays int) bool {
	cutoff := now.AddDate(0, 0, -horizonDays)

	if rruleStr != "" {
		end, bounded := recurrenceEnd(t, rruleStr)
		if !bounded {
			return true
		}
		return !end.Before(cutoff)
	}

	return !effectiveEnd(t).Before(cutoff)
}

// effectiveEnd is the instant compared against the cutoff: the end
// itself for timed events, the end of the last occupied day for all-day
// events (whose stored end is the exclusive next-day midnight).
func effectiveEnd(t Timing) time.Time {
	if t.AllDay {
		return t.End.Add(-time.Second)
	}
	return t.End
}

// recurrenceEnd computes the effective end of the final occurrence for
// a bounded rule. bounded=false means the rule has no UNTIL/COUNT or
// could not be evaluated, in which case the caller must retain.
func recurrenceEnd(t Timing, rruleStr string) (time.Time, bool) {
	opt, err := rrule.StrToROption(rruleStr)
	if err != nil {
		appLog.Warn("retain: unparseable RRULE, keeping event", "rrule", rruleStr, "err", err)
		return time.Time{}, false
	}
	if opt.Count == 0 && opt.Until.IsZero() {
		return time.Time{}, false
	}

	r, err := rrule.StrToRRule(rruleStr)
	if err != nil {
		appLog.Warn("retain: unparseable RRULE, keeping event", "rrule", rruleStr, "err", err)
		return time.Time{}, false
	}
	r.DTStart(t.Start)

	occurrences := r.All()
	if len(occurrences) == 0 {
		return time.Time{}, false
	}

	last := occurrences[len(occurrences)-1]
	lastEnd := last.Add(t.End.Sub(t.Start))
	return effectiveEnd(Timing{Start: last, End: lastEnd, AllDay: t.AllDay}), true
}
