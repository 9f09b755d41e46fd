package sanitize

import (
	"sort"
	"time"

	"anoncal/internal/model"
)

// StayInterval is one merged occupancy bar: midnight-anchored dates in
// the target zone, End exclusive.
type StayInterval struct {
	Start time.Time
	End   time.Time
}

// MergeStays collapses every multi-date event into [start date,
// end date exclusive) intervals in the target zone, then merges
// intervals that overlap or touch. Same-day events contribute nothing;
// the mode exists to publish contiguous occupancy bars, and a stay that
// frees the room the same day does not block a night.
func MergeStays(recs []model.EventRecord, loc *time.Location) []StayInterval {
	intervals := make([]StayInterval, 0, len(recs))

	for _, rec := range recs {
		var s, e time.Time
		if rec.AllDay {
			s = anchorDate(rec.Start, loc)
			e = anchorDate(rec.End, loc)
		} else {
			s = dateOf(localize(rec.Start, rec.Floating, loc), loc)
			e = dateOf(localize(rec.End, rec.Floating, loc), loc)
		}
		if e.After(s) {
			intervals = append(intervals, StayInterval{Start: s, End: e})
		}
	}

	if len(intervals) == 0 {
		return nil
	}

	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start.Equal(intervals[j].Start) {
			return intervals[i].End.Before(intervals[j].End)
		}
		return intervals[i].Start.Before(intervals[j].Start)
	})

	merged := intervals[:1]
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			// Overlap or touch (checkout day == next check-in day).
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}
