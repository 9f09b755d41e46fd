package ics

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"

	"anoncal/internal/model"
)

const productID = "-//anonymized-availability//ical-anonymizer//EN"

const (
	icalDateLayout      = "20060102"
	icalLocalTimeLayout = "20060102T150405"
)

// Serialize renders the surviving anonymized events into the output
// document: neutral calendar metadata, exactly one VTIMEZONE block for
// the target zone, then the events in input order. The rendering is
// deterministic for a fixed input, which keeps re-runs byte-identical.
func Serialize(events []model.AnonymizedEvent, loc *time.Location) (string, error) {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")
	cal.SetXWRTimezone(loc.String())

	cal.Components = append(cal.Components, buildVTimezone(loc))

	for _, ev := range events {
		if field, ok := malformedField(ev); !ok {
			return "", &SerializationError{UID: ev.UID, Field: field}
		}

		ve := cal.AddEvent(ev.UID)

		dtstamp := ev.DTStamp
		if dtstamp.IsZero() {
			dtstamp = ev.Start
		}
		ve.SetDtStampTime(dtstamp.UTC())

		if ev.AllDay {
			dateParam := &ical.KeyValues{Key: "VALUE", Value: []string{"DATE"}}
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.Format(icalDateLayout), dateParam)
			ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.Format(icalDateLayout),
				&ical.KeyValues{Key: "VALUE", Value: []string{"DATE"}})
			ve.SetProperty(ical.ComponentProperty("TRANSP"), "OPAQUE")
		} else {
			tzParam := &ical.KeyValues{Key: "TZID", Value: []string{loc.String()}}
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.In(loc).Format(icalLocalTimeLayout), tzParam)
			ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.In(loc).Format(icalLocalTimeLayout),
				&ical.KeyValues{Key: "TZID", Value: []string{loc.String()}})
		}

		ve.SetSummary(ev.Summary)
		ve.SetDescription(ev.Description)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}

		if ev.RRule != "" {
			ve.SetProperty(ical.ComponentPropertyRrule, ev.RRule)
		}
		for _, p := range ev.RDate {
			ve.AddProperty(ical.ComponentProperty("RDATE"), p.Value, rawParams(p.Params)...)
		}
		for _, p := range ev.ExDate {
			ve.AddProperty(ical.ComponentPropertyExdate, p.Value, rawParams(p.Params)...)
		}
		if ev.RecurrenceID.Value != "" {
			ve.SetProperty(ical.ComponentProperty("RECURRENCE-ID"), ev.RecurrenceID.Value,
				rawParams(ev.RecurrenceID.Params)...)
		}
		if ev.HasSequence {
			ve.SetProperty(ical.ComponentPropertySequence, "0")
		}
	}

	return cal.Serialize(), nil
}

// Validate re-parses the rendered output and checks the event count
// against what went in. A mismatch means the serializer dropped or
// mangled something; the output must not be committed.
func Validate(output string, wantCount int) error {
	events, err := ParseICS([]byte(output))
	if err != nil {
		return &ValidationError{Reason: "rendered output does not re-parse", Err: err}
	}
	if len(events) != wantCount {
		return &ValidationError{
			Reason: fmt.Sprintf("event count mismatch: serialized %d, re-parsed %d", wantCount, len(events)),
		}
	}
	return nil
}

// rawParams converts a pass-through parameter map into the property
// parameter list, keys sorted so rendering stays deterministic.
func rawParams(params map[string][]string) []ical.PropertyParameter {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ical.PropertyParameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, &ical.KeyValues{Key: k, Value: params[k]})
	}
	return out
}

// malformedField reports the first event field whose value cannot be
// encoded, or ok=true when everything is renderable.
func malformedField(ev model.AnonymizedEvent) (string, bool) {
	checks := []struct {
		name  string
		value string
	}{
		{"SUMMARY", ev.Summary},
		{"DESCRIPTION", ev.Description},
		{"LOCATION", ev.Location},
		{"RRULE", ev.RRule},
		{"RECURRENCE-ID", ev.RecurrenceID.Value},
	}
	for _, c := range checks {
		if !utf8.ValidString(c.value) {
			return c.name, false
		}
	}
	for _, p := range ev.RDate {
		if !utf8.ValidString(p.Value) {
			return "RDATE", false
		}
	}
	for _, p := range ev.ExDate {
		if !utf8.ValidString(p.Value) {
			return "EXDATE", false
		}
	}
	if ev.Start.IsZero() {
		return "DTSTART", false
	}
	return "", true
}

// buildVTimezone generates the single static VTIMEZONE component for
// the target zone. Offsets are sampled at fixed reference instants
// (mid-January and mid-July 2020) so the block is constant across runs;
// zones without DST get one STANDARD sub-block, zones with DST also get
// a DAYLIGHT one.
func buildVTimezone(loc *time.Location) *ical.VTimezone {
	winter := time.Date(2020, time.January, 15, 12, 0, 0, 0, loc)
	summer := time.Date(2020, time.July, 15, 12, 0, 0, 0, loc)

	winterName, winterOff := winter.Zone()
	summerName, summerOff := summer.Zone()

	stdName, stdOff := winterName, winterOff
	dstName, dstOff := summerName, summerOff
	// Southern hemisphere: DST is the larger offset regardless of month.
	if summerOff < winterOff {
		stdName, stdOff = summerName, summerOff
		dstName, dstOff = winterName, winterOff
	}

	tz := &ical.VTimezone{}
	tz.SetProperty(ical.ComponentProperty("TZID"), loc.String())

	std := &ical.Standard{}
	std.SetProperty(ical.ComponentPropertyDtStart, "19700101T000000")
	std.SetProperty(ical.ComponentProperty("TZNAME"), stdName)
	std.SetProperty(ical.ComponentProperty("TZOFFSETFROM"), formatUTCOffset(dstOff))
	std.SetProperty(ical.ComponentProperty("TZOFFSETTO"), formatUTCOffset(stdOff))
	tz.Components = append(tz.Components, std)

	if dstOff != stdOff {
		dst := &ical.Daylight{}
		dst.SetProperty(ical.ComponentPropertyDtStart, "19700101T000000")
		dst.SetProperty(ical.ComponentProperty("TZNAME"), dstName)
		dst.SetProperty(ical.ComponentProperty("TZOFFSETFROM"), formatUTCOffset(stdOff))
		dst.SetProperty(ical.ComponentProperty("TZOFFSETTO"), formatUTCOffset(dstOff))
		tz.Components = append(tz.Components, dst)
	}

	return tz
}

// formatUTCOffset renders seconds east of UTC as ±HHMM.
func formatUTCOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}
