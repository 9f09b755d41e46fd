package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"anoncal/internal/model"
)

// Property names handled structurally by the parser; everything else
// lands in EventRecord.Props for the scrubber to judge.
const (
	propUID          = "UID"
	propDtStart      = "DTSTART"
	propDtEnd        = "DTEND"
	propDtStamp      = "DTSTAMP"
	propDuration     = "DURATION"
	propSequence     = "SEQUENCE"
	propRRule        = "RRULE"
	propRDate        = "RDATE"
	propExDate       = "EXDATE"
	propRecurrenceID = "RECURRENCE-ID"
)

// ParseICS parses a single ICS payload into an ordered list of
// EventRecord. Non-VEVENT components are ignored.
//
//   - It relies on the underlying library's VTIMEZONE/TZID handling to
//     construct proper time.Time values (with Location set).
//   - It detects all-day events by inspecting the DTSTART value format.
//   - RRULE/RDATE/EXDATE/RECURRENCE-ID are recorded as raw strings only;
//     nothing downstream expands them.
//
// Any structural defect (library parse failure, event without DTSTART)
// fails the whole document with ParseError: a partially parsed source
// must never reach the output.
func ParseICS(body []byte) ([]model.EventRecord, error) {
	if len(body) == 0 {
		return nil, &ParseError{Reason: "empty ICS body"}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Reason: "invalid calendar document", Err: err}
	}

	vevents := cal.Events()
	events := make([]model.EventRecord, 0, len(vevents))

	for _, comp := range vevents {
		rec, perr := parseVEvent(comp)
		if perr != nil {
			return nil, perr
		}
		events = append(events, rec)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (model.EventRecord, error) {
	var out model.EventRecord
	out.Props = make(map[string][]string)

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil || dtStartProp.Value == "" {
		return out, &ParseError{Reason: "event missing DTSTART"}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, &ParseError{Reason: "unparseable DTSTART " + dtStartProp.Value, Err: err}
	}
	out.Start = start

	// Detect all-day: VALUE=DATE parameter or date-only form.
	allDay := false
	if params := dtStartProp.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
		if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
			out.StartTZ = tzs[0]
		}
	}
	if !strings.Contains(dtStartProp.Value, "T") {
		allDay = true
	}
	out.AllDay = allDay

	// Floating local times (no Z, no TZID) are reinterpreted in the
	// target timezone by the normalizer.
	if !allDay && out.StartTZ == "" && !strings.HasSuffix(dtStartProp.Value, "Z") {
		out.Floating = true
	}

	durationRaw := ""
	if p := ve.GetProperty(ical.ComponentProperty(propDuration)); p != nil {
		durationRaw = strings.TrimSpace(p.Value)
	}

	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if dur, derr := parseICSDuration(durationRaw); durationRaw != "" && derr == nil {
		// DTSTART + DURATION: the extent is real even without DTEND.
		out.End = out.Start.Add(dur)
	} else if allDay {
		// DATE events without DTEND span one day.
		out.End = out.Start.Add(24 * time.Hour)
	} else {
		out.End = out.Start
	}

	for _, p := range ve.Properties {
		name := strings.ToUpper(strings.TrimSpace(p.IANAToken))
		switch name {
		case propUID:
			// Kept for diagnostics; replaced downstream.
			out.UID = p.Value
		case propDtStart, propDtEnd:
			// Timing already captured above.
		case propDtStamp:
			if t, err := parseICSTime(p.Value); err == nil {
				out.DTStamp = t
			}
		case propDuration:
			out.Duration = p.Value
		case propSequence:
			out.HasSequence = true
		case propRRule:
			out.RRule = p.Value
		case propRDate:
			out.RDate = append(out.RDate, rawProp(p))
		case propExDate:
			out.ExDate = append(out.ExDate, rawProp(p))
		case propRecurrenceID:
			out.RecurrenceID = rawProp(p)
		default:
			out.Props[name] = append(out.Props[name], p.Value)
		}
	}

	return out, nil
}

// rawProp captures a property's parameters and value for verbatim
// pass-through into the output.
func rawProp(p ical.IANAProperty) model.RawProp {
	out := model.RawProp{Value: p.Value}
	if len(p.ICalParameters) > 0 {
		out.Params = make(map[string][]string, len(p.ICalParameters))
		for k, vs := range p.ICalParameters {
			cp := make([]string, len(vs))
			copy(cp, vs)
			out.Params[k] = cp
		}
	}
	return out
}

// parseICSDuration parses an ICS duration (P1DT2H30M, PT15M, P2W,
// optionally signed). Date components count as whole 24-hour days.
func parseICSDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, fmt.Errorf("malformed duration %q", v)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := 0
	hasNum := false
	components := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			num = num*10 + int(c-'0')
			hasNum = true
		case c == 'T' && !inTime && !hasNum:
			inTime = true
		default:
			if !hasNum {
				return 0, fmt.Errorf("malformed duration %q", v)
			}
			var unit time.Duration
			switch {
			case c == 'W' && !inTime:
				unit = 7 * 24 * time.Hour
			case c == 'D' && !inTime:
				unit = 24 * time.Hour
			case c == 'H' && inTime:
				unit = time.Hour
			case c == 'M' && inTime:
				unit = time.Minute
			case c == 'S' && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("malformed duration %q", v)
			}
			total += time.Duration(num) * unit
			num, hasNum = 0, false
			components++
		}
	}
	if hasNum || components == 0 {
		return 0, fmt.Errorf("malformed duration %q", v)
	}
	if neg {
		total = -total
	}
	return total, nil
}

// parseICSTime parses a basic ICS date/date-time string into time.Time.
// Used for DTSTAMP, where full parameter context is not needed.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		return time.ParseInLocation(layout, v, time.UTC)
	}

	// Date-only, e.g., 20250101
	const layoutDate = "20060102"
	return time.ParseInLocation(layoutDate, v, time.UTC)
}
