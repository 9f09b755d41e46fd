package model

import "time"

// RawProp is a property carried through the pipeline verbatim:
// parameters and value re-emitted exactly as parsed. A TZID or
// VALUE=DATE parameter on an EXDATE changes which occurrence it names,
// so stripping parameters would corrupt the recurrence set.
type RawProp struct {
	Params map[string][]string
	Value  string
}

func (p RawProp) clone() RawProp {
	if p.Params == nil {
		return p
	}
	params := make(map[string][]string, len(p.Params))
	for k, vs := range p.Params {
		cp := make([]string, len(vs))
		copy(cp, vs)
		params[k] = cp
	}
	return RawProp{Params: params, Value: p.Value}
}

func cloneRawProps(ps []RawProp) []RawProp {
	if ps == nil {
		return nil
	}
	out := make([]RawProp, len(ps))
	for i, p := range ps {
		out[i] = p.clone()
	}
	return out
}

// EventRecord is one source VEVENT as produced by the ICS parser.
// Stages downstream (scrubber, identifier deriver, temporal normalizer)
// never mutate an EventRecord; each produces a transformed copy.
type EventRecord struct {
	// UID is the source identifier as parsed. It informs diagnostics
	// only; the output always carries a derived anonymized identifier.
	UID string

	// Start / End carry the library-resolved instants. For all-day events
	// these are midnight-anchored in the event's own location.
	Start  time.Time
	End    time.Time
	AllDay bool

	// StartTZ is the raw TZID parameter on DTSTART, if any.
	StartTZ string

	// Floating marks a timed event whose DTSTART carries neither a TZID
	// nor a UTC suffix; the normalizer reinterprets it in the target zone.
	Floating bool

	// Raw recurrence-related properties, passed through opaquely. They feed
	// the identifier derivation and survive into the output unchanged,
	// parameters included.
	RRule        string
	RDate        []RawProp
	ExDate       []RawProp
	RecurrenceID RawProp

	// Duration is the raw DURATION value when the event has one instead of
	// (or besides) DTEND.
	Duration string

	// DTStamp is the source DTSTAMP instant, zero when absent.
	DTStamp time.Time

	// HasSequence records whether the source carried a SEQUENCE property.
	HasSequence bool

	// Props holds every other property by name (SUMMARY, DESCRIPTION,
	// ORGANIZER, ATTENDEE, ..., plus anything unrecognized). Repeated
	// properties keep all their values.
	Props map[string][]string
}

// Clone returns a deep copy so a stage can transform without aliasing the
// input record's property bag.
func (r EventRecord) Clone() EventRecord {
	out := r
	if r.Props != nil {
		out.Props = make(map[string][]string, len(r.Props))
		for k, vs := range r.Props {
			cp := make([]string, len(vs))
			copy(cp, vs)
			out.Props[k] = cp
		}
	}
	out.RDate = cloneRawProps(r.RDate)
	out.ExDate = cloneRawProps(r.ExDate)
	out.RecurrenceID = r.RecurrenceID.clone()
	return out
}

// Prop returns the first value of the named property, or "".
func (r EventRecord) Prop(name string) string {
	if vs, ok := r.Props[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// AnonymizedEvent is the output-side record: everything a sanitized VEVENT
// is allowed to contain, nothing else.
type AnonymizedEvent struct {
	UID string

	// Start / End are normalized into the target timezone. When AllDay is
	// set they are date-anchored and End is exclusive (the day after the
	// last occupied day).
	Start  time.Time
	End    time.Time
	AllDay bool

	Summary     string
	Description string

	// Location is empty unless the keep-location option retained it.
	Location string

	// Opaque recurrence pass-through, parameters included.
	RRule        string
	RDate        []RawProp
	ExDate       []RawProp
	RecurrenceID RawProp

	// DTStamp is deterministic: the source DTSTAMP when present, else the
	// event start. Never wall-clock time.
	DTStamp time.Time

	// HasSequence mirrors the source; serialized as SEQUENCE:0.
	HasSequence bool
}
