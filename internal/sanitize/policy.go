package sanitize

import "anoncal/internal/model"

// Policy controls which descriptive fields survive scrubbing and what
// replaces SUMMARY/DESCRIPTION.
type Policy struct {
	Summary      string
	Description  string
	KeepLocation bool
}

// Properties the source may carry that must never appear in output.
// The scrubber does not enumerate against this list — it drops anything
// not explicitly allowed — but keeping the original removal list around
// lets tests assert scrub completeness against it by name.
var SensitiveProps = []string{
	"ORGANIZER",
	"ATTENDEE",
	"CONTACT",
	"URL",
	"COMMENT",
	"RESOURCES",
	"GEO",
	"CATEGORIES",
	"RELATED-TO",
	"ATTACH",
}

// Scrub returns a copy of rec with the property bag reduced to the
// allow-list: SUMMARY and DESCRIPTION replaced with the policy values,
// LOCATION retained only when the policy says so. Every other property,
// known or unknown, is dropped. Timing and recurrence fields live
// outside the bag and pass through untouched.
func (p Policy) Scrub(rec model.EventRecord) model.EventRecord {
	out := rec.Clone()

	kept := make(map[string][]string, 3)
	kept["SUMMARY"] = []string{p.Summary}
	kept["DESCRIPTION"] = []string{p.Description}
	if p.KeepLocation {
		if loc := rec.Prop("LOCATION"); loc != "" {
			kept["LOCATION"] = []string{loc}
		}
	}
	out.Props = kept

	return out
}
