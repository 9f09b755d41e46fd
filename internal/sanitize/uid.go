package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"anoncal/internal/model"
)

// uidSuffix namespaces derived identifiers so they cannot collide with
// UIDs from unrelated calendars.
const uidSuffix = "@anonymized"

// DeriveUID computes the deterministic anonymized identifier for an
// event from its raw, pre-normalization timing and recurrence values:
// SHA-256 over a pipe-joined canonical string, first 20 hex characters,
// namespaced as anon-<digest>@anonymized.
//
// The canonicalization format is a compatibility contract: clients
// de-duplicate on these UIDs across runs, so changing it breaks their
// history.
func DeriveUID(rec model.EventRecord) string {
	parts := []string{
		canonicalTime(rec.Start, rec.AllDay),
		canonicalTime(rec.End, rec.AllDay),
		rec.Duration,
		rec.RRule,
		joinPropValues(rec.RDate),
		joinPropValues(rec.ExDate),
		rec.RecurrenceID.Value,
	}
	basis := strings.Join(parts, "|")
	digest := sha256.Sum256([]byte(basis))
	return "anon-" + hex.EncodeToString(digest[:])[:20] + uidSuffix
}

// joinPropValues flattens repeated RDATE/EXDATE values in document
// order; parameters stay out of the basis, they do not identify the
// event.
func joinPropValues(props []model.RawProp) string {
	values := make([]string, 0, len(props))
	for _, p := range props {
		values = append(values, p.Value)
	}
	return strings.Join(values, ",")
}

// canonicalTime renders an instant in a representation-independent
// form: UTC RFC3339 for timed values, a marked calendar date for
// all-day values. Zero times contribute the empty string.
func canonicalTime(t time.Time, allDay bool) string {
	if t.IsZero() {
		return ""
	}
	if allDay {
		return t.Format("2006-01-02") + "(DATE)"
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
