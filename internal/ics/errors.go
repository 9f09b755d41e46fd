package ics

import "fmt"

// ParseError indicates the source text is not a structurally valid
// calendar document (unterminated component, missing mandatory timing
// field, undecodable property).
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "ics parse: " + e.Reason + ": " + e.Err.Error()
	}
	return "ics parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// SerializationError indicates a field value could not be rendered into
// the output document.
type SerializationError struct {
	UID   string
	Field string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("ics serialize: event %s: malformed %s value", e.UID, e.Field)
}

// ValidationError indicates the rendered output failed the re-parse
// round-trip before commit.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "ics validate: " + e.Reason + ": " + e.Err.Error()
	}
	return "ics validate: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FetchError classifies a fetch failure. Transient errors (network,
// 5xx, 429) are retried with backoff; permanent ones (other 4xx) abort
// immediately.
type FetchError struct {
	Transient bool
	Status    int
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("ics fetch: %s failure: HTTP %d", kind, e.Status)
	}
	return fmt.Sprintf("ics fetch: %s failure: %v", kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
