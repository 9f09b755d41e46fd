package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anoncal/internal/model"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func sampleEvents(loc *time.Location) []model.AnonymizedEvent {
	return []model.AnonymizedEvent{
		{
			UID:         "anon-0123456789abcdef0123@anonymized",
			Start:       time.Date(2025, 3, 10, 14, 0, 0, 0, loc),
			End:         time.Date(2025, 3, 10, 16, 0, 0, 0, loc),
			Summary:     "Unavailable",
			Description: "Unavailable",
			DTStamp:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			UID:         "anon-fedcba9876543210fedc@anonymized",
			Start:       time.Date(2025, 4, 1, 0, 0, 0, 0, loc),
			End:         time.Date(2025, 4, 3, 0, 0, 0, 0, loc),
			AllDay:      true,
			Summary:     "Unavailable",
			Description: "Unavailable",
			RRule:       "FREQ=YEARLY",
			HasSequence: true,
			DTStamp:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestSerialize_CalendarStructure(t *testing.T) {
	loc := tokyo(t)

	out, err := Serialize(sampleEvents(loc), loc)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "BEGIN:VTIMEZONE"), "exactly one timezone definition block")
	assert.Contains(t, out, "TZID:Asia/Tokyo")
	assert.Contains(t, out, "PRODID:"+productID)
	assert.Contains(t, out, "CALSCALE:GREGORIAN")
	assert.Contains(t, out, "X-WR-TIMEZONE:Asia/Tokyo")
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
}

func TestSerialize_TimedEventCarriesTargetTimezone(t *testing.T) {
	loc := tokyo(t)

	out, err := Serialize(sampleEvents(loc), loc)
	require.NoError(t, err)

	assert.Contains(t, out, "DTSTART;TZID=Asia/Tokyo:20250310T140000")
	assert.Contains(t, out, "DTEND;TZID=Asia/Tokyo:20250310T160000")
}

func TestSerialize_AllDayEventIsDateOnly(t *testing.T) {
	loc := tokyo(t)

	out, err := Serialize(sampleEvents(loc), loc)
	require.NoError(t, err)

	assert.Contains(t, out, "DTSTART;VALUE=DATE:20250401")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20250403")
	assert.Contains(t, out, "TRANSP:OPAQUE")
	assert.Contains(t, out, "SEQUENCE:0")
	assert.Contains(t, out, "RRULE:FREQ=YEARLY")
}

func TestSerialize_RoundTrip(t *testing.T) {
	loc := tokyo(t)
	events := sampleEvents(loc)

	out, err := Serialize(events, loc)
	require.NoError(t, err)

	recs, err := ParseICS([]byte(out))
	require.NoError(t, err)
	require.Len(t, recs, len(events))

	// Identifier set survives the round trip.
	for i, ev := range events {
		assert.Equal(t, ev.UID, recs[i].UID)
	}

	assert.NoError(t, Validate(out, len(events)))
}

func TestSerialize_RecurrencePropertyParametersPreserved(t *testing.T) {
	loc := tokyo(t)

	events := []model.AnonymizedEvent{
		{
			UID:         "anon-0123456789abcdef0123@anonymized",
			Start:       time.Date(2025, 4, 20, 14, 0, 0, 0, loc),
			End:         time.Date(2025, 4, 20, 16, 0, 0, 0, loc),
			Summary:     "Unavailable",
			Description: "Unavailable",
			RRule:       "FREQ=WEEKLY;COUNT=5",
			ExDate: []model.RawProp{
				{Params: map[string][]string{"TZID": {"Asia/Tokyo"}}, Value: "20250427T140000"},
			},
			RDate: []model.RawProp{
				{Params: map[string][]string{"VALUE": {"DATE"}}, Value: "20250501"},
			},
			DTStamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	out, err := Serialize(events, loc)
	require.NoError(t, err)

	assert.Contains(t, out, "EXDATE;TZID=Asia/Tokyo:20250427T140000")
	assert.Contains(t, out, "RDATE;VALUE=DATE:20250501")
}

func TestSerialize_Deterministic(t *testing.T) {
	loc := tokyo(t)

	first, err := Serialize(sampleEvents(loc), loc)
	require.NoError(t, err)
	second, err := Serialize(sampleEvents(loc), loc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSerialize_MalformedFieldValue(t *testing.T) {
	loc := tokyo(t)

	events := sampleEvents(loc)
	events[0].Summary = "bad \xff\xfe value"

	_, err := Serialize(events, loc)

	var serr *SerializationError
	require.Error(t, err)
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "SUMMARY", serr.Field)
}

func TestValidate_CountMismatch(t *testing.T) {
	loc := tokyo(t)

	out, err := Serialize(sampleEvents(loc), loc)
	require.NoError(t, err)

	var verr *ValidationError
	err = Validate(out, 3)
	require.Error(t, err)
	assert.True(t, errors.As(err, &verr))
}

func TestValidate_UnparseableOutput(t *testing.T) {
	var verr *ValidationError
	err := Validate("garbage", 0)
	require.Error(t, err)
	assert.True(t, errors.As(err, &verr))
}

func TestBuildVTimezone_DSTZoneGetsDaylightBlock(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	out, err := Serialize(nil, paris)
	require.NoError(t, err)

	assert.Contains(t, out, "BEGIN:STANDARD")
	assert.Contains(t, out, "BEGIN:DAYLIGHT")
	assert.Contains(t, out, "TZOFFSETTO:+0100")
	assert.Contains(t, out, "TZOFFSETTO:+0200")
}

func TestBuildVTimezone_FixedOffsetZoneHasNoDaylight(t *testing.T) {
	loc := tokyo(t)

	out, err := Serialize(nil, loc)
	require.NoError(t, err)

	assert.Contains(t, out, "BEGIN:STANDARD")
	assert.NotContains(t, out, "BEGIN:DAYLIGHT")
	assert.Contains(t, out, "TZOFFSETTO:+0900")
}
