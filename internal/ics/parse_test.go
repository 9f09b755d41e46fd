package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendarDoc(events ...string) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}
	lines = append(lines, events...)
	lines = append(lines, "END:VCALENDAR", "")
	return []byte(strings.Join(lines, "\r\n"))
}

const timedEvent = `BEGIN:VEVENT
UID:ev1@example.com
DTSTAMP:20250301T120000Z
DTSTART;TZID=Asia/Tokyo:20250310T220000
DTEND;TZID=Asia/Tokyo:20250312T090000
SUMMARY:Guest stay
DESCRIPTION:Booking ref 1234
ORGANIZER:mailto:host@example.com
ATTENDEE:mailto:guest@example.com
LOCATION:Room 12
SEQUENCE:2
END:VEVENT`

const allDayEvent = `BEGIN:VEVENT
UID:ev2@example.com
DTSTAMP:20250301T120000Z
DTSTART;VALUE=DATE:20250401
DTEND;VALUE=DATE:20250403
SUMMARY:Blocked
RRULE:FREQ=YEARLY
END:VEVENT`

func eventLines(ev string) []string {
	return strings.Split(strings.ReplaceAll(ev, "\r\n", "\n"), "\n")
}

func TestParseICS_TimedEvent(t *testing.T) {
	recs, err := ParseICS(calendarDoc(eventLines(timedEvent)...))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	jst, _ := time.LoadLocation("Asia/Tokyo")

	assert.Equal(t, "ev1@example.com", rec.UID)
	assert.False(t, rec.AllDay)
	assert.False(t, rec.Floating)
	assert.Equal(t, "Asia/Tokyo", rec.StartTZ)
	assert.True(t, rec.Start.Equal(time.Date(2025, 3, 10, 22, 0, 0, 0, jst)))
	assert.True(t, rec.End.Equal(time.Date(2025, 3, 12, 9, 0, 0, 0, jst)))
	assert.True(t, rec.HasSequence)
	assert.True(t, rec.DTStamp.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, "Guest stay", rec.Prop("SUMMARY"))
	assert.Equal(t, "Booking ref 1234", rec.Prop("DESCRIPTION"))
	assert.Equal(t, "Room 12", rec.Prop("LOCATION"))
	assert.Equal(t, "mailto:host@example.com", rec.Prop("ORGANIZER"))
	assert.Contains(t, rec.Props, "ATTENDEE")
}

func TestParseICS_AllDayEvent(t *testing.T) {
	recs, err := ParseICS(calendarDoc(eventLines(allDayEvent)...))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.True(t, rec.AllDay)
	assert.Equal(t, "FREQ=YEARLY", rec.RRule)

	y, m, d := rec.Start.Date()
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.April, m)
	assert.Equal(t, 1, d)

	y, m, d = rec.End.Date()
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.April, m)
	assert.Equal(t, 3, d)
}

func TestParseICS_PreservesDocumentOrder(t *testing.T) {
	doc := calendarDoc(append(eventLines(timedEvent), eventLines(allDayEvent)...)...)

	recs, err := ParseICS(doc)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ev1@example.com", recs[0].UID)
	assert.Equal(t, "ev2@example.com", recs[1].UID)
}

func TestParseICS_FloatingTimeDetected(t *testing.T) {
	ev := []string{
		"BEGIN:VEVENT",
		"UID:float@example.com",
		"DTSTART:20250310T140000",
		"DTEND:20250310T160000",
		"SUMMARY:Floating",
		"END:VEVENT",
	}

	recs, err := ParseICS(calendarDoc(ev...))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Floating)
}

func TestParseICS_RepeatedExdatesCollected(t *testing.T) {
	ev := []string{
		"BEGIN:VEVENT",
		"UID:rec@example.com",
		"DTSTART:20250310T140000Z",
		"DTEND:20250310T160000Z",
		"RRULE:FREQ=DAILY;COUNT=10",
		"EXDATE:20250311T140000Z",
		"EXDATE:20250312T140000Z",
		"SUMMARY:Recurring",
		"END:VEVENT",
	}

	recs, err := ParseICS(calendarDoc(ev...))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].ExDate, 2)
	assert.Equal(t, "20250311T140000Z", recs[0].ExDate[0].Value)
	assert.Equal(t, "20250312T140000Z", recs[0].ExDate[1].Value)
}

func TestParseICS_ExdateKeepsParameters(t *testing.T) {
	ev := []string{
		"BEGIN:VEVENT",
		"UID:rec@example.com",
		"DTSTART;TZID=Asia/Tokyo:20250420T140000",
		"DTEND;TZID=Asia/Tokyo:20250420T160000",
		"RRULE:FREQ=WEEKLY;COUNT=5",
		"EXDATE;TZID=Asia/Tokyo:20250427T140000",
		"RDATE;VALUE=DATE:20250501",
		"SUMMARY:Recurring",
		"END:VEVENT",
	}

	recs, err := ParseICS(calendarDoc(ev...))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.Len(t, recs[0].ExDate, 1)
	assert.Equal(t, "20250427T140000", recs[0].ExDate[0].Value)
	assert.Equal(t, []string{"Asia/Tokyo"}, recs[0].ExDate[0].Params["TZID"])

	require.Len(t, recs[0].RDate, 1)
	assert.Equal(t, "20250501", recs[0].RDate[0].Value)
	assert.Equal(t, []string{"DATE"}, recs[0].RDate[0].Params["VALUE"])
}

func TestParseICS_DurationOnlyEventGetsRealEnd(t *testing.T) {
	ev := []string{
		"BEGIN:VEVENT",
		"UID:dur@example.com",
		"DTSTART;TZID=Asia/Tokyo:20250420T140000",
		"DURATION:PT2H",
		"SUMMARY:No DTEND",
		"END:VEVENT",
	}

	recs, err := ParseICS(calendarDoc(ev...))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "PT2H", rec.Duration)
	assert.Equal(t, 2*time.Hour, rec.End.Sub(rec.Start))
}

func TestParseICSDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT2H", 2 * time.Hour},
		{"PT15M", 15 * time.Minute},
		{"P1DT11H", 35 * time.Hour},
		{"P2W", 14 * 24 * time.Hour},
		{"P1DT2H30M10S", 26*time.Hour + 30*time.Minute + 10*time.Second},
		{"-PT1H", -time.Hour},
	}
	for _, tc := range cases {
		got, err := parseICSDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "2H", "P", "PT", "PTH", "P1X", "PT1D"} {
		_, err := parseICSDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseICS_MissingDtStartIsFatal(t *testing.T) {
	ev := []string{
		"BEGIN:VEVENT",
		"UID:broken@example.com",
		"SUMMARY:No timing",
		"END:VEVENT",
	}

	_, err := ParseICS(calendarDoc(ev...))

	var perr *ParseError
	require.Error(t, err)
	assert.True(t, errors.As(err, &perr))
}

func TestParseICS_RejectsGarbage(t *testing.T) {
	var perr *ParseError

	_, err := ParseICS([]byte("this is not a calendar"))
	assert.True(t, errors.As(err, &perr))

	_, err = ParseICS(nil)
	assert.True(t, errors.As(err, &perr))
}
