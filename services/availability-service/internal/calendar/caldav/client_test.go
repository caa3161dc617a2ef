package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

func decode(t *testing.T, lines ...string) *ical.Calendar {
	t.Helper()
	body := strings.Join(append(append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//Availability//EN",
	}, lines...), "END:VCALENDAR", ""), "\r\n")
	cal, err := ical.NewDecoder(strings.NewReader(body)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cal
}

var (
	rangeFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
)

func TestParseObject_TimedEvent(t *testing.T) {
	cal := decode(t,
		"BEGIN:VEVENT",
		"UID:timed-1",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240105T100000Z",
		"DTEND:20240105T110000Z",
		"END:VEVENT",
	)
	events, err := parseObject(cal, time.UTC, rangeFrom, rangeTo)
	if err != nil {
		t.Fatalf("parseObject failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.AllDay || ev.Transparent || ev.Cancelled {
		t.Fatalf("unexpected flags %+v", ev)
	}
	if !ev.Start.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)) || !ev.End.Equal(time.Date(2024, 1, 5, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %s - %s", ev.Start, ev.End)
	}
}

func TestParseObject_AllDayAndFlags(t *testing.T) {
	tests := []struct {
		name                           string
		props                          []string
		allDay, transparent, cancelled bool
	}{
		{
			name:   "all day",
			props:  []string{"DTSTART;VALUE=DATE:20240105", "DTEND;VALUE=DATE:20240106"},
			allDay: true,
		},
		{
			name:        "transparent",
			props:       []string{"DTSTART:20240105T100000Z", "DTEND:20240105T110000Z", "TRANSP:TRANSPARENT"},
			transparent: true,
		},
		{
			name:      "cancelled",
			props:     []string{"DTSTART:20240105T100000Z", "DTEND:20240105T110000Z", "STATUS:CANCELLED"},
			cancelled: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines := append([]string{"BEGIN:VEVENT", "UID:x", "DTSTAMP:20240101T000000Z"}, tc.props...)
			lines = append(lines, "END:VEVENT")
			events, err := parseObject(decode(t, lines...), time.UTC, rangeFrom, rangeTo)
			if err != nil {
				t.Fatalf("parseObject failed: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			ev := events[0]
			if ev.AllDay != tc.allDay || ev.Transparent != tc.transparent || ev.Cancelled != tc.cancelled {
				t.Fatalf("unexpected flags %+v", ev)
			}
		})
	}
}

func TestParseObject_ExpandsRecurrence(t *testing.T) {
	cal := decode(t,
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240102T090000Z",
		"DTEND:20240102T100000Z",
		"RRULE:FREQ=WEEKLY;COUNT=4",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTAMP:20240101T000000Z",
		"RECURRENCE-ID:20240109T090000Z",
		"DTSTART:20240109T110000Z",
		"DTEND:20240109T120000Z",
		"END:VEVENT",
	)
	events, err := parseObject(cal, time.UTC, rangeFrom, rangeTo)
	if err != nil {
		t.Fatalf("parseObject failed: %v", err)
	}
	// Jan 2 and Jan 16 from the rule, Jan 9 moved to 11:00; Jan 23 is outside the range.
	want := map[time.Time]bool{
		time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC):  true,
		time.Date(2024, 1, 9, 11, 0, 0, 0, time.UTC): true,
		time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC): true,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %+v", len(want), len(events), events)
	}
	for _, ev := range events {
		if !want[ev.Start.UTC()] {
			t.Fatalf("unexpected occurrence at %s", ev.Start)
		}
		if ev.End.Sub(ev.Start) != time.Hour {
			t.Fatalf("occurrence at %s has length %s", ev.Start, ev.End.Sub(ev.Start))
		}
	}
}

func TestParseObject_Invalid(t *testing.T) {
	if _, err := parseObject(nil, time.UTC, rangeFrom, rangeTo); err == nil {
		t.Fatal("expected error for nil object")
	}
	cal := decode(t,
		"BEGIN:VTODO",
		"UID:todo-1",
		"DTSTAMP:20240101T000000Z",
		"END:VTODO",
	)
	if _, err := parseObject(cal, time.UTC, rangeFrom, rangeTo); err == nil {
		t.Fatal("expected error for object without VEVENT")
	}
}
