package model

import "time"

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderCalDAV Provider = "caldav"
)

// ConnectedCalendar is an external calendar whose busy time blocks a schedule.
type ConnectedCalendar struct {
	ID         string
	OwnerID    string
	Provider   Provider
	ProviderID string // remote calendar id, or the CalDAV collection path
	URL        string
	Username   string
	Secret     string // CalDAV password or OAuth token JSON
	Timezone   string
}

func (c ConnectedCalendar) String() string {
	return string(c.Provider) + "/" + c.ID
}

// Location resolves the calendar's timezone used for all-day events, defaulting to UTC.
func (c ConnectedCalendar) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RemoteEvent is an event fetched from a connected calendar, already normalized by its client.
type RemoteEvent struct {
	SourceCalendarID string
	Start            time.Time
	End              time.Time
	AllDay           bool
	Transparent      bool
	Cancelled        bool
	Location         *time.Location
}

// Busy reports whether the event blocks time.
func (e RemoteEvent) Busy() bool {
	return !e.Transparent && !e.Cancelled
}

// Bounds returns the blocked range. All-day events span from the start of their first day
// to the start of the day after their last day, in the event's calendar location.
func (e RemoteEvent) Bounds() (time.Time, time.Time) {
	if !e.AllDay {
		return e.Start, e.End
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	start := DateOf(e.Start.In(loc)).Midnight(loc)
	endLocal := e.End.In(loc)
	endDay := DateOf(endLocal)
	end := endDay.Midnight(loc)
	if !endLocal.Equal(end) || !end.After(start) {
		end = endDay.AddDays(1).Midnight(loc)
	}
	return start, end
}
