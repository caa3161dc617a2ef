package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

func ParseClock(v string) (Clock, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant of this wall-clock time on day d in loc.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, loc)
}

type LocationType string

const (
	LocationInPerson LocationType = "inperson"
	LocationOnline   LocationType = "online"
)

type Schedule struct {
	ID                  string
	OwnerID             string
	Active              bool
	Name                string
	CalendarID          string
	LocationType        LocationType
	LocationURL         string
	Details             string
	StartDate           Date
	EndDate             *Date
	StartTime           Clock
	EndTime             Clock
	EarliestBooking     int // minutes from now
	FarthestBooking     int // minutes from now
	Weekdays            []int
	SlotDuration        int // minutes
	MeetingLinkProvider string
	BookingConfirmation bool
	Timezone            string
}

// Validate reports configurations from which no slot grid can be derived.
func (s Schedule) Validate() error {
	if s.StartTime >= s.EndTime {
		return fmt.Errorf("%w: start_time %s must be before end_time %s", ErrInvalidSchedule, s.StartTime, s.EndTime)
	}
	if s.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot_duration must be positive (got %d)", ErrInvalidSchedule, s.SlotDuration)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return nil
}

// Location resolves the schedule's timezone, defaulting to UTC.
func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

func (s Schedule) OnWeekday(isoWeekday int) bool {
	for _, wd := range s.Weekdays {
		if wd == isoWeekday {
			return true
		}
	}
	return false
}

func (s Schedule) SlotLength() time.Duration {
	return time.Duration(s.SlotDuration) * time.Minute
}

// BookingInfo is the schedule metadata a caller needs to create a booking from a slot.
type BookingInfo struct {
	ScheduleID           string       `json:"schedule_id,omitempty"`
	ScheduleName         string       `json:"schedule_name"`
	CalendarID           string       `json:"calendar_id"`
	ConfirmationRequired bool         `json:"confirmation_required"`
	LocationType         LocationType `json:"location_type"`
	LocationURL          string       `json:"location_url,omitempty"`
	MeetingLinkProvider  string       `json:"meeting_link_provider,omitempty"`
	Details              string       `json:"details,omitempty"`
}

func (s Schedule) BookingInfo() BookingInfo {
	return BookingInfo{
		ScheduleID:           s.ID,
		ScheduleName:         s.Name,
		CalendarID:           s.CalendarID,
		ConfirmationRequired: s.BookingConfirmation,
		LocationType:         s.LocationType,
		LocationURL:          s.LocationURL,
		MeetingLinkProvider:  s.MeetingLinkProvider,
		Details:              s.Details,
	}
}

type Slot struct {
	Start   time.Time
	End     time.Time
	Booking BookingInfo
}
