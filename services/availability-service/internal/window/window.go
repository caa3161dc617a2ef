// Package window derives the absolute range in which a schedule accepts bookings.
package window

import (
	"time"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

// AllowedRange returns [now+earliest, now+farthest) clipped to the schedule's validity
// dates. StartDate and EndDate are whole days in the schedule timezone; EndDate is
// inclusive and a nil EndDate leaves the range open. An empty result is returned as an
// empty interval anchored at now+earliest.
func AllowedRange(s model.Schedule, now time.Time) interval.Interval {
	loc, err := s.Location()
	if err != nil {
		loc = time.UTC
	}

	start := now.Add(time.Duration(s.EarliestBooking) * time.Minute)
	end := now.Add(time.Duration(s.FarthestBooking) * time.Minute)

	if !s.StartDate.IsZero() {
		if first := s.StartDate.Midnight(loc); first.After(start) {
			start = first
		}
	}
	if s.EndDate != nil {
		if last := s.EndDate.AddDays(1).Midnight(loc); last.Before(end) {
			end = last
		}
	}
	if !start.Before(end) {
		return interval.Empty(start)
	}
	return interval.Interval{Start: start, End: end}
}
