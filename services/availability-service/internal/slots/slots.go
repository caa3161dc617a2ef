// Package slots expands a schedule into its grid of candidate slots.
package slots

import (
	"iter"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

// Generate yields the schedule's slots lying entirely inside rng, in chronological order.
// Each call starts from scratch, so the sequence can be ranged over repeatedly.
//
// Days are walked in the schedule timezone and skipped unless their ISO weekday is in
// s.Weekdays. Within a day, slots of SlotDuration minutes start at StartTime and stop
// once the next slot would end after EndTime; a partial trailing slot is never emitted.
// Slot starts are wall-clock times in the schedule timezone and every slot lasts exactly
// SlotDuration. A start that falls in a DST gap does not exist that day and is skipped;
// in a repeated hour the first occurrence is used.
func Generate(s model.Schedule, rng interval.Interval) iter.Seq[model.Slot] {
	return func(yield func(model.Slot) bool) {
		if rng.IsEmpty() || s.SlotDuration <= 0 || s.StartTime >= s.EndTime || len(s.Weekdays) == 0 {
			return
		}
		loc, err := s.Location()
		if err != nil {
			return
		}
		booking := s.BookingInfo()
		step := model.Clock(s.SlotDuration)
		length := s.SlotLength()

		last := model.DateOf(rng.End.In(loc))
		for day := model.DateOf(rng.Start.In(loc)); !last.Before(day); day = day.AddDays(1) {
			if !s.OnWeekday(day.Weekday()) {
				continue
			}
			for c := s.StartTime; c+step <= s.EndTime; c += step {
				start := c.On(day, loc)
				if start.Hour() != c.Hour() || start.Minute() != c.Minute() {
					continue
				}
				end := start.Add(length)
				if start.Before(rng.Start) {
					continue
				}
				if end.After(rng.End) {
					return
				}
				if !yield(model.Slot{Start: start, End: end, Booking: booking}) {
					return
				}
			}
		}
	}
}

// Collect materializes at most limit slots; limit <= 0 means no limit.
func Collect(seq iter.Seq[model.Slot], limit int) []model.Slot {
	var out []model.Slot
	for slot := range seq {
		out = append(out, slot)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
