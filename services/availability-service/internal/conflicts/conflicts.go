// Package conflicts turns local appointments into busy intervals.
package conflicts

import (
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

// FromAppointments returns the merged busy time of every non-cancelled appointment.
// Appointments whose end is not after their start are ignored.
func FromAppointments(appts []model.Appointment) []interval.Interval {
	busy := make([]interval.Interval, 0, len(appts))
	for _, a := range appts {
		if a.Cancelled() {
			continue
		}
		iv, err := interval.New(a.Start, a.End)
		if err != nil {
			continue
		}
		busy = append(busy, iv)
	}
	return interval.Merge(busy)
}

// InRange keeps the appointments that overlap rng.
func InRange(appts []model.Appointment, rng interval.Interval) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if interval.Overlaps(interval.Interval{Start: a.Start, End: a.End}, rng) {
			out = append(out, a)
		}
	}
	return out
}
