package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptavail/libs/db"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// ActiveSchedules lists the owner's active schedules, oldest first.
func (r *ScheduleRepository) ActiveSchedules(ctx context.Context, ownerID string) ([]model.Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, active, name, COALESCE(calendar_id::text, ''), location_type,
			COALESCE(location_url, ''), COALESCE(details, ''), start_date, end_date,
			(EXTRACT(EPOCH FROM start_time) / 60)::int, (EXTRACT(EPOCH FROM end_time) / 60)::int,
			earliest_booking, farthest_booking, weekdays, slot_duration,
			COALESCE(meeting_link_provider, ''), booking_confirmation, COALESCE(timezone, '')
		FROM schedules
		WHERE owner_id = $1 AND active
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var (
			s                  model.Schedule
			locationType       string
			startDate          *time.Time
			endDate            *time.Time
			startTime, endTime int
			weekdays           []int32
		)
		if err := rows.Scan(
			&s.ID,
			&s.OwnerID,
			&s.Active,
			&s.Name,
			&s.CalendarID,
			&locationType,
			&s.LocationURL,
			&s.Details,
			&startDate,
			&endDate,
			&startTime,
			&endTime,
			&s.EarliestBooking,
			&s.FarthestBooking,
			&weekdays,
			&s.SlotDuration,
			&s.MeetingLinkProvider,
			&s.BookingConfirmation,
			&s.Timezone,
		); err != nil {
			return nil, err
		}
		s.LocationType = model.LocationType(locationType)
		s.StartTime = model.Clock(startTime)
		s.EndTime = model.Clock(endTime)
		s.StartDate, s.EndDate = scheduleDates(startDate, endDate)
		s.Weekdays = isoWeekdays(weekdays)
		out = append(out, s)
	}
	return out, rows.Err()
}

func scheduleDates(start, end *time.Time) (model.Date, *model.Date) {
	var from model.Date
	if start != nil {
		from = model.DateOf(*start)
	}
	if end == nil {
		return from, nil
	}
	to := model.DateOf(*end)
	return from, &to
}

// isoWeekdays drops values outside 1..7 and duplicates.
func isoWeekdays(raw []int32) []int {
	seen := make(map[int32]bool, len(raw))
	out := make([]int, 0, len(raw))
	for _, wd := range raw {
		if wd < 1 || wd > 7 || seen[wd] {
			continue
		}
		seen[wd] = true
		out = append(out, int(wd))
	}
	return out
}
