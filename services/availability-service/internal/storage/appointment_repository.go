package storage

import (
	"context"

	"github.com/md-rashed-zaman/apptavail/libs/db"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

// PendingAppointments lists the non-cancelled appointments of a schedule overlapping rng.
func (r *AppointmentRepository) PendingAppointments(ctx context.Context, scheduleID string, rng interval.Interval) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, start_time, end_time, status
		FROM appointments
		WHERE schedule_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, scheduleID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var (
			a      model.Appointment
			status string
		)
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.Start, &a.End, &status); err != nil {
			return nil, err
		}
		a.Status = model.AppointmentStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}
