package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptavail/libs/db"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/calendar"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

type CalendarRepository struct {
	pool *db.Pool
}

func NewCalendarRepository(pool *db.Pool) *CalendarRepository {
	return &CalendarRepository{pool: pool}
}

const calendarColumns = `id, owner_id, provider, COALESCE(provider_id, ''), COALESCE(url, ''),
	COALESCE(username, ''), COALESCE(secret, ''), COALESCE(timezone, '')`

func (r *CalendarRepository) ConnectedCalendars(ctx context.Context, ownerID string) ([]model.ConnectedCalendar, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+calendarColumns+`
		FROM connected_calendars
		WHERE owner_id = $1 AND disconnected_at IS NULL
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConnectedCalendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConnectedCalendar returns calendar.ErrUnknownCalendar when id does not exist or was
// disconnected.
func (r *CalendarRepository) ConnectedCalendar(ctx context.Context, id string) (model.ConnectedCalendar, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+calendarColumns+`
		FROM connected_calendars
		WHERE id = $1 AND disconnected_at IS NULL
	`, id)
	c, err := scanCalendar(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ConnectedCalendar{}, fmt.Errorf("%w: %s", calendar.ErrUnknownCalendar, id)
	}
	return c, err
}

func scanCalendar(row pgx.Row) (model.ConnectedCalendar, error) {
	var (
		c        model.ConnectedCalendar
		provider string
	)
	err := row.Scan(&c.ID, &c.OwnerID, &provider, &c.ProviderID, &c.URL, &c.Username, &c.Secret, &c.Timezone)
	if err != nil {
		return model.ConnectedCalendar{}, err
	}
	c.Provider = model.Provider(provider)
	return c, nil
}
