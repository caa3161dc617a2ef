// Package caldav reads busy time from CalDAV servers (iCloud, Fastmail, Nextcloud).
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// Events queries the VEVENTs overlapping [from, to). Recurring events are expanded
// locally, so servers without expand support still report every occurrence.
func (c *Client) Events(ctx context.Context, cal model.ConnectedCalendar, from, to time.Time) ([]model.RemoteEvent, error) {
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(c.httpClient, cal.Username, cal.Secret), cal.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav: creating client: %w", err)
	}
	path, err := c.calendarPath(ctx, client, cal)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Props: []string{ical.PropVersion},
			Comps: []caldav.CalendarCompRequest{{
				Name: ical.CompEvent,
				Props: []string{
					ical.PropUID, ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropDuration,
					ical.PropStatus, ical.PropTransparency, ical.PropRecurrenceRule,
					ical.PropRecurrenceDates, ical.PropExceptionDates, ical.PropRecurrenceID,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from,
				End:   to,
			}},
		},
	}
	objects, err := client.QueryCalendar(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("caldav: querying %s: %w", path, err)
	}

	loc := cal.Location()
	var events []model.RemoteEvent
	for i := range objects {
		parsed, err := parseObject(objects[i].Data, loc, from, to)
		if err != nil {
			c.logger.Warn("skipping caldav object", "calendar_id", cal.ID, "path", objects[i].Path, "err", err)
			continue
		}
		events = append(events, parsed...)
	}
	return events, nil
}

func (c *Client) calendarPath(ctx context.Context, client *caldav.Client, cal model.ConnectedCalendar) (string, error) {
	if cal.ProviderID != "" {
		return cal.ProviderID, nil
	}
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("caldav: finding principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("caldav: finding calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("caldav: finding calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("caldav: no calendars under %s", homeSet)
	}
	return cals[0].Path, nil
}

// parseObject turns the VEVENTs of one calendar object into events overlapping
// [from, to). Overridden occurrences (RECURRENCE-ID) replace the generated ones.
func parseObject(data *ical.Calendar, loc *time.Location, from, to time.Time) ([]model.RemoteEvent, error) {
	if data == nil {
		return nil, fmt.Errorf("empty calendar object")
	}

	var (
		master    *ical.Event
		overrides []ical.Event
	)
	for _, child := range data.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		ev := ical.Event{Component: child}
		if ev.Props.Get(ical.PropRecurrenceID) != nil {
			overrides = append(overrides, ev)
			continue
		}
		if master == nil {
			master = &ev
		}
	}
	if master == nil && len(overrides) == 0 {
		return nil, fmt.Errorf("no VEVENT in object")
	}

	var out []model.RemoteEvent
	overridden := make(map[int64]struct{}, len(overrides))
	for i := range overrides {
		if rid, err := overrides[i].Props.DateTime(ical.PropRecurrenceID, loc); err == nil {
			overridden[rid.Unix()] = struct{}{}
		}
		ev, err := toRemoteEvent(&overrides[i], loc)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if master == nil {
		return out, nil
	}

	base, err := toRemoteEvent(master, loc)
	if err != nil {
		return nil, err
	}
	set, err := master.RecurrenceSet(loc)
	if err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if set == nil {
		return append(out, base), nil
	}

	length := base.End.Sub(base.Start)
	for _, start := range set.Between(from.Add(-length), to, true) {
		if _, ok := overridden[start.Unix()]; ok {
			continue
		}
		occ := base
		occ.Start = start
		occ.End = start.Add(length)
		out = append(out, occ)
	}
	return out, nil
}

func toRemoteEvent(ev *ical.Event, loc *time.Location) (model.RemoteEvent, error) {
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return model.RemoteEvent{}, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return model.RemoteEvent{}, fmt.Errorf("DTEND: %w", err)
	}
	out := model.RemoteEvent{
		Start:    start,
		End:      end,
		Location: loc,
	}
	if p := ev.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		out.AllDay = true
	}
	if p := ev.Props.Get(ical.PropTransparency); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		out.Transparent = true
	}
	if p := ev.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		out.Cancelled = true
	}
	if out.End.IsZero() {
		// No DTEND or DURATION: a date lasts one day, a date-time is instantaneous.
		out.End = out.Start
		if out.AllDay {
			out.End = out.Start.AddDate(0, 0, 1)
		}
	}
	return out, nil
}
