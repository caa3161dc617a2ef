// Package google reads busy time from Google Calendar.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

const (
	maxRetries   = 3
	retryBackoff = 2 * time.Second
)

type Client struct {
	oauthCfg *oauth2.Config
	opts     []option.ClientOption
	logger   *slog.Logger
	backoff  time.Duration
}

// NewClient builds a client from an OAuth client credentials file. Extra options are
// passed to every calendar.Service, e.g. option.WithEndpoint in tests.
func NewClient(credJSON []byte, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	oauthCfg, err := googleoauth.ConfigFromJSON(credJSON, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		oauthCfg: oauthCfg,
		opts:     opts,
		logger:   logger,
		backoff:  retryBackoff,
	}, nil
}

// Events lists expanded event instances overlapping [from, to). Deleted events are
// excluded by the API; cancelled instances and transparent events are kept and flagged.
func (c *Client) Events(ctx context.Context, cal model.ConnectedCalendar, from, to time.Time) ([]model.RemoteEvent, error) {
	svc, err := c.calendarSvc(ctx, cal)
	if err != nil {
		return nil, err
	}
	calendarID := cal.ProviderID
	if calendarID == "" {
		calendarID = "primary"
	}
	call := svc.Events.
		List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339))

	loc := cal.Location()
	var (
		events    []model.RemoteEvent
		pageToken string
		attempt   int
	)
	for {
		page, err := call.PageToken(pageToken).Do()
		if err != nil {
			if shouldRetry(err) && attempt < maxRetries {
				attempt++
				if err := sleep(ctx, c.backoff*time.Duration(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("google: listing events: %w", err)
		}
		attempt = 0

		for _, item := range page.Items {
			ev, err := newEvent(item, loc)
			if err != nil {
				c.logger.Warn("skipping google event", "calendar_id", cal.ID, "event_id", item.Id, "err", err)
				continue
			}
			events = append(events, ev)
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			return events, nil
		}
	}
}

func (c *Client) calendarSvc(ctx context.Context, cal model.ConnectedCalendar) (*calendar.Service, error) {
	var tok *oauth2.Token
	if err := json.Unmarshal([]byte(cal.Secret), &tok); err != nil {
		return nil, fmt.Errorf("google: decoding token: %w", err)
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(c.oauthCfg.Client(ctx, tok))}, c.opts...)
	return calendar.NewService(ctx, opts...)
}

func newEvent(item *calendar.Event, loc *time.Location) (model.RemoteEvent, error) {
	if item.Start == nil || item.End == nil {
		return model.RemoteEvent{}, errors.New("missing start or end")
	}
	ev := model.RemoteEvent{
		Transparent: item.Transparency == "transparent",
		Cancelled:   item.Status == "cancelled",
		Location:    loc,
	}
	if item.Start.Date != "" {
		if tz := item.Start.TimeZone; tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				ev.Location = l
			}
		}
		start, err := time.ParseInLocation(model.DateFormat, item.Start.Date, ev.Location)
		if err != nil {
			return model.RemoteEvent{}, err
		}
		// End.Date is exclusive.
		end, err := time.ParseInLocation(model.DateFormat, item.End.Date, ev.Location)
		if err != nil {
			return model.RemoteEvent{}, err
		}
		ev.AllDay = true
		ev.Start, ev.End = start, end
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return model.RemoteEvent{}, err
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return model.RemoteEvent{}, err
	}
	ev.Start, ev.End = start, end
	return ev, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shouldRetry(err error) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	if gErr.Code == 429 || gErr.Code >= 500 {
		return true
	}
	for _, e := range gErr.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
