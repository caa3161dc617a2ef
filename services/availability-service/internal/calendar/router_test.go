package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

type mapDirectory map[string]model.ConnectedCalendar

func (d mapDirectory) ConnectedCalendar(_ context.Context, id string) (model.ConnectedCalendar, error) {
	c, ok := d[id]
	if !ok {
		return model.ConnectedCalendar{}, fmt.Errorf("%w: %s", ErrUnknownCalendar, id)
	}
	return c, nil
}

type fakeProvider struct {
	calls    int
	err      error
	from, to time.Time
	events   []model.RemoteEvent
}

func (f *fakeProvider) Events(_ context.Context, _ model.ConnectedCalendar, from, to time.Time) ([]model.RemoteEvent, error) {
	f.calls++
	f.from, f.to = from, to
	return f.events, f.err
}

func newTestRouter(p Provider) *Router {
	dir := mapDirectory{
		"cal-1": {ID: "cal-1", Provider: model.ProviderGoogle, Timezone: "Europe/Paris"},
		"cal-2": {ID: "cal-2", Provider: model.ProviderCalDAV},
	}
	mux := NewMux()
	mux.Register(model.ProviderGoogle, p)
	return NewRouter(dir, mux, BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRouter_GetEvents(t *testing.T) {
	p := &fakeProvider{events: []model.RemoteEvent{{
		Start: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}}}
	r := newTestRouter(p)

	from := model.Date{Year: 2024, Month: time.January, Day: 1}
	events, err := r.GetEvents(context.Background(), "cal-1", from, from.AddDays(7))
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].SourceCalendarID != "cal-1" {
		t.Fatalf("expected event tagged with its calendar, got %+v", events)
	}
	paris, _ := time.LoadLocation("Europe/Paris")
	if !p.from.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, paris)) || !p.to.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, paris)) {
		t.Fatalf("unexpected provider range [%s, %s)", p.from, p.to)
	}
	if events[0].Location.String() != "Europe/Paris" {
		t.Fatalf("expected calendar location on event, got %s", events[0].Location)
	}
}

func TestRouter_UnknownCalendarAndProvider(t *testing.T) {
	r := newTestRouter(&fakeProvider{})
	day := model.Date{Year: 2024, Month: time.January, Day: 1}

	if _, err := r.GetEvents(context.Background(), "missing", day, day.AddDays(1)); !errors.Is(err, ErrUnknownCalendar) {
		t.Fatalf("expected ErrUnknownCalendar, got %v", err)
	}
	if _, err := r.GetEvents(context.Background(), "cal-2", day, day.AddDays(1)); err == nil {
		t.Fatal("expected error for unregistered caldav provider")
	}
}

func TestRouter_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := &fakeProvider{err: errors.New("503 backend error")}
	r := newTestRouter(p)
	day := model.Date{Year: 2024, Month: time.January, Day: 1}

	for i := 0; i < 2; i++ {
		if _, err := r.GetEvents(context.Background(), "cal-1", day, day.AddDays(1)); err == nil {
			t.Fatalf("call %d: expected provider error", i)
		}
	}
	_, err := r.GetEvents(context.Background(), "cal-1", day, day.AddDays(1))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("expected provider to be skipped while open, got %d calls", p.calls)
	}
}

func TestRouter_CancellationDoesNotTrip(t *testing.T) {
	p := &fakeProvider{err: context.Canceled}
	r := newTestRouter(p)
	day := model.Date{Year: 2024, Month: time.January, Day: 1}

	for i := 0; i < 5; i++ {
		_, _ = r.GetEvents(context.Background(), "cal-1", day, day.AddDays(1))
	}
	if p.calls != 5 {
		t.Fatalf("expected every call to reach the provider, got %d", p.calls)
	}
}
