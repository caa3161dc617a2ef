// Package remote fetches busy time from connected calendars concurrently, isolating
// per-calendar failures so one broken calendar never hides the others.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

const DefaultFetchTimeout = 10 * time.Second

var ErrCalendarFetch = errors.New("calendar fetch failed")

// EventSource returns the events of one calendar between two dates; to is exclusive.
type EventSource interface {
	GetEvents(ctx context.Context, calendarID string, from, to model.Date) ([]model.RemoteEvent, error)
}

// FetchError records why a single calendar could not be read.
type FetchError struct {
	CalendarID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("calendar %s: %v", e.CalendarID, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrCalendarFetch, e.Err}
}

// Result is the merged busy time of every calendar that answered, plus the failures
// keyed by calendar id.
type Result struct {
	Busy     []interval.Interval
	Failures map[string]error
}

type Options struct {
	// Timeout bounds each calendar fetch. Zero means DefaultFetchTimeout.
	Timeout time.Duration
	// MaxConcurrent caps in-flight fetches. Zero means one goroutine per calendar.
	MaxConcurrent int
}

type Aggregator struct {
	source EventSource
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

func NewAggregator(source EventSource, opts Options, logger *slog.Logger) *Aggregator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source: source,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("availability/remote"),
	}
}

type fetchOutcome struct {
	busy []interval.Interval
	err  error
}

// Fetch queries every distinct calendar id in parallel. Per-calendar errors and timeouts
// end up in Result.Failures; the returned error is non-nil only when ctx itself is done.
func (a *Aggregator) Fetch(ctx context.Context, calendarIDs []string, rng interval.Interval) (Result, error) {
	ids := distinct(calendarIDs)
	if len(ids) == 0 || rng.IsEmpty() {
		return Result{}, ctx.Err()
	}
	from, to := fetchBounds(rng)

	outcomes := make([]fetchOutcome, len(ids))
	var g errgroup.Group
	if a.opts.MaxConcurrent > 0 {
		g.SetLimit(a.opts.MaxConcurrent)
	}
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = a.fetchOne(ctx, id, from, to)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	var busy []interval.Interval
	for i, o := range outcomes {
		if o.err != nil {
			if res.Failures == nil {
				res.Failures = make(map[string]error)
			}
			res.Failures[ids[i]] = o.err
			continue
		}
		busy = append(busy, o.busy...)
	}
	res.Busy = interval.Merge(busy)
	return res, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, id string, from, to model.Date) fetchOutcome {
	ctx, span := a.tracer.Start(ctx, "remote.fetch", trace.WithAttributes(
		attribute.String("calendar.id", id),
		attribute.String("range.from", from.String()),
		attribute.String("range.to", to.String()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	events, err := a.source.GetEvents(ctx, id, from, to)
	if err == nil {
		// Sources that ignore ctx still lose the race against the deadline.
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		a.logger.Warn("calendar fetch failed", "calendar_id", id, "err", err)
		return fetchOutcome{err: &FetchError{CalendarID: id, Err: err}}
	}

	busy := make([]interval.Interval, 0, len(events))
	for _, ev := range events {
		if !ev.Busy() {
			continue
		}
		iv, err := interval.New(ev.Bounds())
		if err != nil {
			a.logger.Warn("dropping malformed remote event", "calendar_id", id, "err", err)
			continue
		}
		busy = append(busy, iv)
	}
	span.SetAttributes(attribute.Int("events.total", len(events)), attribute.Int("events.busy", len(busy)))
	return fetchOutcome{busy: busy}
}

// fetchBounds turns an instant range into the day range sent to sources. Days are taken
// in rng's location (the schedule timezone) but sources resolve them in the calendar's
// own timezone, which can be up to a day away. Widening by one day on both sides keeps
// every instant of rng covered whatever the two offsets are; the extra events fall
// outside the slots and cost nothing.
func fetchBounds(rng interval.Interval) (model.Date, model.Date) {
	return model.DateOf(rng.Start).AddDays(-1), model.DateOf(rng.End).AddDays(1)
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
