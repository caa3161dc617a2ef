// Package availability reconciles a schedule against remote and local busy time and
// returns the slots that can still be booked.
package availability

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/conflicts"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/remote"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/slots"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/window"
)

// BusyFetcher returns the merged busy time of a set of remote calendars.
type BusyFetcher interface {
	Fetch(ctx context.Context, calendarIDs []string, rng interval.Interval) (remote.Result, error)
}

// AppointmentSource lists the appointments of a schedule that overlap rng.
type AppointmentSource interface {
	PendingAppointments(ctx context.Context, scheduleID string, rng interval.Interval) ([]model.Appointment, error)
}

// FetchFailure describes a calendar that could not be checked during a computation.
type FetchFailure struct {
	OwnerID    string
	ScheduleID string
	CalendarID string
	Err        error
	At         time.Time
}

type Alerter interface {
	CalendarFetchFailed(ctx context.Context, f FetchFailure) error
}

type Request struct {
	Schedule    model.Schedule
	CalendarIDs []string
	// Appointments are used as-is when the Computer has no AppointmentSource.
	Appointments []model.Appointment
	Range        interval.Interval
	Now          time.Time
}

type Result struct {
	Slots    []model.Slot
	Warnings map[string]error
}

type Computer struct {
	remote       BusyFetcher
	appointments AppointmentSource
	alerter      Alerter
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(*Computer)

// WithAppointmentSource loads local appointments concurrently with the remote fetch.
func WithAppointmentSource(src AppointmentSource) Option {
	return func(c *Computer) { c.appointments = src }
}

func WithAlerter(a Alerter) Option {
	return func(c *Computer) { c.alerter = a }
}

func NewComputer(fetcher BusyFetcher, logger *slog.Logger, opts ...Option) *Computer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Computer{
		remote: fetcher,
		logger: logger,
		tracer: otel.Tracer("availability/compute"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute returns the bookable slots of req.Schedule inside req.Range.
//
// An inactive schedule or an empty booking window yields an empty result, not an error.
// Only an invalid schedule or a failure of the local appointment lookup fails the call.
// Calendars that could not be read are reported in Result.Warnings.
func (c *Computer) Compute(ctx context.Context, req Request) (Result, error) {
	s := req.Schedule
	if !s.Active {
		return Result{}, nil
	}
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	loc, err := s.Location()
	if err != nil {
		return Result{}, err
	}

	rng := interval.Intersect(window.AllowedRange(s, req.Now), req.Range)
	if rng.IsEmpty() {
		return Result{}, nil
	}
	rng = interval.Interval{Start: rng.Start.In(loc), End: rng.End.In(loc)}

	ctx, span := c.tracer.Start(ctx, "availability.compute", trace.WithAttributes(
		attribute.String("schedule.id", s.ID),
		attribute.Int("calendars", len(req.CalendarIDs)),
	))
	defer span.End()

	var (
		remoteRes remote.Result
		localBusy []interval.Interval
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if c.remote == nil || len(req.CalendarIDs) == 0 {
			return nil
		}
		res, err := c.remote.Fetch(gctx, req.CalendarIDs, rng)
		if err != nil {
			return err
		}
		remoteRes = res
		return nil
	})
	g.Go(func() error {
		appts := req.Appointments
		if c.appointments != nil {
			loaded, err := c.appointments.PendingAppointments(gctx, s.ID, rng)
			if err != nil {
				return err
			}
			appts = loaded
		}
		localBusy = conflicts.FromAppointments(conflicts.InRange(appts, rng))
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		return Result{}, err
	}

	busy := interval.Merge(append(remoteRes.Busy, localBusy...))
	free := freeSlots(slots.Generate(s, rng), busy)

	span.SetAttributes(
		attribute.Int("busy.intervals", len(busy)),
		attribute.Int("slots.free", len(free)),
		attribute.Int("calendars.failed", len(remoteRes.Failures)),
	)
	c.report(ctx, req, remoteRes.Failures)
	return Result{Slots: free, Warnings: remoteRes.Failures}, nil
}

// freeSlots keeps the slots that busy leaves whole. Both inputs are chronological and
// busy is merged, so only the first busy interval ending after a slot's start can
// touch it and busy is walked once.
func freeSlots(candidates iter.Seq[model.Slot], busy []interval.Interval) []model.Slot {
	var out []model.Slot
	i := 0
	for slot := range candidates {
		iv := interval.Interval{Start: slot.Start, End: slot.End}
		for i < len(busy) && !busy[i].End.After(iv.Start) {
			i++
		}
		if !interval.Free(iv, busy[i:min(i+1, len(busy))]) {
			continue
		}
		out = append(out, slot)
	}
	return out
}

func (c *Computer) report(ctx context.Context, req Request, failures map[string]error) {
	for id, err := range failures {
		c.logger.Warn("calendar could not be checked",
			"schedule_id", req.Schedule.ID,
			"calendar_id", id,
			"err", err,
		)
		if c.alerter == nil {
			continue
		}
		f := FetchFailure{
			OwnerID:    req.Schedule.OwnerID,
			ScheduleID: req.Schedule.ID,
			CalendarID: id,
			Err:        err,
			At:         req.Now,
		}
		if err := c.alerter.CalendarFetchFailed(ctx, f); err != nil {
			c.logger.Error("calendar failure alert failed", "calendar_id", id, "err", err)
		}
	}
}
