package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

var (
	ErrNoActiveSchedule = errors.New("no active schedule")
	ErrInvalidRange     = errors.New("invalid date range")
)

type ScheduleSource interface {
	ActiveSchedules(ctx context.Context, ownerID string) ([]model.Schedule, error)
}

type CalendarSource interface {
	ConnectedCalendars(ctx context.Context, ownerID string) ([]model.ConnectedCalendar, error)
}

// Service loads an owner's schedule and calendars and runs the Computer on them.
type Service struct {
	schedules ScheduleSource
	calendars CalendarSource
	computer  *Computer
	clock     func() time.Time
	logger    *slog.Logger
}

func NewService(schedules ScheduleSource, calendars CalendarSource, computer *Computer, clock func() time.Time, logger *slog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		schedules: schedules,
		calendars: calendars,
		computer:  computer,
		clock:     clock,
		logger:    logger,
	}
}

// Slots computes the bookable slots of the owner's first active schedule for the days
// [from, to), interpreted in the schedule timezone.
func (s *Service) Slots(ctx context.Context, ownerID string, from, to model.Date) (Result, error) {
	if !from.Before(to) {
		return Result{}, fmt.Errorf("%w: from %s must be before to %s", ErrInvalidRange, from, to)
	}

	schedules, err := s.schedules.ActiveSchedules(ctx, ownerID)
	if err != nil {
		return Result{}, fmt.Errorf("load schedules: %w", err)
	}
	var schedule *model.Schedule
	for i := range schedules {
		if schedules[i].Active {
			schedule = &schedules[i]
			break
		}
	}
	if schedule == nil {
		return Result{}, ErrNoActiveSchedule
	}
	if err := schedule.Validate(); err != nil {
		return Result{}, err
	}
	loc, err := schedule.Location()
	if err != nil {
		return Result{}, err
	}

	calendars, err := s.calendars.ConnectedCalendars(ctx, ownerID)
	if err != nil {
		return Result{}, fmt.Errorf("load calendars: %w", err)
	}
	ids := make([]string, 0, len(calendars))
	for _, c := range calendars {
		ids = append(ids, c.ID)
	}

	req := Request{
		Schedule:    *schedule,
		CalendarIDs: ids,
		Range:       interval.Interval{Start: from.Midnight(loc), End: to.Midnight(loc)},
		Now:         s.clock(),
	}
	res, err := s.computer.Compute(ctx, req)
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("slots computed",
		"owner_id", ownerID,
		"schedule_id", schedule.ID,
		"from", from.String(),
		"to", to.String(),
		"slots", len(res.Slots),
		"warnings", len(res.Warnings),
	)
	return res, nil
}
