package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

var ErrUnknownCalendar = errors.New("unknown calendar")

// Directory resolves a connected calendar by id.
type Directory interface {
	ConnectedCalendar(ctx context.Context, id string) (model.ConnectedCalendar, error)
}

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker. Default 5.
	FailureThreshold uint32
	// OpenTimeout is how long an open breaker rejects calls. Default 30s.
	OpenTimeout time.Duration
	// MaxRequests allowed through a half-open breaker. Default 1.
	MaxRequests uint32
}

// Router implements remote.EventSource on top of the registered providers.
type Router struct {
	dir    Directory
	mux    *Mux
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]model.RemoteEvent]
}

func NewRouter(dir Directory, mux *Mux, cfg BreakerConfig, logger *slog.Logger) *Router {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		dir:      dir,
		mux:      mux,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]model.RemoteEvent]),
	}
}

// GetEvents returns the events of calendarID between the midnights of from and to in
// the calendar's timezone.
func (r *Router) GetEvents(ctx context.Context, calendarID string, from, to model.Date) ([]model.RemoteEvent, error) {
	cal, err := r.dir.ConnectedCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	p, err := r.mux.Get(cal.Provider)
	if err != nil {
		return nil, err
	}
	loc := cal.Location()
	start, end := from.Midnight(loc), to.Midnight(loc)

	events, err := r.breaker(cal.ID).Execute(func() ([]model.RemoteEvent, error) {
		return p.Events(ctx, cal, start, end)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cal, err)
	}
	for i := range events {
		events[i].SourceCalendarID = cal.ID
		if events[i].Location == nil {
			events[i].Location = loc
		}
	}
	return events, nil
}

func (r *Router) breaker(id string) *gobreaker.CircuitBreaker[[]model.RemoteEvent] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[id]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[[]model.RemoteEvent](gobreaker.Settings{
		Name:        id,
		MaxRequests: r.cfg.MaxRequests,
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
		// A superseded query is not the calendar's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("calendar breaker state changed",
				"calendar_id", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	r.breakers[id] = b
	return b
}
