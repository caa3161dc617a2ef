// Package cache keeps recently fetched calendar events in Redis so that repeated
// queries for the same days do not hit the providers again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/remote"
)

const DefaultTTL = 2 * time.Minute

// Store is the subset of the redis client the cache needs. Each calendar owns one hash
// whose fields are day ranges, so a calendar can be invalidated with a single DEL.
type Store interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// BusyCache is a read-through remote.EventSource. Redis errors never fail a fetch; they
// only cost a trip to the underlying source.
type BusyCache struct {
	next   remote.EventSource
	store  Store
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func New(next remote.EventSource, store Store, ttl time.Duration, prefix string, logger *slog.Logger) *BusyCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "avail:events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BusyCache{next: next, store: store, ttl: ttl, prefix: prefix, logger: logger, now: time.Now}
}

type entry struct {
	StoredAt time.Time     `json:"stored_at"`
	Events   []cachedEvent `json:"events"`
}

type cachedEvent struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Transparent bool      `json:"transparent,omitempty"`
	Cancelled   bool      `json:"cancelled,omitempty"`
	TZ          string    `json:"tz,omitempty"`
}

func (c *BusyCache) GetEvents(ctx context.Context, calendarID string, from, to model.Date) ([]model.RemoteEvent, error) {
	key, field := c.key(calendarID), from.String()+"/"+to.String()

	raw, err := c.store.HGet(ctx, key, field).Bytes()
	switch {
	case err == nil:
		events, fresh, decodeErr := c.decode(calendarID, raw)
		if decodeErr != nil {
			c.logger.Warn("discarding unreadable cache entry", "key", key, "field", field, "err", decodeErr)
		} else if fresh {
			return events, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("event cache read failed", "key", key, "err", err)
	}

	events, err := c.next.GetEvents(ctx, calendarID, from, to)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, field, events)
	return events, nil
}

// Invalidate drops every cached range of calendarID.
func (c *BusyCache) Invalidate(ctx context.Context, calendarID string) error {
	return c.store.Del(ctx, c.key(calendarID)).Err()
}

func (c *BusyCache) put(ctx context.Context, key, field string, events []model.RemoteEvent) {
	payload, err := json.Marshal(entry{StoredAt: c.now().UTC(), Events: encode(events)})
	if err != nil {
		return
	}
	if err := c.store.HSet(ctx, key, field, payload).Err(); err != nil {
		c.logger.Warn("event cache write failed", "key", key, "err", err)
		return
	}
	if err := c.store.Expire(ctx, key, c.ttl).Err(); err != nil {
		c.logger.Warn("event cache expire failed", "key", key, "err", err)
	}
}

func (c *BusyCache) key(calendarID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, calendarID)
}

func encode(events []model.RemoteEvent) []cachedEvent {
	out := make([]cachedEvent, 0, len(events))
	for _, e := range events {
		ce := cachedEvent{
			Start:       e.Start,
			End:         e.End,
			AllDay:      e.AllDay,
			Transparent: e.Transparent,
			Cancelled:   e.Cancelled,
		}
		if e.Location != nil {
			ce.TZ = e.Location.String()
		}
		out = append(out, ce)
	}
	return out
}

// decode reports fresh=false for entries older than the ttl; the hash expiry is
// refreshed on every write, so individual fields can outlive it.
func (c *BusyCache) decode(calendarID string, raw []byte) ([]model.RemoteEvent, bool, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, err
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		return nil, false, nil
	}
	out := make([]model.RemoteEvent, 0, len(e.Events))
	for _, ce := range e.Events {
		ev := model.RemoteEvent{
			SourceCalendarID: calendarID,
			Start:            ce.Start,
			End:              ce.End,
			AllDay:           ce.AllDay,
			Transparent:      ce.Transparent,
			Cancelled:        ce.Cancelled,
		}
		if ce.TZ != "" {
			loc, err := time.LoadLocation(ce.TZ)
			if err != nil {
				return nil, false, err
			}
			ev.Location = loc
		}
		out = append(out, ev)
	}
	return out, true, nil
}
