// Package invalidation drops cached calendar events when the calendar integration
// reports that a connected calendar changed upstream.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/apptavail/libs/kafkax"
)

const DefaultTopic = "calendar.events.changed.v1"

var ErrMissingCalendar = errors.New("calendar change event without calendar_id")

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Invalidator interface {
	Invalidate(ctx context.Context, calendarID string) error
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

type Consumer struct {
	reader  MessageReader
	target  Invalidator
	logger  *slog.Logger
	backoff time.Duration
}

func NewKafkaReader(cfg Config) *kafka.Reader {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "availability-service"
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func New(reader MessageReader, target Invalidator, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, target: target, logger: logger, backoff: time.Second}
}

type changeEvent struct {
	CalendarID string `json:"calendar_id"`
	OwnerID    string `json:"owner_id,omitempty"`
}

// Run consumes until ctx is done. Redelivered messages are harmless; dropping a cache
// entry twice costs one extra provider fetch.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg.Headers)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	calendarID, err := calendarOf(msg.Value)
	if err != nil {
		c.logger.Warn("skipping calendar change event", "event_id", meta.EventID, "event_type", meta.EventType, "err", err)
		span.RecordError(err)
		return
	}
	if err := c.target.Invalidate(ctxSpan, calendarID); err != nil {
		c.logger.Error("cache invalidation failed", "event_id", meta.EventID, "calendar_id", calendarID, "err", err)
		span.RecordError(err)
		return
	}
	c.logger.Debug("calendar cache invalidated", "event_id", meta.EventID, "calendar_id", calendarID)
}

func calendarOf(payload []byte) (string, error) {
	var ev changeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", fmt.Errorf("decode calendar change: %w", err)
	}
	id := strings.TrimSpace(ev.CalendarID)
	if id == "" {
		return "", ErrMissingCalendar
	}
	return id, nil
}
