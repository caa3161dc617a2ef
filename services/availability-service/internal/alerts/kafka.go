// Package alerts publishes calendar fetch failures to Kafka so that owners can be told
// to reconnect a broken calendar.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/apptavail/libs/kafkax"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/availability"
)

const (
	DefaultTopic = "availability.calendar.fetch_failed.v1"
	eventType    = "availability.calendar.fetch_failed.v1"
)

var ErrQueueFull = errors.New("alert queue full")

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	Brokers string
	Topic   string
	// Cooldown suppresses repeated alerts for the same calendar. Default 10m.
	Cooldown time.Duration
	// QueueSize bounds alerts waiting to be written. Default 256.
	QueueSize int
}

// KafkaAlerter implements availability.Alerter. Alerts are queued and written by Run,
// so a slow broker never delays a slot computation.
type KafkaAlerter struct {
	writer   MessageWriter
	logger   *slog.Logger
	topic    string
	cooldown time.Duration
	queue    chan kafka.Message
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewKafkaWriter returns the writer used in production for cfg.
func NewKafkaWriter(cfg Config) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:      kafkax.SplitBrokers(cfg.Brokers),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewKafkaAlerter(writer MessageWriter, cfg Config, logger *slog.Logger) *KafkaAlerter {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaAlerter{
		writer:   writer,
		logger:   logger,
		topic:    cfg.Topic,
		cooldown: cfg.Cooldown,
		queue:    make(chan kafka.Message, cfg.QueueSize),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

type fetchFailedEvent struct {
	EventID    string    `json:"event_id"`
	OwnerID    string    `json:"owner_id"`
	ScheduleID string    `json:"schedule_id"`
	CalendarID string    `json:"calendar_id"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (a *KafkaAlerter) CalendarFetchFailed(ctx context.Context, f availability.FetchFailure) error {
	if !a.shouldSend(f.CalendarID) {
		return nil
	}

	occurred := f.At
	if occurred.IsZero() {
		occurred = a.now()
	}
	evt := fetchFailedEvent{
		EventID:    uuid.NewString(),
		OwnerID:    f.OwnerID,
		ScheduleID: f.ScheduleID,
		CalendarID: f.CalendarID,
		OccurredAt: occurred.UTC(),
	}
	if f.Err != nil {
		evt.Error = f.Err.Error()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic:   a.topic,
		Key:     []byte(f.CalendarID),
		Value:   payload,
		Headers: kafkax.EventHeaders(evt.EventID, eventType),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)

	select {
	case a.queue <- msg:
		return nil
	default:
		a.forget(f.CalendarID)
		return ErrQueueFull
	}
}

// Run writes queued alerts until ctx is done, then flushes what is left with a short
// grace period.
func (a *KafkaAlerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case msg := <-a.queue:
			a.write(ctx, msg)
		}
	}
}

func (a *KafkaAlerter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-a.queue:
			a.write(ctx, msg)
		default:
			return
		}
	}
}

func (a *KafkaAlerter) write(ctx context.Context, msg kafka.Message) {
	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		a.logger.Error("calendar alert publish failed", "calendar_id", string(msg.Key), "err", err)
		a.forget(string(msg.Key))
	}
}

func (a *KafkaAlerter) shouldSend(calendarID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if last, ok := a.lastSent[calendarID]; ok && now.Sub(last) < a.cooldown {
		return false
	}
	a.lastSent[calendarID] = now
	return true
}

func (a *KafkaAlerter) forget(calendarID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.lastSent, calendarID)
}
