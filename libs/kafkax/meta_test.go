package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestEventHeaders(t *testing.T) {
	headers := EventHeaders("evt-1", "availability.calendar.fetch_failed.v1")
	if HeaderValue(headers, "event_id") != "evt-1" {
		t.Fatalf("missing event_id header: %v", headers)
	}
	// Without a configured propagator and span nothing is injected, existing headers survive.
	headers = InjectTraceHeaders(context.Background(), headers)
	if HeaderValue(headers, "event_type") != "availability.calendar.fetch_failed.v1" {
		t.Fatalf("event_type header lost: %v", headers)
	}
}

func TestExtractEventMeta(t *testing.T) {
	msg := kafka.Message{Headers: EventHeaders("evt-2", "calendar.events.changed.v1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "calendar.events.changed.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if (ExtractEventMeta(kafka.Message{}) != EventMeta{}) {
		t.Fatal("expected empty meta without headers")
	}
}
