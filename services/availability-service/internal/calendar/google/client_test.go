package google

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

const testCredentials = `{"installed":{"client_id":"client","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func testCalendar(t *testing.T) model.ConnectedCalendar {
	t.Helper()
	tok, err := json.Marshal(map[string]any{
		"access_token": "access-123",
		"token_type":   "Bearer",
		"expiry":       time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("marshal token: %v", err)
	}
	return model.ConnectedCalendar{
		ID:         "cal-1",
		Provider:   model.ProviderGoogle,
		ProviderID: "primary",
		Secret:     string(tok),
		Timezone:   "UTC",
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient([]byte(testCredentials), slog.New(slog.NewTextHandler(io.Discard, nil)), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	c.backoff = time.Millisecond
	return c
}

func TestClient_EventsPagesAndMaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/primary/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-123" {
			t.Errorf("unexpected authorization %q", got)
		}
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("showDeleted") != "false" {
			t.Errorf("expected expanded, non-deleted events, got %s", r.URL.RawQuery)
		}
		if q.Get("timeMin") != "2024-01-01T00:00:00Z" || q.Get("timeMax") != "2024-01-08T00:00:00Z" {
			t.Errorf("unexpected time range %s .. %s", q.Get("timeMin"), q.Get("timeMax"))
		}

		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			_, _ = io.WriteString(w, `{"items":[
				{"id":"e1","status":"confirmed","start":{"dateTime":"2024-01-02T09:00:00Z"},"end":{"dateTime":"2024-01-02T10:00:00Z"}},
				{"id":"e2","status":"confirmed","transparency":"transparent","start":{"dateTime":"2024-01-03T09:00:00Z"},"end":{"dateTime":"2024-01-03T10:00:00Z"}}
			],"nextPageToken":"page-2"}`)
			return
		}
		_, _ = io.WriteString(w, `{"items":[
			{"id":"e3","status":"confirmed","start":{"date":"2024-01-05"},"end":{"date":"2024-01-06"}},
			{"id":"e4","status":"confirmed","start":{"dateTime":"not a time"},"end":{"dateTime":"2024-01-06T10:00:00Z"}}
		]}`)
	}))
	defer srv.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events, err := newTestClient(t, srv).Events(context.Background(), testCalendar(t), from, from.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events (malformed one skipped), got %d", len(events))
	}
	if !events[0].Start.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)) || events[0].AllDay {
		t.Fatalf("unexpected timed event %+v", events[0])
	}
	if !events[1].Transparent {
		t.Fatal("expected transparency to be mapped")
	}
	allDay := events[2]
	if !allDay.AllDay || !allDay.Start.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) || !allDay.End.Equal(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected all-day event %+v", allDay)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"slow down","errors":[{"reason":"rateLimitExceeded"}]}}`)
			return
		}
		_, _ = io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := newTestClient(t, srv).Events(context.Background(), testCalendar(t), from, from.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"invalid credentials"}}`)
	}))
	defer srv.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := newTestClient(t, srv).Events(context.Background(), testCalendar(t), from, from.AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected error for unauthorized calendar")
	}

	bad := testCalendar(t)
	bad.Secret = "not json"
	if _, err := newTestClient(t, srv).Events(context.Background(), bad, from, from.AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected error for undecodable token")
	}
}
