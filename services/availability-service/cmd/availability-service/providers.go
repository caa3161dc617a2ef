package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/apptavail/libs/config"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/calendar"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/calendar/caldav"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/calendar/google"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

// newProviderMux registers every calendar provider that is configured. CalDAV needs no
// service credentials; Google needs an OAuth client file.
func newProviderMux(logger *slog.Logger) *calendar.Mux {
	mux := calendar.NewMux()

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	mux.Register(model.ProviderCalDAV, caldav.NewClient(httpClient, logger))

	credPath := config.String("GOOGLE_CREDENTIALS_FILE", "")
	if credPath == "" {
		logger.Warn("google calendar disabled (GOOGLE_CREDENTIALS_FILE not set)")
		return mux
	}
	credJSON, err := os.ReadFile(credPath)
	if err != nil {
		logger.Error("reading google credentials failed", "path", credPath, "err", err)
		return mux
	}
	client, err := google.NewClient(credJSON, logger)
	if err != nil {
		logger.Error("google calendar client init failed", "err", err)
		return mux
	}
	mux.Register(model.ProviderGoogle, client)
	return mux
}
