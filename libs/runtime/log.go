package runtime

import (
	"log/slog"
	"os"
	"strings"

	"github.com/md-rashed-zaman/apptavail/libs/config"
)

// NewLogger returns the JSON logger shared by every component of a service.
// LOG_LEVEL selects debug, info, warn or error; LOG_SOURCE=true adds file:line.
func NewLogger(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLevel(config.String("LOG_LEVEL", "info")),
		AddSource: config.Bool("LOG_SOURCE", false),
	})
	return slog.New(h).With("service", service)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
