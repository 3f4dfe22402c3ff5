// Package observability provides structured logging setup and OpenTelemetry
// metrics (Prometheus exporter) for the analysis engine.
package observability

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogging configures the default slog logger with a JSON handler at the
// given level ("debug", "info", "warn", "error"; unknown values mean info).
func SetupLogging(level string) {
	var slogLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
