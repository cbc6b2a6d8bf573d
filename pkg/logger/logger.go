package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide JSON slog.Logger. Every line carries the
// service name so api, migrate and benchctl output can be told apart in
// aggregated logs.
func New(service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}
