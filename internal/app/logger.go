package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. Production gets JSON at INFO so
// log shippers can parse it; everything else gets text at DEBUG for local
// reading.
func NewLogger(env string) *slog.Logger {
	if env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
