// Package obs contains observability utilities such as logging.
package obs

import (
	"log/slog"
	"os"
)

// Logger is the global structured logger used by the service.
var Logger *slog.Logger

// InitLogger initializes the global Logger with JSON handler at info level.
func InitLogger() {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	Logger = slog.New(h)
}

func init() {
	// Keep a usable logger for packages that log before main wires one up.
	InitLogger()
}
