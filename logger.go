package storm

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetLogger replaces the process-wide logger used by every Storm component.
// Components tag their records with a "component" attribute and, where
// applicable, "type" and "op".
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(l)
}

// Logger returns the process-wide logger, scoped with a "component" field.
func Logger(component string) *slog.Logger {
	return defaultLogger.Load().With(slog.String("component", component))
}
