package gpgpu

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

func silentLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

var loggerPtr atomic.Pointer[slog.Logger]

// Open GPUs whose devices receive logger updates.
var (
	openMu sync.Mutex
	open   = make(map[*GPU]struct{})
)

func init() {
	loggerPtr.Store(silentLogger())
}

// SetLogger configures the logger for gpgpu and the drivers of every open
// GPU. By default gpgpu produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by gpgpu:
//   - [slog.LevelDebug]: parameter tables, run geometry, driver calls
//   - [slog.LevelInfo]: device opened or closed
//   - [slog.LevelWarn]: driver fallback, ignored driver calls
//
// Example:
//
//	gpgpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silentLogger()
	}
	loggerPtr.Store(l)

	openMu.Lock()
	defer openMu.Unlock()
	for g := range open {
		propagateLogger(g.dev, l)
	}
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by drivers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(dev any, l *slog.Logger) {
	if ls, ok := dev.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func track(g *GPU) {
	openMu.Lock()
	open[g] = struct{}{}
	openMu.Unlock()
	propagateLogger(g.dev, Logger())
}

func untrack(g *GPU) {
	openMu.Lock()
	delete(open, g)
	openMu.Unlock()
}
