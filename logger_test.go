package gpgpu

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/gpgpu/driver/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loggingDevice records the logger handed to it.
type loggingDevice struct {
	*soft.Device
	mu     sync.Mutex
	logger *slog.Logger
}

func (d *loggingDevice) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

func (d *loggingDevice) current() *slog.Logger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logger
}

// restoreLogger puts the package logger back after the test.
func restoreLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
}

func openLogging(t *testing.T) (*GPU, *loggingDevice) {
	t.Helper()
	dev := &loggingDevice{Device: soft.New(soft.Config{})}
	g, err := New(dev)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g, dev
}

func isTracked(g *GPU) bool {
	openMu.Lock()
	defer openMu.Unlock()
	_, ok := open[g]
	return ok
}

func TestDefaultLoggerSilent(t *testing.T) {
	restoreLogger(t)
	SetLogger(nil)
	l := Logger()
	require.NotNil(t, l)
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))

	_, dev := openLogging(t)
	assert.Same(t, l, dev.current(), "a new GPU gets the silent logger")
}

func TestNewHandsCurrentLogger(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)

	g, dev := openLogging(t)
	assert.True(t, isTracked(g))
	assert.Same(t, custom, dev.current())
}

func TestSetLoggerReachesEveryOpenGPU(t *testing.T) {
	restoreLogger(t)
	devs := make([]*loggingDevice, 3)
	for i := range devs {
		_, devs[i] = openLogging(t)
	}

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)
	for i, d := range devs {
		assert.Same(t, custom, d.current(), "device %d", i)
	}

	SetLogger(nil)
	for i, d := range devs {
		assert.NotSame(t, custom, d.current(), "device %d", i)
		assert.False(t, d.current().Enabled(context.Background(), slog.LevelError))
	}
}

func TestCloseUntracks(t *testing.T) {
	restoreLogger(t)
	closed, closedDev := openLogging(t)
	kept, keptDev := openLogging(t)

	require.NoError(t, closed.Close())
	assert.False(t, isTracked(closed))
	assert.True(t, isTracked(kept))
	before := closedDev.current()

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)
	assert.Same(t, before, closedDev.current(), "closed GPU keeps its last logger")
	assert.Same(t, custom, keptDev.current())

	require.NoError(t, closed.Close())
	assert.False(t, isTracked(closed), "a second Close leaves the set unchanged")
}

func TestConcurrentOpenCloseAndSetLogger(t *testing.T) {
	restoreLogger(t)
	var wg sync.WaitGroup
	const workers = 20

	for range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g, err := New(&loggingDevice{Device: soft.New(soft.Config{})})
			if !assert.NoError(t, err) {
				return
			}
			Logger().Debug("open")
			assert.NoError(t, g.Close())
		}()
		go func() {
			defer wg.Done()
			SetLogger(slog.Default())
			SetLogger(nil)
		}()
	}
	wg.Wait()

	openMu.Lock()
	defer openMu.Unlock()
	for g := range open {
		assert.False(t, g.closed, "closed GPU still tracked")
	}
}

func BenchmarkLoggerDisabledLog(b *testing.B) {
	l := Logger()
	b.ReportAllocs()
	for b.Loop() {
		l.Debug("message", "key", "value")
	}
}
