package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gpucontext"
)

// Driver names used by the drivers shipped with gpgpu.
const (
	NameGLES  = "gles"
	NameWebGL = "webgl"
	NameSoft  = "soft"
)

// Config holds the parameters for opening a device.
type Config struct {
	// Width and Height are the surface size. Zero selects 300x150, the
	// default size of an HTML canvas.
	Width  int
	Height int

	// Title labels the window or canvas backing the surface, if any.
	Title string

	// Visible shows the surface on screen when the driver supports it.
	Visible bool
}

// Defaults fills zero fields with their default values.
func (c Config) Defaults() Config {
	if c.Width <= 0 {
		c.Width = 300
	}
	if c.Height <= 0 {
		c.Height = 150
	}
	if c.Title == "" {
		c.Title = "gpgpu"
	}
	return c
}

// OpenFunc opens a device.
type OpenFunc func(cfg Config) (Device, error)

// Priority order for OpenDefault (first that opens wins).
var priority = []string{NameGLES, NameWebGL, NameSoft}

var drivers = gpucontext.NewRegistry[OpenFunc](gpucontext.WithPriority(priority...))

// Register registers a driver under name.
// This is typically called from init() functions in driver packages.
// A driver registered under an existing name replaces it.
func Register(name string, open OpenFunc) {
	drivers.Register(name, func() OpenFunc { return open })
}

// Unregister removes a driver from the registry.
// This is useful for testing.
func Unregister(name string) {
	drivers.Unregister(name)
}

// IsRegistered reports whether a driver with the given name is registered.
func IsRegistered(name string) bool {
	return drivers.Has(name)
}

// Available returns the sorted names of the registered drivers.
func Available() []string {
	names := drivers.Available()
	slices.Sort(names)
	return names
}

// Open opens the named driver.
func Open(name string, cfg Config) (Device, error) {
	if !drivers.Has(name) {
		return nil, fmt.Errorf("%w: %q is not registered", ErrNotAvailable, name)
	}
	dev, err := drivers.Get(name)(cfg.Defaults())
	if err != nil {
		if errors.Is(err, ErrNotAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAvailable, name, err)
	}
	return dev, nil
}

// OpenDefault opens the best available driver. Drivers are tried in
// priority order (gles, webgl, soft, then any other registered driver) and
// the first one that opens is returned together with its name.
func OpenDefault(cfg Config, log *slog.Logger) (Device, string, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	names := make([]string, 0, len(priority))
	for _, name := range priority {
		if drivers.Has(name) {
			names = append(names, name)
		}
	}
	for _, name := range Available() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	var errs []error
	for _, name := range names {
		dev, err := Open(name, cfg)
		if err == nil {
			return dev, name, nil
		}
		log.Warn("driver unavailable, trying next", "driver", name, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, "", fmt.Errorf("%w: no drivers registered", ErrNotAvailable)
	}
	return nil, "", errors.Join(errs...)
}
