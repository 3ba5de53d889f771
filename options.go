package gpgpu

import "github.com/gogpu/gpgpu/driver"

// Option configures Open.
//
// Example:
//
//	g, err := gpgpu.Open("", gpgpu.WithCanvasSize(640, 480))
type Option func(*options)

type options struct {
	cfg  driver.Config
	wrap func(driver.Device) driver.Device
}

func defaultOptions() options {
	return options{cfg: driver.Config{}.Defaults()}
}

// WithCanvasSize sets the size of the visible surface.
func WithCanvasSize(width, height int) Option {
	return func(o *options) {
		o.cfg.Width = width
		o.cfg.Height = height
	}
}

// WithTitle sets the window or canvas title, where the driver shows one.
func WithTitle(title string) Option {
	return func(o *options) {
		o.cfg.Title = title
	}
}

// WithVisible asks the driver to show the surface on screen.
func WithVisible() Option {
	return func(o *options) {
		o.cfg.Visible = true
	}
}

// WithWrap passes the opened device through fn before the GPU takes it
// over, e.g. to install trace.Wrap.
func WithWrap(fn func(driver.Device) driver.Device) Option {
	return func(o *options) {
		o.wrap = fn
	}
}

// KernelOption configures NewKernel.
type KernelOption func(*kernelOptions)

type kernelOptions struct {
	allowUnused bool
	label       string
}

// AllowUnusedParams drops uniforms the driver optimised out of the program
// from the parameter table instead of failing with ErrUnusedParam.
func AllowUnusedParams() KernelOption {
	return func(o *kernelOptions) {
		o.allowUnused = true
	}
}

// WithLabel names the kernel in log output.
func WithLabel(label string) KernelOption {
	return func(o *kernelOptions) {
		o.label = label
	}
}
