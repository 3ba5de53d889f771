// Package trace wraps a driver.Device to log and count every call.
//
// It is meant for tests and debugging: wrap the device handed to
// gpgpu.New, run, then inspect Count or Calls to see exactly which driver
// operations a gpgpu call issued.
//
//	dev := trace.Wrap(soft.New(soft.Config{}), slog.Default())
//	g, _ := gpgpu.New(dev)
//	...
//	fmt.Println(dev.Count("DrawArrays"))
package trace

import (
	"image"
	"log/slog"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Device is a driver.Device that forwards to another device.
type Device struct {
	inner  driver.Device
	log    *slog.Logger
	calls  []string
	counts map[string]int
}

var _ driver.Device = (*Device)(nil)

// Wrap returns a tracing wrapper around dev. A nil logger discards the
// trace but calls are still counted.
func Wrap(dev driver.Device, log *slog.Logger) *Device {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Device{inner: dev, log: log, counts: make(map[string]int)}
}

// Unwrap returns the wrapped device.
func (d *Device) Unwrap() driver.Device { return d.inner }

// SetLogger replaces the trace logger and forwards l to the wrapped device
// when it accepts one.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.log = l
	if ls, ok := d.inner.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(l)
	}
}

// Count returns how many times method was called since the last Reset.
func (d *Device) Count(method string) int { return d.counts[method] }

// Calls returns the method names called since the last Reset, in order.
func (d *Device) Calls() []string { return append([]string(nil), d.calls...) }

// Reset clears the recorded calls.
func (d *Device) Reset() {
	d.calls = d.calls[:0]
	clear(d.counts)
}

func (d *Device) record(method string, args ...any) {
	d.calls = append(d.calls, method)
	d.counts[method]++
	d.log.Debug("driver call", append([]any{"method", method}, args...)...)
}

func (d *Device) fail(method string, err error) {
	if err != nil {
		d.log.Debug("driver call failed", "method", method, "err", err)
	}
}

func (d *Device) Info() gpucontext.AdapterInfo { return d.inner.Info() }

func (d *Device) Caps() driver.Caps { return d.inner.Caps() }

func (d *Device) SurfaceSize() (int, int) { return d.inner.SurfaceSize() }

func (d *Device) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	d.record("NewTexture", "label", desc.Label)
	t, err := d.inner.NewTexture(desc)
	d.fail("NewTexture", err)
	if err != nil {
		return nil, err
	}
	return &texture{Texture: t, dev: d}, nil
}

func (d *Device) NewFramebuffer(t driver.Texture) (driver.Framebuffer, error) {
	d.record("NewFramebuffer")
	fb, err := d.inner.NewFramebuffer(unwrapTexture(t))
	d.fail("NewFramebuffer", err)
	return fb, err
}

func (d *Device) NewShader(stage gputypes.ShaderStage, src string) (driver.Shader, error) {
	d.record("NewShader", "stage", stage, "bytes", len(src))
	s, err := d.inner.NewShader(stage, src)
	d.fail("NewShader", err)
	return s, err
}

func (d *Device) NewProgram(vs, fs driver.Shader) (driver.Program, error) {
	d.record("NewProgram")
	p, err := d.inner.NewProgram(vs, fs)
	d.fail("NewProgram", err)
	return p, err
}

func (d *Device) NewVertexBuffer(data []float32) (driver.Buffer, error) {
	d.record("NewVertexBuffer", "floats", len(data))
	b, err := d.inner.NewVertexBuffer(data)
	d.fail("NewVertexBuffer", err)
	return b, err
}

func (d *Device) UseProgram(p driver.Program) {
	d.record("UseProgram")
	d.inner.UseProgram(p)
}

func (d *Device) BindFramebuffer(fb driver.Framebuffer) {
	d.record("BindFramebuffer", "surface", fb == nil)
	d.inner.BindFramebuffer(fb)
}

func (d *Device) BindTexture(unit int, t driver.Texture) {
	d.record("BindTexture", "unit", unit)
	d.inner.BindTexture(unit, unwrapTexture(t))
}

func (d *Device) BindVertexBuffer(b driver.Buffer, attrib, components int) {
	d.record("BindVertexBuffer", "attrib", attrib, "components", components)
	d.inner.BindVertexBuffer(b, attrib, components)
}

func (d *Device) Uniform1i(loc driver.UniformLocation, v int32) {
	d.record("Uniform1i", "v", v)
	d.inner.Uniform1i(loc, v)
}

func (d *Device) Uniform1f(loc driver.UniformLocation, x float32) {
	d.record("Uniform1f", "x", x)
	d.inner.Uniform1f(loc, x)
}

func (d *Device) Uniform2f(loc driver.UniformLocation, x, y float32) {
	d.record("Uniform2f", "x", x, "y", y)
	d.inner.Uniform2f(loc, x, y)
}

func (d *Device) Uniform3f(loc driver.UniformLocation, x, y, z float32) {
	d.record("Uniform3f", "x", x, "y", y, "z", z)
	d.inner.Uniform3f(loc, x, y, z)
}

func (d *Device) Uniform4f(loc driver.UniformLocation, x, y, z, w float32) {
	d.record("Uniform4f", "x", x, "y", y, "z", z, "w", w)
	d.inner.Uniform4f(loc, x, y, z, w)
}

func (d *Device) Viewport(x, y, width, height int) {
	d.record("Viewport", "x", x, "y", y, "width", width, "height", height)
	d.inner.Viewport(x, y, width, height)
}

func (d *Device) DrawArrays(mode gputypes.PrimitiveTopology, first, count int) {
	d.record("DrawArrays", "mode", mode, "first", first, "count", count)
	d.inner.DrawArrays(mode, first, count)
}

func (d *Device) ReadPixels(fb driver.Framebuffer, r image.Rectangle, dst []byte) error {
	d.record("ReadPixels", "rect", r)
	err := d.inner.ReadPixels(fb, r, dst)
	d.fail("ReadPixels", err)
	return err
}

func (d *Device) Release() {
	d.record("Release")
	d.inner.Release()
}

// texture counts storage operations on a wrapped texture.
type texture struct {
	driver.Texture
	dev *Device
}

func (t *texture) Allocate(width, height int, pixels []byte) error {
	t.dev.record("Texture.Allocate", "width", width, "height", height, "data", pixels != nil)
	err := t.Texture.Allocate(width, height, pixels)
	t.dev.fail("Texture.Allocate", err)
	return err
}

func (t *texture) Upload(r image.Rectangle, pixels []byte) error {
	t.dev.record("Texture.Upload", "rect", r)
	err := t.Texture.Upload(r, pixels)
	t.dev.fail("Texture.Upload", err)
	return err
}

func (t *texture) Release() {
	t.dev.record("Texture.Release")
	t.Texture.Release()
}

func unwrapTexture(t driver.Texture) driver.Texture {
	if w, ok := t.(*texture); ok {
		return w.Texture
	}
	return t
}
