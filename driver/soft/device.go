package soft

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Default limits, chosen to match common GLES 2.0 hardware.
const (
	DefaultMaxTextureSize  = 8192
	DefaultMaxTextureUnits = 16
)

var (
	// ErrReleased is returned when an object or the device is used after
	// Release.
	ErrReleased = errors.New("soft: object released")

	// ErrForeignObject is returned when an object created by another device
	// is passed in.
	ErrForeignObject = errors.New("soft: object belongs to another device")
)

// init registers the soft driver on package import.
func init() {
	driver.Register(driver.NameSoft, func(cfg driver.Config) (driver.Device, error) {
		return New(Config{Width: cfg.Width, Height: cfg.Height}), nil
	})
}

// Config configures a Device.
type Config struct {
	// Width and Height are the surface size.
	Width, Height int

	// MaxTextureSize and MaxTextureUnits override the reported limits.
	// Zero selects the defaults.
	MaxTextureSize  int
	MaxTextureUnits int
}

// Stats counts work done by a Device.
type Stats struct {
	TexturesCreated     int
	FramebuffersCreated int
	ShadersCompiled     int
	ProgramsLinked      int
	DrawCalls           int
	FragmentsShaded     int64
}

// Device is a CPU graphics context. It is not safe for concurrent use.
type Device struct {
	caps    driver.Caps
	surface *texture

	fragments map[string]FragmentFunc

	program     *program
	framebuffer *framebuffer
	units       []*texture
	vertices    *buffer
	attrib      int
	components  int
	viewport    image.Rectangle

	stats    Stats
	log      *slog.Logger
	released bool
}

var _ driver.Device = (*Device)(nil)

// New creates a Device with a zeroed surface of the configured size.
func New(cfg Config) *Device {
	if cfg.MaxTextureSize <= 0 {
		cfg.MaxTextureSize = DefaultMaxTextureSize
	}
	if cfg.MaxTextureUnits <= 0 {
		cfg.MaxTextureUnits = DefaultMaxTextureUnits
	}
	w, h := max(cfg.Width, 0), max(cfg.Height, 0)
	d := &Device{
		caps: driver.Caps{
			MaxTextureSize:   cfg.MaxTextureSize,
			MaxTextureUnits:  cfg.MaxTextureUnits,
			BottomLeftOrigin: true,
		},
		fragments: make(map[string]FragmentFunc),
		units:     make([]*texture, cfg.MaxTextureUnits),
		viewport:  image.Rect(0, 0, w, h),
		log:       slog.New(slog.DiscardHandler),
	}
	d.surface = &texture{dev: d, desc: driver.ComputeTextureDesc("surface")}
	d.surface.define(w, h, nil)
	return d
}

// SetLogger sets the logger used for diagnostics such as ignored calls.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.log = l
}

// RegisterFragment associates a fragment shader source with the Go function
// that executes it. Sources are matched with whitespace runs collapsed, so
// reindenting a shader does not break the association.
func (d *Device) RegisterFragment(src string, fn FragmentFunc) {
	d.fragments[sourceKey(src)] = fn
}

func sourceKey(src string) string {
	return strings.Join(strings.Fields(src), " ")
}

// Stats returns the work counters.
func (d *Device) Stats() Stats { return d.stats }

// Surface returns a copy of the surface pixels, row 0 at the bottom.
func (d *Device) Surface() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, d.surface.width, d.surface.height))
	copy(img.Pix, d.surface.pix)
	return img
}

// Info describes the adapter.
func (d *Device) Info() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{
		Name: "gpgpu soft rasterizer",
		Type: gpucontext.AdapterTypeSoftware,
	}
}

// Caps reports the device limits.
func (d *Device) Caps() driver.Caps { return d.caps }

// SurfaceSize returns the surface size.
func (d *Device) SurfaceSize() (width, height int) {
	return d.surface.width, d.surface.height
}

// NewTexture creates a texture without storage.
func (d *Device) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	if d.released {
		return nil, ErrReleased
	}
	if desc.Format != gputypes.TextureFormatRGBA8Unorm {
		return nil, fmt.Errorf("soft: unsupported texture format %v", desc.Format)
	}
	d.stats.TexturesCreated++
	return &texture{dev: d, desc: desc}, nil
}

// NewFramebuffer creates a framebuffer rendering into t.
func (d *Device) NewFramebuffer(t driver.Texture) (driver.Framebuffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	tex, ok := t.(*texture)
	if !ok || tex.dev != d {
		return nil, ErrForeignObject
	}
	if tex.released {
		return nil, ErrReleased
	}
	d.stats.FramebuffersCreated++
	return &framebuffer{dev: d, tex: tex}, nil
}

// NewVertexBuffer copies data into a new buffer.
func (d *Device) NewVertexBuffer(data []float32) (driver.Buffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	return &buffer{dev: d, data: append([]float32(nil), data...)}, nil
}

// UseProgram makes p current. nil clears the current program.
func (d *Device) UseProgram(p driver.Program) {
	if p == nil {
		d.program = nil
		return
	}
	prog, ok := p.(*program)
	if !ok || prog.dev != d || prog.released {
		d.log.Warn("soft: UseProgram ignored", "reason", "invalid program")
		return
	}
	d.program = prog
}

// BindFramebuffer selects the draw destination. nil selects the surface.
func (d *Device) BindFramebuffer(fb driver.Framebuffer) {
	if fb == nil {
		d.framebuffer = nil
		return
	}
	f, ok := fb.(*framebuffer)
	if !ok || f.dev != d || f.released {
		d.log.Warn("soft: BindFramebuffer ignored", "reason", "invalid framebuffer")
		return
	}
	d.framebuffer = f
}

// BindTexture binds t to unit. nil unbinds the unit.
func (d *Device) BindTexture(unit int, t driver.Texture) {
	if unit < 0 || unit >= len(d.units) {
		d.log.Warn("soft: BindTexture ignored", "unit", unit, "reason", "unit out of range")
		return
	}
	if t == nil {
		d.units[unit] = nil
		return
	}
	tex, ok := t.(*texture)
	if !ok || tex.dev != d || tex.released {
		d.log.Warn("soft: BindTexture ignored", "unit", unit, "reason", "invalid texture")
		return
	}
	d.units[unit] = tex
}

// BindVertexBuffer feeds b to attribute attrib. Only the position attribute
// is consumed by the pass-through vertex stage.
func (d *Device) BindVertexBuffer(b driver.Buffer, attrib, components int) {
	buf, ok := b.(*buffer)
	if !ok || buf.dev != d || buf.released {
		d.log.Warn("soft: BindVertexBuffer ignored", "reason", "invalid buffer")
		return
	}
	if components < 2 || components > 4 {
		d.log.Warn("soft: BindVertexBuffer ignored", "components", components)
		return
	}
	d.vertices, d.attrib, d.components = buf, attrib, components
}

// Uniform1i sets an int or sampler uniform.
func (d *Device) Uniform1i(loc driver.UniformLocation, v int32) {
	if u := d.uniform(loc, "Uniform1i", "sampler2D", "int", "bool"); u != nil {
		u.ival = v
		u.value[0] = float32(v)
	}
}

// Uniform1f sets a float uniform.
func (d *Device) Uniform1f(loc driver.UniformLocation, x float32) {
	if u := d.uniform(loc, "Uniform1f", "float"); u != nil {
		u.value = [4]float32{x}
	}
}

// Uniform2f sets a vec2 uniform.
func (d *Device) Uniform2f(loc driver.UniformLocation, x, y float32) {
	if u := d.uniform(loc, "Uniform2f", "vec2"); u != nil {
		u.value = [4]float32{x, y}
	}
}

// Uniform3f sets a vec3 uniform.
func (d *Device) Uniform3f(loc driver.UniformLocation, x, y, z float32) {
	if u := d.uniform(loc, "Uniform3f", "vec3"); u != nil {
		u.value = [4]float32{x, y, z}
	}
}

// Uniform4f sets a vec4 uniform.
func (d *Device) Uniform4f(loc driver.UniformLocation, x, y, z, w float32) {
	if u := d.uniform(loc, "Uniform4f", "vec4"); u != nil {
		u.value = [4]float32{x, y, z, w}
	}
}

// uniform resolves loc in the current program. Calls that GL would reject
// with GL_INVALID_OPERATION are logged and return nil.
func (d *Device) uniform(loc driver.UniformLocation, call string, types ...string) *uniform {
	if d.program == nil {
		d.log.Warn("soft: uniform update without a program", "call", call)
		return nil
	}
	idx, ok := loc.(int)
	if !ok || idx < 0 || idx >= len(d.program.byLoc) {
		d.log.Warn("soft: invalid uniform location", "call", call, "loc", loc)
		return nil
	}
	u := d.program.byLoc[idx]
	for _, t := range types {
		if u.typ == t {
			return u
		}
	}
	d.log.Warn("soft: uniform type mismatch", "call", call, "uniform", u.name, "type", u.typ)
	return nil
}

// Viewport sets the clip-space mapping rectangle.
func (d *Device) Viewport(x, y, width, height int) {
	if width < 0 || height < 0 {
		d.log.Warn("soft: Viewport ignored", "width", width, "height", height)
		return
	}
	d.viewport = image.Rect(x, y, x+width, y+height)
}

// ReadPixels copies r of fb (nil for the surface) into dst.
func (d *Device) ReadPixels(fb driver.Framebuffer, r image.Rectangle, dst []byte) error {
	if d.released {
		return ErrReleased
	}
	src := d.surface
	if fb != nil {
		f, ok := fb.(*framebuffer)
		if !ok || f.dev != d {
			return ErrForeignObject
		}
		if f.released || f.tex.released {
			return ErrReleased
		}
		src = f.tex
	}
	if !src.allocated {
		return errors.New("soft: framebuffer incomplete: attachment has no storage")
	}
	if !r.In(src.bounds()) {
		return fmt.Errorf("soft: read rectangle %v outside %v", r, src.bounds())
	}
	row := r.Dx() * 4
	if len(dst) < row*r.Dy() {
		return fmt.Errorf("soft: destination holds %d bytes, need %d", len(dst), row*r.Dy())
	}
	for y := 0; y < r.Dy(); y++ {
		off := src.offset(r.Min.X, r.Min.Y+y)
		copy(dst[y*row:(y+1)*row], src.pix[off:off+row])
	}
	return nil
}

// Release destroys the device. Later calls that create objects fail with
// ErrReleased.
func (d *Device) Release() {
	d.released = true
	d.program = nil
	d.framebuffer = nil
	d.vertices = nil
	clear(d.units)
	clear(d.fragments)
}

// framebuffer is a colour attachment wrapper.
type framebuffer struct {
	dev      *Device
	tex      *texture
	released bool
}

func (f *framebuffer) Release() {
	if f.dev.framebuffer == f {
		f.dev.framebuffer = nil
	}
	f.released = true
}

// buffer is a vertex buffer.
type buffer struct {
	dev      *Device
	data     []float32
	released bool
}

func (b *buffer) Release() {
	if b.dev.vertices == b {
		b.dev.vertices = nil
	}
	b.released = true
	b.data = nil
}
