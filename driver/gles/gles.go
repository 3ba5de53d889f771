//go:build gles && cgo

package gles

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v3.1/gles2"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

func init() {
	driver.Register(driver.NameGLES, func(cfg driver.Config) (driver.Device, error) {
		return Open(cfg)
	})
}

// ErrReleased is returned when an object or the device is used after
// Release.
var ErrReleased = errors.New("gles: object released")

// glfwUsers counts open devices; glfw is terminated with the last one.
var glfwUsers int

// Device is an OpenGL ES 2.0 context.
type Device struct {
	win  *glfw.Window
	info gpucontext.AdapterInfo
	caps driver.Caps

	program *program
	fb      *framebuffer
	units   []*texture

	log      *slog.Logger
	released bool
}

var _ driver.Device = (*Device)(nil)

// Open creates a context on a window of cfg's size. The window stays hidden
// unless cfg.Visible is set.
func Open(cfg driver.Config) (*Device, error) {
	cfg = cfg.Defaults()
	if glfwUsers == 0 {
		if err := glfw.Init(); err != nil {
			return nil, fmt.Errorf("%w: glfw: %w", driver.ErrNotAvailable, err)
		}
	}
	glfwUsers++

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLESAPI)
	glfw.WindowHint(glfw.ContextCreationAPI, glfw.EGLContextAPI)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 0)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	visible := glfw.False
	if cfg.Visible {
		visible = glfw.True
	}
	glfw.WindowHint(glfw.Visible, visible)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		releaseGLFW()
		return nil, fmt.Errorf("%w: create window: %w", driver.ErrNotAvailable, err)
	}
	win.MakeContextCurrent()
	if err := gles2.Init(); err != nil {
		win.Destroy()
		releaseGLFW()
		return nil, fmt.Errorf("%w: load GL functions: %w", driver.ErrNotAvailable, err)
	}

	var maxSize, maxUnits int32
	gles2.GetIntegerv(gles2.MAX_TEXTURE_SIZE, &maxSize)
	gles2.GetIntegerv(gles2.MAX_TEXTURE_IMAGE_UNITS, &maxUnits)
	gles2.PixelStorei(gles2.UNPACK_ALIGNMENT, 1)
	gles2.PixelStorei(gles2.PACK_ALIGNMENT, 1)
	gles2.Disable(gles2.BLEND)
	gles2.Disable(gles2.DEPTH_TEST)

	d := &Device{
		win: win,
		info: gpucontext.AdapterInfo{
			Name: gles2.GoStr(gles2.GetString(gles2.RENDERER)),
			Type: adapterType(gles2.GoStr(gles2.GetString(gles2.RENDERER))),
		},
		caps: driver.Caps{
			MaxTextureSize:   int(maxSize),
			MaxTextureUnits:  int(maxUnits),
			BottomLeftOrigin: true,
		},
		units: make([]*texture, maxUnits),
		log:   slog.New(slog.DiscardHandler),
	}
	return d, nil
}

func releaseGLFW() {
	glfwUsers--
	if glfwUsers == 0 {
		glfw.Terminate()
	}
}

// adapterType guesses the adapter type from the renderer string.
func adapterType(renderer string) gpucontext.AdapterType {
	r := strings.ToLower(renderer)
	switch {
	case strings.Contains(r, "llvmpipe"), strings.Contains(r, "softpipe"),
		strings.Contains(r, "swiftshader"), strings.Contains(r, "software"):
		return gpucontext.AdapterTypeSoftware
	case strings.Contains(r, "intel"), strings.Contains(r, "mali"),
		strings.Contains(r, "adreno"), strings.Contains(r, "apple"):
		return gpucontext.AdapterTypeIntegrated
	case strings.Contains(r, "nvidia"), strings.Contains(r, "radeon"), strings.Contains(r, "geforce"):
		return gpucontext.AdapterTypeDiscrete
	}
	return gpucontext.AdapterTypeUnknown
}

// SetLogger sets the logger for GL errors.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.log = l
}

func (d *Device) Info() gpucontext.AdapterInfo { return d.info }

func (d *Device) Caps() driver.Caps { return d.caps }

// SurfaceSize returns the framebuffer size of the window.
func (d *Device) SurfaceSize() (width, height int) {
	if d.released {
		return 0, 0
	}
	return d.win.GetFramebufferSize()
}

// checkErr logs and returns a pending GL error.
func (d *Device) checkErr(op string) error {
	if st := gles2.GetError(); st != gles2.NO_ERROR {
		d.log.Warn("gles: GL error", "op", op, "code", fmt.Sprintf("0x%x", st))
		return fmt.Errorf("gles: %s: glGetError 0x%x", op, st)
	}
	return nil
}

func (d *Device) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	if d.released {
		return nil, ErrReleased
	}
	if desc.Format != gputypes.TextureFormatRGBA8Unorm {
		return nil, fmt.Errorf("gles: unsupported texture format %v", desc.Format)
	}
	t := &texture{dev: d, desc: desc}
	gles2.GenTextures(1, &t.id)
	d.withTexture(t, func() {
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MIN_FILTER, filter(desc.MinFilter))
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MAG_FILTER, filter(desc.MagFilter))
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_S, address(desc.AddressU))
		gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_T, address(desc.AddressV))
	})
	if err := d.checkErr("create texture"); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// withTexture binds t to unit 0 for fn and restores the unit afterwards.
func (d *Device) withTexture(t *texture, fn func()) {
	gles2.ActiveTexture(gles2.TEXTURE0)
	gles2.BindTexture(gles2.TEXTURE_2D, t.id)
	fn()
	var prev uint32
	if len(d.units) > 0 && d.units[0] != nil {
		prev = d.units[0].id
	}
	gles2.BindTexture(gles2.TEXTURE_2D, prev)
}

func filter(m gputypes.FilterMode) int32 {
	if m == gputypes.FilterModeLinear {
		return gles2.LINEAR
	}
	return gles2.NEAREST
}

func address(m gputypes.AddressMode) int32 {
	switch m {
	case gputypes.AddressModeRepeat:
		return gles2.REPEAT
	case gputypes.AddressModeMirrorRepeat:
		return gles2.MIRRORED_REPEAT
	}
	return gles2.CLAMP_TO_EDGE
}

func (d *Device) NewFramebuffer(t driver.Texture) (driver.Framebuffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	tex, ok := t.(*texture)
	if !ok || tex.dev != d {
		return nil, errors.New("gles: texture belongs to another device")
	}
	if tex.width == 0 || tex.height == 0 {
		// An empty attachment is never complete. Nothing can be drawn to or
		// read from it, so it gets no framebuffer object.
		return &framebuffer{dev: d, tex: tex}, nil
	}
	fb := &framebuffer{dev: d, tex: tex}
	gles2.GenFramebuffers(1, &fb.id)
	gles2.BindFramebuffer(gles2.FRAMEBUFFER, fb.id)
	gles2.FramebufferTexture2D(gles2.FRAMEBUFFER, gles2.COLOR_ATTACHMENT0, gles2.TEXTURE_2D, tex.id, 0)
	st := gles2.CheckFramebufferStatus(gles2.FRAMEBUFFER)
	d.restoreFramebuffer()
	if st != gles2.FRAMEBUFFER_COMPLETE {
		fb.Release()
		return nil, fmt.Errorf("gles: incomplete framebuffer, status 0x%x", st)
	}
	return fb, nil
}

func (d *Device) restoreFramebuffer() {
	var id uint32
	if d.fb != nil {
		id = d.fb.id
	}
	gles2.BindFramebuffer(gles2.FRAMEBUFFER, id)
}

func (d *Device) NewShader(stage gputypes.ShaderStage, src string) (driver.Shader, error) {
	if d.released {
		return nil, ErrReleased
	}
	var kind uint32
	switch stage {
	case gputypes.ShaderStageVertex:
		kind = gles2.VERTEX_SHADER
	case gputypes.ShaderStageFragment:
		kind = gles2.FRAGMENT_SHADER
	default:
		return nil, &driver.ShaderError{Stage: stage, Log: "unsupported shader stage"}
	}
	id := gles2.CreateShader(kind)
	csrc, free := gles2.Strs(src + "\x00")
	gles2.ShaderSource(id, 1, csrc, nil)
	free()
	gles2.CompileShader(id)

	var status int32
	gles2.GetShaderiv(id, gles2.COMPILE_STATUS, &status)
	if status == gles2.FALSE {
		var n int32
		gles2.GetShaderiv(id, gles2.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gles2.GetShaderInfoLog(id, n, nil, gles2.Str(log))
		gles2.DeleteShader(id)
		return nil, &driver.ShaderError{Stage: stage, Log: strings.TrimRight(log, "\x00")}
	}
	return &shader{dev: d, id: id}, nil
}

func (d *Device) NewProgram(vs, fs driver.Shader) (driver.Program, error) {
	if d.released {
		return nil, ErrReleased
	}
	v, ok1 := vs.(*shader)
	f, ok2 := fs.(*shader)
	if !ok1 || !ok2 || v.dev != d || f.dev != d {
		return nil, errors.New("gles: shader belongs to another device")
	}
	id := gles2.CreateProgram()
	gles2.AttachShader(id, v.id)
	gles2.AttachShader(id, f.id)
	gles2.LinkProgram(id)

	var status int32
	gles2.GetProgramiv(id, gles2.LINK_STATUS, &status)
	if status == gles2.FALSE {
		var n int32
		gles2.GetProgramiv(id, gles2.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gles2.GetProgramInfoLog(id, n, nil, gles2.Str(log))
		gles2.DeleteProgram(id)
		return nil, &driver.LinkError{Log: strings.TrimRight(log, "\x00")}
	}
	return &program{dev: d, id: id}, nil
}

func (d *Device) NewVertexBuffer(data []float32) (driver.Buffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	b := &buffer{dev: d}
	gles2.GenBuffers(1, &b.id)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, b.id)
	if len(data) > 0 {
		gles2.BufferData(gles2.ARRAY_BUFFER, len(data)*4, gles2.Ptr(data), gles2.STATIC_DRAW)
	}
	if err := d.checkErr("create vertex buffer"); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func (d *Device) UseProgram(p driver.Program) {
	prog, _ := p.(*program)
	d.program = prog
	var id uint32
	if prog != nil && !prog.released {
		id = prog.id
	}
	gles2.UseProgram(id)
}

func (d *Device) BindFramebuffer(fb driver.Framebuffer) {
	f, _ := fb.(*framebuffer)
	d.fb = f
	d.restoreFramebuffer()
}

func (d *Device) BindTexture(unit int, t driver.Texture) {
	if unit < 0 || unit >= len(d.units) {
		d.log.Warn("gles: texture unit out of range", "unit", unit, "units", len(d.units))
		return
	}
	tex, _ := t.(*texture)
	d.units[unit] = tex
	var id uint32
	if tex != nil {
		id = tex.id
	}
	gles2.ActiveTexture(gles2.TEXTURE0 + uint32(unit))
	gles2.BindTexture(gles2.TEXTURE_2D, id)
}

func (d *Device) BindVertexBuffer(b driver.Buffer, attrib, components int) {
	buf, ok := b.(*buffer)
	if !ok || buf.released {
		d.log.Warn("gles: invalid vertex buffer")
		return
	}
	gles2.BindBuffer(gles2.ARRAY_BUFFER, buf.id)
	gles2.EnableVertexAttribArray(uint32(attrib))
	gles2.VertexAttribPointer(uint32(attrib), int32(components), gles2.FLOAT, false, 0, gles2.PtrOffset(0))
}

func location(loc driver.UniformLocation) int32 {
	if l, ok := loc.(int32); ok {
		return l
	}
	return -1
}

func (d *Device) Uniform1i(loc driver.UniformLocation, v int32) {
	gles2.Uniform1i(location(loc), v)
}

func (d *Device) Uniform1f(loc driver.UniformLocation, x float32) {
	gles2.Uniform1f(location(loc), x)
}

func (d *Device) Uniform2f(loc driver.UniformLocation, x, y float32) {
	gles2.Uniform2f(location(loc), x, y)
}

func (d *Device) Uniform3f(loc driver.UniformLocation, x, y, z float32) {
	gles2.Uniform3f(location(loc), x, y, z)
}

func (d *Device) Uniform4f(loc driver.UniformLocation, x, y, z, w float32) {
	gles2.Uniform4f(location(loc), x, y, z, w)
}

func (d *Device) Viewport(x, y, width, height int) {
	gles2.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (d *Device) DrawArrays(mode gputypes.PrimitiveTopology, first, count int) {
	m := uint32(gles2.TRIANGLE_STRIP)
	if mode == gputypes.PrimitiveTopologyTriangleList {
		m = gles2.TRIANGLES
	}
	gles2.DrawArrays(m, int32(first), int32(count))
	if st := gles2.GetError(); st != gles2.NO_ERROR {
		d.log.Error("gles: DrawArrays failed", "code", fmt.Sprintf("0x%x", st),
			"mode", mode, "first", first, "count", count)
	}
}

func (d *Device) ReadPixels(fb driver.Framebuffer, r image.Rectangle, dst []byte) error {
	if d.released {
		return ErrReleased
	}
	if n := r.Dx() * r.Dy() * 4; len(dst) < n {
		return fmt.Errorf("gles: read %v needs %d bytes, have %d", r, n, len(dst))
	}
	if r.Empty() {
		return nil
	}
	var id uint32
	if f, ok := fb.(*framebuffer); ok && f != nil {
		id = f.id
	}
	gles2.BindFramebuffer(gles2.FRAMEBUFFER, id)
	gles2.ReadPixels(int32(r.Min.X), int32(r.Min.Y), int32(r.Dx()), int32(r.Dy()),
		gles2.RGBA, gles2.UNSIGNED_BYTE, gles2.Ptr(dst))
	d.restoreFramebuffer()
	return d.checkErr("read pixels")
}

// Release destroys the window and its context.
func (d *Device) Release() {
	if d.released {
		return
	}
	d.released = true
	d.win.Destroy()
	releaseGLFW()
}

type texture struct {
	dev      *Device
	desc     driver.TextureDesc
	id       uint32
	width    int
	height   int
	released bool
}

func (t *texture) Allocate(width, height int, pixels []byte) error {
	if t.released || t.dev.released {
		return ErrReleased
	}
	if limit := t.dev.caps.MaxTextureSize; width > limit || height > limit {
		return fmt.Errorf("gles: texture %dx%d exceeds %d", width, height, limit)
	}
	if pixels != nil && len(pixels) < width*height*4 {
		return fmt.Errorf("gles: texture %dx%d needs %d bytes, have %d", width, height, width*height*4, len(pixels))
	}
	t.dev.withTexture(t, func() {
		var ptr unsafe.Pointer
		if len(pixels) > 0 {
			ptr = gles2.Ptr(pixels)
		}
		gles2.TexImage2D(gles2.TEXTURE_2D, 0, gles2.RGBA, int32(width), int32(height), 0,
			gles2.RGBA, gles2.UNSIGNED_BYTE, ptr)
	})
	if err := t.dev.checkErr("allocate texture"); err != nil {
		return err
	}
	t.width, t.height = width, height
	return nil
}

func (t *texture) Upload(r image.Rectangle, pixels []byte) error {
	if t.released || t.dev.released {
		return ErrReleased
	}
	if !r.In(driver.FullRect(t.width, t.height)) {
		return fmt.Errorf("gles: upload %v outside %dx%d texture", r, t.width, t.height)
	}
	if len(pixels) < r.Dx()*r.Dy()*4 {
		return fmt.Errorf("gles: upload %v needs %d bytes, have %d", r, r.Dx()*r.Dy()*4, len(pixels))
	}
	if r.Empty() {
		return nil
	}
	t.dev.withTexture(t, func() {
		gles2.TexSubImage2D(gles2.TEXTURE_2D, 0, int32(r.Min.X), int32(r.Min.Y), int32(r.Dx()), int32(r.Dy()),
			gles2.RGBA, gles2.UNSIGNED_BYTE, gles2.Ptr(pixels))
	})
	return t.dev.checkErr("upload texture")
}

func (t *texture) Release() {
	if t.released {
		return
	}
	t.released = true
	for i, u := range t.dev.units {
		if u == t {
			t.dev.units[i] = nil
		}
	}
	if !t.dev.released {
		gles2.DeleteTextures(1, &t.id)
	}
}

type framebuffer struct {
	dev      *Device
	tex      *texture
	id       uint32
	released bool
}

func (f *framebuffer) Release() {
	if f.released {
		return
	}
	f.released = true
	if f.dev.fb == f {
		f.dev.fb = nil
	}
	if !f.dev.released && f.id != 0 {
		gles2.DeleteFramebuffers(1, &f.id)
	}
}

type shader struct {
	dev      *Device
	id       uint32
	released bool
}

func (s *shader) Release() {
	if s.released {
		return
	}
	s.released = true
	if !s.dev.released {
		gles2.DeleteShader(s.id)
	}
}

type program struct {
	dev      *Device
	id       uint32
	released bool
}

// Uniform looks the name up in the linked program. Uniforms the compiler
// optimised out have location -1 and are reported as missing.
func (p *program) Uniform(name string) (driver.UniformLocation, bool) {
	loc := gles2.GetUniformLocation(p.id, gles2.Str(name+"\x00"))
	if loc < 0 {
		return nil, false
	}
	return loc, true
}

func (p *program) Attrib(name string) (int, bool) {
	loc := gles2.GetAttribLocation(p.id, gles2.Str(name+"\x00"))
	if loc < 0 {
		return 0, false
	}
	return int(loc), true
}

func (p *program) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.dev.program == p {
		p.dev.program = nil
	}
	if !p.dev.released {
		gles2.DeleteProgram(p.id)
	}
}

type buffer struct {
	dev      *Device
	id       uint32
	released bool
}

func (b *buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	if !b.dev.released {
		gles2.DeleteBuffers(1, &b.id)
	}
}
