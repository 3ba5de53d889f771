//go:build js && wasm

package webgl

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"syscall/js"
	"unsafe"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// WebGL enums used by the driver.
const (
	glTexture2D         = 0x0DE1
	glTexture0          = 0x84C0
	glTextureMagFilter  = 0x2800
	glTextureMinFilter  = 0x2801
	glTextureWrapS      = 0x2802
	glTextureWrapT      = 0x2803
	glNearest           = 0x2600
	glLinear            = 0x2601
	glRepeat            = 0x2901
	glClampToEdge       = 0x812F
	glMirroredRepeat    = 0x8370
	glRGBA              = 0x1908
	glUnsignedByte      = 0x1401
	glFloat             = 0x1406
	glFramebuffer       = 0x8D40
	glColorAttachment0  = 0x8CE0
	glFramebufferOK     = 0x8CD5
	glArrayBuffer       = 0x8892
	glStaticDraw        = 0x88E4
	glVertexShader      = 0x8B31
	glFragmentShader    = 0x8B30
	glCompileStatus     = 0x8B81
	glLinkStatus        = 0x8B82
	glTriangles         = 0x0004
	glTriangleStrip     = 0x0005
	glMaxTextureSize    = 0x0D33
	glMaxTextureUnits   = 0x8872
	glPackAlignment     = 0x0D05
	glUnpackAlignment   = 0x0CF5
	glRenderer          = 0x1F01
	glNoError           = 0
	glBlend             = 0x0BE2
	glDepthTest         = 0x0B71
	glUnpackFlipY       = 0x9240
	glUnpackPremultiply = 0x9241
)

func init() {
	driver.Register(driver.NameWebGL, func(cfg driver.Config) (driver.Device, error) {
		return Open(cfg)
	})
}

// ErrReleased is returned when an object or the device is used after
// Release.
var ErrReleased = errors.New("webgl: object released")

// Device is a WebGL 1 context on a canvas element.
type Device struct {
	canvas js.Value
	gl     js.Value
	info   gpucontext.AdapterInfo
	caps   driver.Caps

	program *program
	fb      *framebuffer
	units   []*texture

	log      *slog.Logger
	released bool
}

var _ driver.Device = (*Device)(nil)

// Open creates a canvas of cfg's size and a WebGL context on it.
func Open(cfg driver.Config) (*Device, error) {
	cfg = cfg.Defaults()
	doc := js.Global().Get("document")
	if doc.IsUndefined() {
		return nil, fmt.Errorf("%w: no document", driver.ErrNotAvailable)
	}
	canvas := doc.Call("createElement", "canvas")
	canvas.Set("width", cfg.Width)
	canvas.Set("height", cfg.Height)
	canvas.Set("title", cfg.Title)

	attrs := map[string]any{
		"preserveDrawingBuffer": true,
		"premultipliedAlpha":    false,
		"antialias":             false,
		"depth":                 false,
	}
	gl := canvas.Call("getContext", "webgl", attrs)
	if gl.IsNull() || gl.IsUndefined() {
		gl = canvas.Call("getContext", "experimental-webgl", attrs)
	}
	if gl.IsNull() || gl.IsUndefined() {
		return nil, fmt.Errorf("%w: webgl context unavailable", driver.ErrNotAvailable)
	}
	if cfg.Visible {
		doc.Get("body").Call("appendChild", canvas)
	}

	gl.Call("pixelStorei", glPackAlignment, 1)
	gl.Call("pixelStorei", glUnpackAlignment, 1)
	gl.Call("pixelStorei", glUnpackFlipY, false)
	gl.Call("pixelStorei", glUnpackPremultiply, false)
	gl.Call("disable", glBlend)
	gl.Call("disable", glDepthTest)

	units := gl.Call("getParameter", glMaxTextureUnits).Int()
	d := &Device{
		canvas: canvas,
		gl:     gl,
		info: gpucontext.AdapterInfo{
			Name: gl.Call("getParameter", glRenderer).String(),
			Type: gpucontext.AdapterTypeUnknown,
		},
		caps: driver.Caps{
			MaxTextureSize:   gl.Call("getParameter", glMaxTextureSize).Int(),
			MaxTextureUnits:  units,
			BottomLeftOrigin: true,
		},
		units: make([]*texture, units),
		log:   slog.New(slog.DiscardHandler),
	}
	return d, nil
}

// Canvas returns the canvas element the device draws to.
func (d *Device) Canvas() js.Value { return d.canvas }

// SetLogger sets the logger for WebGL errors.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.log = l
}

func (d *Device) Info() gpucontext.AdapterInfo { return d.info }

func (d *Device) Caps() driver.Caps { return d.caps }

func (d *Device) SurfaceSize() (width, height int) {
	return d.gl.Get("drawingBufferWidth").Int(), d.gl.Get("drawingBufferHeight").Int()
}

func (d *Device) checkErr(op string) error {
	if code := d.gl.Call("getError").Int(); code != glNoError {
		d.log.Warn("webgl: GL error", "op", op, "code", fmt.Sprintf("0x%x", code))
		return fmt.Errorf("webgl: %s: getError 0x%x", op, code)
	}
	return nil
}

func (d *Device) NewTexture(desc driver.TextureDesc) (driver.Texture, error) {
	if d.released {
		return nil, ErrReleased
	}
	if desc.Format != gputypes.TextureFormatRGBA8Unorm {
		return nil, fmt.Errorf("webgl: unsupported texture format %v", desc.Format)
	}
	t := &texture{dev: d, obj: d.gl.Call("createTexture")}
	d.withTexture(t, func() {
		d.gl.Call("texParameteri", glTexture2D, glTextureMinFilter, filter(desc.MinFilter))
		d.gl.Call("texParameteri", glTexture2D, glTextureMagFilter, filter(desc.MagFilter))
		d.gl.Call("texParameteri", glTexture2D, glTextureWrapS, address(desc.AddressU))
		d.gl.Call("texParameteri", glTexture2D, glTextureWrapT, address(desc.AddressV))
	})
	return t, d.checkErr("create texture")
}

// withTexture binds t to unit 0 for fn and restores the unit afterwards.
func (d *Device) withTexture(t *texture, fn func()) {
	d.gl.Call("activeTexture", glTexture0)
	d.gl.Call("bindTexture", glTexture2D, t.obj)
	fn()
	prev := js.Null()
	if len(d.units) > 0 && d.units[0] != nil {
		prev = d.units[0].obj
	}
	d.gl.Call("bindTexture", glTexture2D, prev)
}

func filter(m gputypes.FilterMode) int {
	if m == gputypes.FilterModeLinear {
		return glLinear
	}
	return glNearest
}

func address(m gputypes.AddressMode) int {
	switch m {
	case gputypes.AddressModeRepeat:
		return glRepeat
	case gputypes.AddressModeMirrorRepeat:
		return glMirroredRepeat
	}
	return glClampToEdge
}

func (d *Device) NewFramebuffer(t driver.Texture) (driver.Framebuffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	tex, ok := t.(*texture)
	if !ok || tex.dev != d {
		return nil, errors.New("webgl: texture belongs to another device")
	}
	if tex.width == 0 || tex.height == 0 {
		// An empty attachment is never complete. Nothing can be drawn to or
		// read from it, so it gets no framebuffer object.
		return &framebuffer{dev: d, obj: js.Null()}, nil
	}
	fb := &framebuffer{dev: d, obj: d.gl.Call("createFramebuffer")}
	d.gl.Call("bindFramebuffer", glFramebuffer, fb.obj)
	d.gl.Call("framebufferTexture2D", glFramebuffer, glColorAttachment0, glTexture2D, tex.obj, 0)
	st := d.gl.Call("checkFramebufferStatus", glFramebuffer).Int()
	d.restoreFramebuffer()
	if st != glFramebufferOK {
		fb.Release()
		return nil, fmt.Errorf("webgl: incomplete framebuffer, status 0x%x", st)
	}
	return fb, nil
}

func (d *Device) restoreFramebuffer() {
	obj := js.Null()
	if d.fb != nil {
		obj = d.fb.obj
	}
	d.gl.Call("bindFramebuffer", glFramebuffer, obj)
}

func (d *Device) NewShader(stage gputypes.ShaderStage, src string) (driver.Shader, error) {
	if d.released {
		return nil, ErrReleased
	}
	var kind int
	switch stage {
	case gputypes.ShaderStageVertex:
		kind = glVertexShader
	case gputypes.ShaderStageFragment:
		kind = glFragmentShader
	default:
		return nil, &driver.ShaderError{Stage: stage, Log: "unsupported shader stage"}
	}
	obj := d.gl.Call("createShader", kind)
	d.gl.Call("shaderSource", obj, src)
	d.gl.Call("compileShader", obj)
	if !d.gl.Call("getShaderParameter", obj, glCompileStatus).Bool() {
		log := d.gl.Call("getShaderInfoLog", obj).String()
		d.gl.Call("deleteShader", obj)
		return nil, &driver.ShaderError{Stage: stage, Log: log}
	}
	return &shader{dev: d, obj: obj}, nil
}

func (d *Device) NewProgram(vs, fs driver.Shader) (driver.Program, error) {
	if d.released {
		return nil, ErrReleased
	}
	v, ok1 := vs.(*shader)
	f, ok2 := fs.(*shader)
	if !ok1 || !ok2 || v.dev != d || f.dev != d {
		return nil, errors.New("webgl: shader belongs to another device")
	}
	obj := d.gl.Call("createProgram")
	d.gl.Call("attachShader", obj, v.obj)
	d.gl.Call("attachShader", obj, f.obj)
	d.gl.Call("linkProgram", obj)
	if !d.gl.Call("getProgramParameter", obj, glLinkStatus).Bool() {
		log := d.gl.Call("getProgramInfoLog", obj).String()
		d.gl.Call("deleteProgram", obj)
		return nil, &driver.LinkError{Log: log}
	}
	return &program{dev: d, obj: obj}, nil
}

func (d *Device) NewVertexBuffer(data []float32) (driver.Buffer, error) {
	if d.released {
		return nil, ErrReleased
	}
	b := &buffer{dev: d, obj: d.gl.Call("createBuffer")}
	d.gl.Call("bindBuffer", glArrayBuffer, b.obj)
	d.gl.Call("bufferData", glArrayBuffer, float32Array(data), glStaticDraw)
	return b, d.checkErr("create vertex buffer")
}

func (d *Device) UseProgram(p driver.Program) {
	prog, _ := p.(*program)
	d.program = prog
	obj := js.Null()
	if prog != nil && !prog.released {
		obj = prog.obj
	}
	d.gl.Call("useProgram", obj)
}

func (d *Device) BindFramebuffer(fb driver.Framebuffer) {
	f, _ := fb.(*framebuffer)
	d.fb = f
	d.restoreFramebuffer()
}

func (d *Device) BindTexture(unit int, t driver.Texture) {
	if unit < 0 || unit >= len(d.units) {
		d.log.Warn("webgl: texture unit out of range", "unit", unit, "units", len(d.units))
		return
	}
	tex, _ := t.(*texture)
	d.units[unit] = tex
	obj := js.Null()
	if tex != nil {
		obj = tex.obj
	}
	d.gl.Call("activeTexture", glTexture0+unit)
	d.gl.Call("bindTexture", glTexture2D, obj)
}

func (d *Device) BindVertexBuffer(b driver.Buffer, attrib, components int) {
	buf, ok := b.(*buffer)
	if !ok || buf.released {
		d.log.Warn("webgl: invalid vertex buffer")
		return
	}
	d.gl.Call("bindBuffer", glArrayBuffer, buf.obj)
	d.gl.Call("enableVertexAttribArray", attrib)
	d.gl.Call("vertexAttribPointer", attrib, components, glFloat, false, 0, 0)
}

func location(loc driver.UniformLocation) js.Value {
	if v, ok := loc.(js.Value); ok {
		return v
	}
	return js.Null()
}

func (d *Device) Uniform1i(loc driver.UniformLocation, v int32) {
	d.gl.Call("uniform1i", location(loc), v)
}

func (d *Device) Uniform1f(loc driver.UniformLocation, x float32) {
	d.gl.Call("uniform1f", location(loc), x)
}

func (d *Device) Uniform2f(loc driver.UniformLocation, x, y float32) {
	d.gl.Call("uniform2f", location(loc), x, y)
}

func (d *Device) Uniform3f(loc driver.UniformLocation, x, y, z float32) {
	d.gl.Call("uniform3f", location(loc), x, y, z)
}

func (d *Device) Uniform4f(loc driver.UniformLocation, x, y, z, w float32) {
	d.gl.Call("uniform4f", location(loc), x, y, z, w)
}

func (d *Device) Viewport(x, y, width, height int) {
	d.gl.Call("viewport", x, y, width, height)
}

func (d *Device) DrawArrays(mode gputypes.PrimitiveTopology, first, count int) {
	m := glTriangleStrip
	if mode == gputypes.PrimitiveTopologyTriangleList {
		m = glTriangles
	}
	d.gl.Call("drawArrays", m, first, count)
	if code := d.gl.Call("getError").Int(); code != glNoError {
		d.log.Error("webgl: drawArrays failed", "code", fmt.Sprintf("0x%x", code),
			"mode", mode, "first", first, "count", count)
	}
}

func (d *Device) ReadPixels(fb driver.Framebuffer, r image.Rectangle, dst []byte) error {
	if d.released {
		return ErrReleased
	}
	n := r.Dx() * r.Dy() * 4
	if len(dst) < n {
		return fmt.Errorf("webgl: read %v needs %d bytes, have %d", r, n, len(dst))
	}
	if r.Empty() {
		return nil
	}
	obj := js.Null()
	if f, ok := fb.(*framebuffer); ok && f != nil {
		obj = f.obj
	}
	arr := js.Global().Get("Uint8Array").New(n)
	d.gl.Call("bindFramebuffer", glFramebuffer, obj)
	d.gl.Call("readPixels", r.Min.X, r.Min.Y, r.Dx(), r.Dy(), glRGBA, glUnsignedByte, arr)
	d.restoreFramebuffer()
	js.CopyBytesToGo(dst[:n], arr)
	return d.checkErr("read pixels")
}

// Release loses the context and detaches the canvas.
func (d *Device) Release() {
	if d.released {
		return
	}
	d.released = true
	if ext := d.gl.Call("getExtension", "WEBGL_lose_context"); !ext.IsNull() {
		ext.Call("loseContext")
	}
	if parent := d.canvas.Get("parentNode"); !parent.IsNull() && !parent.IsUndefined() {
		parent.Call("removeChild", d.canvas)
	}
}

func uint8Array(data []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(data))
	if len(data) > 0 {
		js.CopyBytesToJS(arr, data)
	}
	return arr
}

func float32Array(data []float32) js.Value {
	arr := js.Global().Get("Float32Array").New(len(data))
	if len(data) == 0 {
		return arr
	}
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
	view := js.Global().Get("Uint8Array").New(arr.Get("buffer"), arr.Get("byteOffset"), arr.Get("byteLength"))
	js.CopyBytesToJS(view, bytes)
	return arr
}

type texture struct {
	dev      *Device
	obj      js.Value
	width    int
	height   int
	released bool
}

func (t *texture) Allocate(width, height int, pixels []byte) error {
	if t.released || t.dev.released {
		return ErrReleased
	}
	if limit := t.dev.caps.MaxTextureSize; width > limit || height > limit {
		return fmt.Errorf("webgl: texture %dx%d exceeds %d", width, height, limit)
	}
	data := js.Null()
	if pixels != nil {
		if len(pixels) < width*height*4 {
			return fmt.Errorf("webgl: texture %dx%d needs %d bytes, have %d", width, height, width*height*4, len(pixels))
		}
		data = uint8Array(pixels[:width*height*4])
	}
	t.dev.withTexture(t, func() {
		t.dev.gl.Call("texImage2D", glTexture2D, 0, glRGBA, width, height, 0, glRGBA, glUnsignedByte, data)
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
		return fmt.Errorf("webgl: upload %v outside %dx%d texture", r, t.width, t.height)
	}
	n := r.Dx() * r.Dy() * 4
	if len(pixels) < n {
		return fmt.Errorf("webgl: upload %v needs %d bytes, have %d", r, n, len(pixels))
	}
	if r.Empty() {
		return nil
	}
	data := uint8Array(pixels[:n])
	t.dev.withTexture(t, func() {
		t.dev.gl.Call("texSubImage2D", glTexture2D, 0, r.Min.X, r.Min.Y, r.Dx(), r.Dy(), glRGBA, glUnsignedByte, data)
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
	t.dev.gl.Call("deleteTexture", t.obj)
}

type framebuffer struct {
	dev      *Device
	obj      js.Value
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
	if !f.obj.IsNull() {
		f.dev.gl.Call("deleteFramebuffer", f.obj)
	}
}

type shader struct {
	dev      *Device
	obj      js.Value
	released bool
}

func (s *shader) Release() {
	if s.released {
		return
	}
	s.released = true
	s.dev.gl.Call("deleteShader", s.obj)
}

type program struct {
	dev      *Device
	obj      js.Value
	released bool
}

// Uniform returns the WebGLUniformLocation of name; inactive uniforms have
// none.
func (p *program) Uniform(name string) (driver.UniformLocation, bool) {
	loc := p.dev.gl.Call("getUniformLocation", p.obj, name)
	if loc.IsNull() || loc.IsUndefined() {
		return nil, false
	}
	return loc, true
}

func (p *program) Attrib(name string) (int, bool) {
	loc := p.dev.gl.Call("getAttribLocation", p.obj, name).Int()
	if loc < 0 {
		return 0, false
	}
	return loc, true
}

func (p *program) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.dev.program == p {
		p.dev.program = nil
	}
	p.dev.gl.Call("deleteProgram", p.obj)
}

type buffer struct {
	dev      *Device
	obj      js.Value
	released bool
}

func (b *buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.dev.gl.Call("deleteBuffer", b.obj)
}
