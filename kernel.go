package gpgpu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpgpu/internal/decl"
	"github.com/gogpu/gputypes"
)

// Names reserved by the runtime.
const (
	// ReservedName may not be declared as a uniform.
	ReservedName = "output"

	// InternalPrefix marks values the runtime supplies. Uniforms with this
	// prefix are left out of the parameter table.
	InternalPrefix = "glu_"

	outputDimensionsName = InternalPrefix + "output_dimensions"
	positionAttrib       = "a_position"
)

// VertexSource is the vertex stage every kernel is linked with. It passes
// the quad through and provides the fragment stage with these varyings:
//
//	glu_x, glu_y                        pixel position in the output rectangle
//	glu_x_normalized, glu_y_normalized  the same, scaled to [0, 1]
//
// A fragment shader uses them by declaring them, e.g.
// "varying float glu_x;".
const VertexSource = `attribute vec4 a_position;
varying float glu_x;
varying float glu_y;
varying float glu_x_normalized;
varying float glu_y_normalized;
uniform vec2 glu_output_dimensions;
void main() {
  glu_x_normalized = (a_position.x + 1.0) * .5;
  glu_y_normalized = (a_position.y + 1.0) * .5;

  glu_x = glu_x_normalized * glu_output_dimensions.x;
  glu_y = glu_y_normalized * glu_output_dimensions.y;

  gl_Position = a_position;
}
`

// SamplerDimensionsName returns the name of the vec2 uniform that receives
// the size of the texture bound to sampler.
func SamplerDimensionsName(sampler string) string {
	return InternalPrefix + sampler + "_dimensions"
}

// KernelState is the lifecycle state of a Kernel.
type KernelState int

const (
	// KernelConstructed is a kernel without an output target.
	KernelConstructed KernelState = iota

	// KernelConfigured is a kernel with an output target.
	KernelConfigured

	// KernelReleased is a released kernel.
	KernelReleased
)

func (s KernelState) String() string {
	switch s {
	case KernelConstructed:
		return "constructed"
	case KernelConfigured:
		return "configured"
	case KernelReleased:
		return "released"
	}
	return fmt.Sprintf("KernelState(%d)", int(s))
}

// Param describes one kernel parameter.
type Param struct {
	Name string
	Kind ParamKind

	// Unit is the texture unit of a sampler, or -1.
	Unit int

	// Line is the source line of the declaration.
	Line int

	loc     driver.UniformLocation
	dims    driver.UniformLocation
	hasDims bool
}

type binding struct {
	set   bool
	value Value
	tex   *Texture
}

// Kernel is a fragment shader run as an elementwise computation: one
// invocation per pixel of the output rectangle.
//
// Parameters are the uniforms the shader declares before its entry point,
// typed float, vec2, vec3, vec4 or sampler2D. Every parameter must be bound
// before Run.
type Kernel struct {
	g     *GPU
	label string

	prog   driver.Program
	vs, fs driver.Shader
	quad   driver.Buffer
	attrib int

	params   []Param
	index    map[string]int
	bindings []binding

	outDims    driver.UniformLocation
	hasOutDims bool

	target Target
	rect   Rect
	state  KernelState
}

// NewKernel compiles src as the fragment stage of a kernel and builds its
// parameter table.
func (g *GPU) NewKernel(src string, opts ...KernelOption) (*Kernel, error) {
	if g.closed {
		return nil, ErrClosed
	}
	var o kernelOptions
	for _, opt := range opts {
		opt(&o)
	}

	decls, err := checkDecls(decl.Scan(src).Uniforms)
	if err != nil {
		return nil, err
	}
	quad, err := g.quadBuffer()
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		g:     g,
		label: o.label,
		quad:  quad,
		index: make(map[string]int),
	}
	if err := k.compile(src); err != nil {
		return nil, err
	}
	if err := k.buildParams(decls, o.allowUnused); err != nil {
		k.releaseProgram()
		return nil, err
	}
	attrib, ok := k.prog.Attrib(positionAttrib)
	if !ok {
		k.releaseProgram()
		return nil, fmt.Errorf("%w: vertex attribute %s not found", ErrCompile, positionAttrib)
	}
	k.attrib = attrib
	k.outDims, k.hasOutDims = k.prog.Uniform(outputDimensionsName)
	k.bindings = make([]binding, len(k.params))
	g.kernels[k] = struct{}{}

	if log := Logger(); log.Enabled(context.Background(), slog.LevelDebug) {
		for _, p := range k.params {
			log.Debug("gpgpu: kernel parameter",
				"kernel", k.label, "name", p.Name, "kind", p.Kind, "unit", p.Unit, "line", p.Line)
		}
	}
	return k, nil
}

// checkDecls applies the name and type rules to the declared uniforms and
// returns the public ones in declaration order.
func checkDecls(uniforms []decl.Decl) ([]decl.Decl, error) {
	out := make([]decl.Decl, 0, len(uniforms))
	seen := make(map[string]bool)
	for _, u := range uniforms {
		switch {
		case u.Name == ReservedName:
			return nil, fmt.Errorf("%w: %q (line %d)", ErrReservedName, u.Name, u.Line)
		case u.Malformed:
			return nil, fmt.Errorf("%w: unrecognised declaration (line %d)", ErrUnsupportedType, u.Line)
		case strings.HasPrefix(u.Name, InternalPrefix):
			continue
		case u.Array:
			return nil, fmt.Errorf("%w: array %s %s[] (line %d)", ErrUnsupportedType, u.Type, u.Name, u.Line)
		}
		if _, ok := kindOf(u.Type); !ok {
			return nil, fmt.Errorf("%w: %s %s (line %d)", ErrUnsupportedType, u.Type, u.Name, u.Line)
		}
		if seen[u.Name] {
			return nil, fmt.Errorf("%w: %q (line %d)", ErrDuplicateParam, u.Name, u.Line)
		}
		seen[u.Name] = true
		out = append(out, u)
	}
	return out, nil
}

func (k *Kernel) compile(src string) error {
	dev := k.g.dev
	vs, err := dev.NewShader(gputypes.ShaderStageVertex, VertexSource)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	fs, err := dev.NewShader(gputypes.ShaderStageFragment, src)
	if err != nil {
		vs.Release()
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	prog, err := dev.NewProgram(vs, fs)
	if err != nil {
		vs.Release()
		fs.Release()
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	k.vs, k.fs, k.prog = vs, fs, prog
	return nil
}

func (k *Kernel) buildParams(decls []decl.Decl, allowUnused bool) error {
	unit := 0
	for _, d := range decls {
		loc, ok := k.prog.Uniform(d.Name)
		if !ok {
			if allowUnused {
				Logger().Debug("gpgpu: dropping unused uniform", "kernel", k.label, "name", d.Name)
				continue
			}
			return fmt.Errorf("%w: %q (line %d)", ErrUnusedParam, d.Name, d.Line)
		}
		kind, _ := kindOf(d.Type)
		p := Param{Name: d.Name, Kind: kind, Unit: -1, Line: d.Line, loc: loc}
		if kind == KindSampler2D {
			if unit >= k.g.caps.MaxTextureUnits {
				return fmt.Errorf("%w: %q needs unit %d, device has %d",
					ErrTooManySamplers, d.Name, unit, k.g.caps.MaxTextureUnits)
			}
			p.Unit = unit
			unit++
			p.dims, p.hasDims = k.prog.Uniform(SamplerDimensionsName(d.Name))
		}
		k.index[d.Name] = len(k.params)
		k.params = append(k.params, p)
	}
	return nil
}

// Params returns the parameter table in declaration order.
func (k *Kernel) Params() []Param {
	return append([]Param(nil), k.params...)
}

// ParamKind returns the kind of the named parameter.
func (k *Kernel) ParamKind(name string) (ParamKind, bool) {
	i, ok := k.index[name]
	if !ok {
		return KindInvalid, false
	}
	return k.params[i].Kind, true
}

// State returns the lifecycle state.
func (k *Kernel) State() KernelState { return k.state }

// Bind sets parameter name to v. Float and vector values are written to the
// program immediately. A texture is recorded and bound to its unit at Run;
// an uninitialized texture is zero-filled first.
func (k *Kernel) Bind(name string, v Value) error {
	if err := k.usable(); err != nil {
		return err
	}
	i, ok := k.index[name]
	if !ok || strings.HasPrefix(name, InternalPrefix) {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	p := &k.params[i]
	got := KindInvalid
	if v != nil {
		got = v.Kind()
	}
	if got != p.Kind {
		return &ParamTypeError{Name: name, Want: p.Kind, Got: got}
	}

	if t, ok := v.(*Texture); ok {
		if t == nil {
			return &ParamTypeError{Name: name, Want: p.Kind, Got: KindInvalid}
		}
		if t.g != k.g {
			return ErrWrongContext
		}
		if t.state == TextureReleased {
			return fmt.Errorf("%w: texture bound to %q", ErrReleased, name)
		}
		if t.state == TextureUninitialized {
			if err := t.Fill(0); err != nil {
				return err
			}
		}
		k.bindings[i] = binding{tex: t}
		return nil
	}

	dev := k.g.dev
	dev.UseProgram(k.prog)
	switch v := v.(type) {
	case Float:
		dev.Uniform1f(p.loc, float32(v))
	case Vec2:
		dev.Uniform2f(p.loc, v[0], v[1])
	case Vec3:
		dev.Uniform3f(p.loc, v[0], v[1], v[2])
	case Vec4:
		dev.Uniform4f(p.loc, v[0], v[1], v[2], v[3])
	}
	k.bindings[i] = binding{set: true, value: v}
	return nil
}

// Unbind clears the binding of parameter name, so that Run fails until it
// is bound again.
func (k *Kernel) Unbind(name string) error {
	if err := k.usable(); err != nil {
		return err
	}
	i, ok := k.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	k.bindings[i] = binding{}
	return nil
}

// Bound returns the value last bound to name, or nil.
func (k *Kernel) Bound(name string) Value {
	i, ok := k.index[name]
	if !ok {
		return nil
	}
	b := k.bindings[i]
	if b.tex != nil {
		return b.tex
	}
	return b.value
}

// Release frees the program. Bound textures are not released. Release is
// idempotent.
func (k *Kernel) Release() {
	if k.state == KernelReleased {
		return
	}
	k.releaseProgram()
	clear(k.bindings)
	k.target = Target{}
	k.state = KernelReleased
	delete(k.g.kernels, k)
}

func (k *Kernel) releaseProgram() {
	if k.prog != nil {
		k.prog.Release()
		k.prog = nil
	}
	if k.fs != nil {
		k.fs.Release()
		k.fs = nil
	}
	if k.vs != nil {
		k.vs.Release()
		k.vs = nil
	}
}

func (k *Kernel) usable() error {
	if k.state == KernelReleased {
		return ErrReleased
	}
	if k.g.closed {
		return ErrClosed
	}
	return nil
}
