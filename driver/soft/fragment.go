package soft

import (
	"math"

	"github.com/gogpu/gputypes"
)

// FragmentFunc computes the colour of one fragment, as RGBA components in
// [0, 1]. Values outside that range are clamped when written.
//
// Uniform liveness is taken from the accessors a FragmentFunc calls, so it
// should read every uniform it depends on regardless of branches.
type FragmentFunc func(f *Fragment) [4]float32

// Fragment is the input of a FragmentFunc. It is only valid for the
// duration of the call.
type Fragment struct {
	dev   *Device
	prog  *program
	coord [2]float32
	pos   [2]float32

	// reads is set on the link-time call that finds the uniforms a
	// FragmentFunc depends on. Accessors record into it and return zero.
	reads map[string]bool
}

// Coord returns the window-space position of the pixel centre, the
// equivalent of gl_FragCoord.xy.
func (f *Fragment) Coord() (x, y float32) { return f.coord[0], f.coord[1] }

// Position returns the clip-space position interpolated from the vertices.
func (f *Fragment) Position() (x, y float32) { return f.pos[0], f.pos[1] }

// Normalized returns Position mapped from [-1, 1] to [0, 1].
func (f *Fragment) Normalized() (x, y float32) {
	return (f.pos[0] + 1) * 0.5, (f.pos[1] + 1) * 0.5
}

// Float returns a float uniform. Inactive or unknown uniforms read as zero.
func (f *Fragment) Float(name string) float32 { return f.value(name)[0] }

// Vec2 returns a vec2 uniform.
func (f *Fragment) Vec2(name string) [2]float32 {
	v := f.value(name)
	return [2]float32{v[0], v[1]}
}

// Vec3 returns a vec3 uniform.
func (f *Fragment) Vec3(name string) [3]float32 {
	v := f.value(name)
	return [3]float32{v[0], v[1], v[2]}
}

// Vec4 returns a vec4 uniform.
func (f *Fragment) Vec4(name string) [4]float32 { return f.value(name) }

func (f *Fragment) value(name string) [4]float32 {
	if f.reads != nil {
		f.reads[name] = true
		return [4]float32{}
	}
	if u, ok := f.prog.uniforms[name]; ok {
		return u.value
	}
	return [4]float32{}
}

// Texture2D samples the texture bound to the unit that the named sampler
// uniform selects, at normalised coordinates (u, v). A missing or empty
// texture samples as opaque black.
func (f *Fragment) Texture2D(name string, u, v float32) [4]float32 {
	if f.reads != nil {
		f.reads[name] = true
		return [4]float32{0, 0, 0, 1}
	}
	s, ok := f.prog.uniforms[name]
	if !ok || s.typ != "sampler2D" || int(s.ival) >= len(f.dev.units) || s.ival < 0 {
		return [4]float32{0, 0, 0, 1}
	}
	return sample(f.dev.units[s.ival], u, v)
}

// uniformReads calls fn once with every uniform and texture reading as zero
// and returns the names it asked for. ok is false if fn panicked.
func uniformReads(fn FragmentFunc) (reads map[string]bool, ok bool) {
	reads = make(map[string]bool)
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn(&Fragment{coord: [2]float32{0.5, 0.5}, reads: reads})
	return reads, true
}

func sample(t *texture, u, v float32) [4]float32 {
	if t == nil || !t.allocated || t.width == 0 || t.height == 0 {
		return [4]float32{0, 0, 0, 1}
	}
	x := float64(u) * float64(t.width)
	y := float64(v) * float64(t.height)
	if t.desc.MagFilter != gputypes.FilterModeLinear {
		ix := wrap(int(math.Floor(x)), t.width, t.desc.AddressU)
		iy := wrap(int(math.Floor(y)), t.height, t.desc.AddressV)
		return t.texel(ix, iy)
	}

	x, y = x-0.5, y-0.5
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := float32(x-x0), float32(y-y0)
	ix0 := wrap(int(x0), t.width, t.desc.AddressU)
	ix1 := wrap(int(x0)+1, t.width, t.desc.AddressU)
	iy0 := wrap(int(y0), t.height, t.desc.AddressV)
	iy1 := wrap(int(y0)+1, t.height, t.desc.AddressV)
	c00, c10 := t.texel(ix0, iy0), t.texel(ix1, iy0)
	c01, c11 := t.texel(ix0, iy1), t.texel(ix1, iy1)
	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bot := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bot-top)*fy
	}
	return out
}

func wrap(i, n int, mode gputypes.AddressMode) int {
	switch mode {
	case gputypes.AddressModeRepeat:
		i %= n
		if i < 0 {
			i += n
		}
	case gputypes.AddressModeMirrorRepeat:
		p := 2 * n
		i %= p
		if i < 0 {
			i += p
		}
		if i >= n {
			i = p - 1 - i
		}
	default:
		i = min(max(i, 0), n-1)
	}
	return i
}

func (t *texture) texel(x, y int) [4]float32 {
	off := t.offset(x, y)
	p := t.pix[off : off+4 : off+4]
	return [4]float32{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

// unorm8 converts a colour component to 8 bits the way GL does for a
// normalised fixed-point attachment.
func unorm8(c float32) byte {
	if math.IsNaN(float64(c)) || c <= 0 {
		return 0
	}
	if c >= 1 {
		return 255
	}
	return byte(math.Floor(float64(c)*255 + 0.5))
}
