// Package kernels is a small library of ready-made compute kernels.
//
// Every kernel is GLSL ES 1.00 fragment source, usable on any driver, paired
// with an equivalent soft.FragmentFunc so that it also runs on the soft
// driver after Install.
//
// Input textures are sampled at the output pixel's normalised position, so
// an input of a different size than the output is stretched over it.
package kernels

import (
	"math"
	"slices"

	"github.com/gogpu/gpgpu/driver/soft"
)

// Rec. 709 luminance weights.
const (
	lumR = 0.2126
	lumG = 0.7152
	lumB = 0.0722
)

// Kernel is a named kernel.
type Kernel struct {
	Name string

	// Doc is a one-line description.
	Doc string

	// Source is the fragment shader.
	Source string

	// Fragment is the CPU implementation of Source.
	Fragment soft.FragmentFunc
}

var registry = map[string]Kernel{}

func register(k Kernel) { registry[k.Name] = k }

// Lookup returns the kernel called name.
func Lookup(name string) (Kernel, bool) {
	k, ok := registry[name]
	return k, ok
}

// Names returns the kernel names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Install registers the CPU implementation of every kernel with dev.
func Install(dev *soft.Device) {
	for _, k := range registry {
		dev.RegisterFragment(k.Source, k.Fragment)
	}
}

const header = `precision mediump float;
`

const varyings = `varying float glu_x_normalized;
varying float glu_y_normalized;
`

func init() {
	register(Kernel{
		Name: "identity",
		Doc:  "copies src",
		Source: header + `uniform sampler2D src;
` + varyings + `void main() {
  gl_FragColor = texture2D(src, vec2(glu_x_normalized, glu_y_normalized));
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			return f.Texture2D("src", u, v)
		},
	})

	register(Kernel{
		Name: "invert",
		Doc:  "inverts the colour channels of src, keeping alpha",
		Source: header + `uniform sampler2D src;
` + varyings + `void main() {
  vec4 c = texture2D(src, vec2(glu_x_normalized, glu_y_normalized));
  gl_FragColor = vec4(1.0 - c.rgb, c.a);
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			c := f.Texture2D("src", u, v)
			return [4]float32{1 - c[0], 1 - c[1], 1 - c[2], c[3]}
		},
	})

	register(Kernel{
		Name: "grayscale",
		Doc:  "replaces the colour of src by its luminance",
		Source: header + `uniform sampler2D src;
` + varyings + `void main() {
  vec4 c = texture2D(src, vec2(glu_x_normalized, glu_y_normalized));
  float l = dot(c.rgb, vec3(0.2126, 0.7152, 0.0722));
  gl_FragColor = vec4(l, l, l, c.a);
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			c := f.Texture2D("src", u, v)
			l := luminance(c)
			return [4]float32{l, l, l, c[3]}
		},
	})

	register(Kernel{
		Name: "threshold",
		Doc:  "white where the luminance of src is at least level, black elsewhere",
		Source: header + `uniform sampler2D src;
uniform float level;
` + varyings + `void main() {
  vec4 c = texture2D(src, vec2(glu_x_normalized, glu_y_normalized));
  float l = step(level, dot(c.rgb, vec3(0.2126, 0.7152, 0.0722)));
  gl_FragColor = vec4(l, l, l, 1.0);
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			c := f.Texture2D("src", u, v)
			var l float32
			if luminance(c) >= f.Float("level") {
				l = 1
			}
			return [4]float32{l, l, l, 1}
		},
	})

	register(Kernel{
		Name: "tint",
		Doc:  "multiplies src by color",
		Source: header + `uniform sampler2D src;
uniform vec4 color;
` + varyings + `void main() {
  gl_FragColor = texture2D(src, vec2(glu_x_normalized, glu_y_normalized)) * color;
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			c := f.Texture2D("src", u, v)
			t := f.Vec4("color")
			return [4]float32{c[0] * t[0], c[1] * t[1], c[2] * t[2], c[3] * t[3]}
		},
	})

	register(Kernel{
		Name: "blend",
		Doc:  "linear interpolation from a to b by amount",
		Source: header + `uniform sampler2D a;
uniform sampler2D b;
uniform float amount;
` + varyings + `void main() {
  vec2 p = vec2(glu_x_normalized, glu_y_normalized);
  gl_FragColor = mix(texture2D(a, p), texture2D(b, p), amount);
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			return mix(f.Texture2D("a", u, v), f.Texture2D("b", u, v), f.Float("amount"))
		},
	})

	register(Kernel{
		Name: "sobel",
		Doc:  "edge magnitude of the luminance of src",
		Source: header + `uniform sampler2D src;
uniform vec2 glu_src_dimensions;
` + varyings + `void main() {
  vec2 p = vec2(glu_x_normalized, glu_y_normalized);
  vec2 d = 1.0 / glu_src_dimensions;
  vec3 w = vec3(0.2126, 0.7152, 0.0722);
  float tl = dot(texture2D(src, p + vec2(-d.x, -d.y)).rgb, w);
  float t  = dot(texture2D(src, p + vec2(0.0, -d.y)).rgb, w);
  float tr = dot(texture2D(src, p + vec2(d.x, -d.y)).rgb, w);
  float l  = dot(texture2D(src, p + vec2(-d.x, 0.0)).rgb, w);
  float r  = dot(texture2D(src, p + vec2(d.x, 0.0)).rgb, w);
  float bl = dot(texture2D(src, p + vec2(-d.x, d.y)).rgb, w);
  float b  = dot(texture2D(src, p + vec2(0.0, d.y)).rgb, w);
  float br = dot(texture2D(src, p + vec2(d.x, d.y)).rgb, w);
  float gx = -tl - 2.0 * l - bl + tr + 2.0 * r + br;
  float gy = -tl - 2.0 * t - tr + bl + 2.0 * b + br;
  float m = clamp(sqrt(gx * gx + gy * gy), 0.0, 1.0);
  gl_FragColor = vec4(m, m, m, 1.0);
}
`,
		Fragment: sobel,
	})

	register(Kernel{
		Name: "checker",
		Doc:  "checkerboard of a and b with squares of size pixels",
		Source: header + `uniform float size;
uniform vec4 a;
uniform vec4 b;
varying float glu_x;
varying float glu_y;
void main() {
  float c = mod(floor(glu_x / size) + floor(glu_y / size), 2.0);
  gl_FragColor = mix(a, b, c);
}
`,
		Fragment: func(f *soft.Fragment) [4]float32 {
			u, v := f.Normalized()
			dims := f.Vec2("glu_output_dimensions")
			size := f.Float("size")
			x, y := u*dims[0], v*dims[1]
			c := math.Mod(math.Floor(float64(x/size))+math.Floor(float64(y/size)), 2)
			return mix(f.Vec4("a"), f.Vec4("b"), float32(c))
		},
	})
}

func sobel(f *soft.Fragment) [4]float32 {
	u, v := f.Normalized()
	dims := f.Vec2("glu_src_dimensions")
	// Sampled before the size check so that src always reads as live.
	centre := f.Texture2D("src", u, v)
	if dims[0] == 0 || dims[1] == 0 {
		return [4]float32{0, 0, 0, centre[3]}
	}
	dx, dy := 1/dims[0], 1/dims[1]
	lum := func(ox, oy float32) float32 {
		return luminance(f.Texture2D("src", u+ox*dx, v+oy*dy))
	}
	tl, t, tr := lum(-1, -1), lum(0, -1), lum(1, -1)
	l, r := lum(-1, 0), lum(1, 0)
	bl, b, br := lum(-1, 1), lum(0, 1), lum(1, 1)
	gx := -tl - 2*l - bl + tr + 2*r + br
	gy := -tl - 2*t - tr + bl + 2*b + br
	m := float32(math.Sqrt(float64(gx*gx + gy*gy)))
	m = min(max(m, 0), 1)
	return [4]float32{m, m, m, 1}
}

func luminance(c [4]float32) float32 {
	return lumR*c[0] + lumG*c[1] + lumB*c[2]
}

func mix(a, b [4]float32, t float32) [4]float32 {
	var out [4]float32
	for i := range out {
		out[i] = a[i]*(1-t) + b[i]*t
	}
	return out
}
