package gpgpu

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpgpu/driver/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identitySource = `
uniform sampler2D sourceTexture;
uniform mediump vec2 output_dimensions;
void main() {
  gl_FragColor = texture2D(
    sourceTexture,
    (gl_FragCoord.xy) / output_dimensions
  );
}`

func identity(f *soft.Fragment) [4]float32 {
	x, y := f.Coord()
	dims := f.Vec2("output_dimensions")
	return f.Texture2D("sourceTexture", x/dims[0], y/dims[1])
}

const constantSource = `uniform mediump vec4 color;
void main() { gl_FragColor = color; }`

func constant(f *soft.Fragment) [4]float32 { return f.Vec4("color") }

const samplerSource = "uniform sampler2D img;\nvoid main() { gl_FragColor = texture2D(img, vec2(0)); }"

func TestIdentityKernel(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})

	src, err := tg.NewTexture(4, 4)
	require.NoError(t, err)
	require.NoError(t, src.Upload(ramp(4, 4)))

	dst, err := tg.NewTexture(4, 4)
	require.NoError(t, err)
	require.NoError(t, dst.Upload(solid(4, 4, [4]byte{255, 0, 0, 0})))

	k := tg.kernel(t, identitySource, identity)
	require.NoError(t, k.Bind("sourceTexture", src))
	require.NoError(t, k.Bind("output_dimensions", Vec2{4, 4}))
	require.NoError(t, k.Output(To(dst)))

	out, err := k.Run()
	require.NoError(t, err)
	assert.Nil(t, out, "a concrete target returns no texture")

	want, err := src.Download()
	require.NoError(t, err)
	got, err := dst.Download()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidKernel(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, "void main() { gl_FragColor = vec4(1); }", func(*soft.Fragment) [4]float32 {
		return [4]float32{1, 1, 1, 1}
	})
	assert.Empty(t, k.Params())
	assert.Equal(t, KernelConstructed, k.State())
}

func TestInvalidKernel(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	_, err := tg.NewKernel("foo")
	assert.ErrorIs(t, err, ErrCompile)
	var se *driver.ShaderError
	assert.ErrorAs(t, err, &se)
}

func TestUnusedUniform(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not referenced", `
uniform mediump float foo;
void main() { gl_FragColor = vec4(1); }`},
		{"referenced but not read", `
uniform mediump float foo;
void main() {
  float unused = foo;
  gl_FragColor = vec4(1);
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := newTestGPU(t, soft.Config{})
			tg.soft.RegisterFragment(tt.src, func(*soft.Fragment) [4]float32 { return [4]float32{1, 1, 1, 1} })

			_, err := tg.NewKernel(tt.src)
			assert.ErrorIs(t, err, ErrUnusedParam)

			k, err := tg.NewKernel(tt.src, AllowUnusedParams())
			require.NoError(t, err)
			_, ok := k.ParamKind("foo")
			assert.False(t, ok, "an unused uniform is dropped from the table")
		})
	}
}

func TestUniformReadInHelper(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 1, Height: 1})
	src := `uniform mediump float level;
float scaled(float x) { return x * level; }
void main() { gl_FragColor = vec4(scaled(1.0)); }`
	k := tg.kernel(t, src, func(f *soft.Fragment) [4]float32 {
		v := f.Float("level")
		return [4]float32{v, v, v, v}
	})
	kind, ok := k.ParamKind("level")
	require.True(t, ok, "a uniform read outside main is live")
	assert.Equal(t, KindFloat, kind)
}

func TestUnsetUniform(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 2, Height: 2})
	k := tg.kernel(t, `
uniform mediump float foo;
void main() { gl_FragColor = vec4(foo); }`, func(f *soft.Fragment) [4]float32 {
		v := f.Float("foo")
		return [4]float32{v, v, v, v}
	})
	require.NoError(t, k.Output(Canvas()))

	tg.trace.Reset()
	_, err := k.Run()
	assert.ErrorIs(t, err, ErrUnsetParam)
	assert.Empty(t, tg.trace.Calls(), "a failed run issues no driver calls")

	require.NoError(t, k.Bind("foo", Float(1)))
	_, err = k.Run()
	assert.NoError(t, err)
}

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"reserved", "uniform vec2 output;\nvoid main() { gl_FragColor = vec4(output, 0.0, 1.0); }", ErrReservedName},
		{"reserved unused", "uniform float output;\nvoid main() { gl_FragColor = vec4(1); }", ErrReservedName},
		{"unsupported", "uniform mat4 m;\nvoid main() { gl_FragColor = m[0]; }", ErrUnsupportedType},
		{"int", "uniform int n;\nvoid main() { gl_FragColor = vec4(n); }", ErrUnsupportedType},
		{"duplicate", "uniform float a;\nuniform float a;\nvoid main() { gl_FragColor = vec4(a); }", ErrDuplicateParam},
		{"duplicate in list", "uniform float a, a;\nvoid main() { gl_FragColor = vec4(a); }", ErrDuplicateParam},
		{"reserved array", "uniform vec2 output[2];\nvoid main() { gl_FragColor = vec4(output[0], 0.0, 1.0); }", ErrReservedName},
		{"array", "uniform float w[4];\nvoid main() { gl_FragColor = vec4(w[0]); }", ErrUnsupportedType},
		{"unterminated", "uniform float w\nvoid main() { gl_FragColor = vec4(w); }", ErrUnsupportedType},
		{"no name", "uniform float;\nvoid main() { gl_FragColor = vec4(1); }", ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := newTestGPU(t, soft.Config{})
			tg.soft.RegisterFragment(tt.src, constant)
			_, err := tg.NewKernel(tt.src)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, tg.trace.Count("NewProgram"), "declarations are checked before compiling")
		})
	}
}

func TestDeclaratorList(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	src := "uniform float a, b;\nvoid main() { gl_FragColor = vec4(a, b, 0.0, 1.0); }"
	k := tg.kernel(t, src, readAll(src))
	params := k.Params()
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0].Name)
	assert.Equal(t, "b", params[1].Name)
	assert.Equal(t, KindFloat, params[1].Kind)
}

func TestTooManySamplers(t *testing.T) {
	tg := newTestGPU(t, soft.Config{MaxTextureUnits: 2})
	src := `uniform sampler2D a;
uniform sampler2D b;
uniform sampler2D c;
void main() { gl_FragColor = texture2D(a, vec2(0)) + texture2D(b, vec2(0)) + texture2D(c, vec2(0)); }`
	tg.soft.RegisterFragment(src, readAll(src))
	_, err := tg.NewKernel(src)
	assert.ErrorIs(t, err, ErrTooManySamplers)
}

func TestParamTable(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	src := `precision mediump float;
uniform sampler2D a;
uniform float scale;
uniform vec3 tint;
uniform sampler2D b;
uniform vec2 glu_a_dimensions;
varying float glu_x;
void main() {
  gl_FragColor = texture2D(a, vec2(glu_x) / glu_a_dimensions) * scale + texture2D(b, vec2(0)) + vec4(tint, 0.0);
}`
	k := tg.kernel(t, src, readAll(src))
	params := k.Params()
	require.Len(t, params, 4)

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"a", "scale", "tint", "b"}, names)
	assert.Equal(t, 0, params[0].Unit)
	assert.Equal(t, -1, params[1].Unit)
	assert.Equal(t, 1, params[3].Unit)
	assert.True(t, params[0].hasDims)
	assert.False(t, params[3].hasDims)

	kind, ok := k.ParamKind("tint")
	assert.True(t, ok)
	assert.Equal(t, KindVec3, kind)
	_, ok = k.ParamKind("glu_a_dimensions")
	assert.False(t, ok)
}

func TestBindErrors(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	src := `uniform sampler2D img;
uniform vec4 color;
void main() { gl_FragColor = texture2D(img, vec2(0)) * color; }`
	k := tg.kernel(t, src, readAll(src))

	t.Run("unknown", func(t *testing.T) {
		assert.ErrorIs(t, k.Bind("nope", Float(1)), ErrUnknownParam)
		assert.ErrorIs(t, k.Bind("glu_output_dimensions", Vec2{1, 1}), ErrUnknownParam)
	})
	t.Run("kind mismatch", func(t *testing.T) {
		err := k.Bind("color", Vec3{1, 1, 1})
		assert.ErrorIs(t, err, ErrTypeMismatch)
		var pe *ParamTypeError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindVec4, pe.Want)
		assert.Equal(t, KindVec3, pe.Got)
		assert.ErrorIs(t, k.Bind("img", Float(0)), ErrTypeMismatch)
	})
	t.Run("nil values", func(t *testing.T) {
		assert.ErrorIs(t, k.Bind("color", nil), ErrTypeMismatch)
		var tex *Texture
		assert.ErrorIs(t, k.Bind("img", tex), ErrTypeMismatch)
	})
	t.Run("released texture", func(t *testing.T) {
		tex, err := tg.NewTexture(1, 1)
		require.NoError(t, err)
		tex.Release()
		assert.ErrorIs(t, k.Bind("img", tex), ErrReleased)
	})
	t.Run("other GPU", func(t *testing.T) {
		other := newTestGPU(t, soft.Config{})
		tex, err := other.NewTexture(1, 1)
		require.NoError(t, err)
		assert.ErrorIs(t, k.Bind("img", tex), ErrWrongContext)
	})
}

func TestBindZeroFillsTexture(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, samplerSource, readAll(samplerSource))
	tex, err := tg.NewTexture(2, 2)
	require.NoError(t, err)
	require.NoError(t, k.Bind("img", tex))
	assert.True(t, tex.IsInitialized())
	assert.Same(t, tex, k.Bound("img"))
}

func TestUnboundSampler(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 1, Height: 1})
	k := tg.kernel(t, samplerSource, readAll(samplerSource))
	require.NoError(t, k.Output(Canvas()))
	_, err := k.Run()
	assert.ErrorIs(t, err, ErrUnboundSampler)

	tex, err := tg.NewTexture(1, 1)
	require.NoError(t, err)
	require.NoError(t, k.Bind("img", tex))
	require.NoError(t, k.Unbind("img"))
	_, err = k.Run()
	assert.ErrorIs(t, err, ErrUnboundSampler)

	require.NoError(t, k.Bind("img", tex))
	tex.Release()
	_, err = k.Run()
	assert.ErrorIs(t, err, ErrReleased)
}

func TestFeedbackLoop(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, identitySource, identity)
	tex, err := tg.NewTexture(2, 2)
	require.NoError(t, err)
	require.NoError(t, k.Bind("sourceTexture", tex))
	require.NoError(t, k.Bind("output_dimensions", Vec2{2, 2}))
	require.NoError(t, k.Output(To(tex)))

	tg.trace.Reset()
	_, err = k.Run()
	assert.ErrorIs(t, err, ErrFeedbackLoop)
	assert.Empty(t, tg.trace.Calls())
}

func TestRunWithoutTarget(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{1, 1, 1, 1}))
	_, err := k.Run()
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.ErrorIs(t, k.Output(Target{}), ErrNoTarget)

	require.NoError(t, k.OutputRect(Rect{Width: 1}), "a rectangle may precede the target")
	assert.Equal(t, KernelConstructed, k.State())
	_, err = k.Run()
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestOutputKeepsRect(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{1, 1, 1, 1}))

	a, err := tg.NewTexture(4, 4)
	require.NoError(t, err)
	b, err := tg.NewTexture(4, 4)
	require.NoError(t, err)

	require.NoError(t, k.Output(To(a)))
	require.NoError(t, k.OutputRect(Rect{Width: 2, Height: 2}))
	require.NoError(t, k.Output(To(b)))
	_, r := k.Target()
	assert.Equal(t, Rect{Width: 2, Height: 2}, r)

	_, err = k.Run()
	require.NoError(t, err)
	got, err := b.Download()
	require.NoError(t, err)
	lit := 0
	for i := 0; i < len(got); i += 4 {
		if got[i] == 255 {
			lit++
		}
	}
	assert.Equal(t, 4, lit)
}

func TestOutputRectBeforeTarget(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{0, 1, 0, 1}))

	require.NoError(t, k.OutputRect(Rect{Width: 3, Height: 1}))
	out, err := k.RunTo(NewTarget())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 3, out.Width())
	assert.Equal(t, 1, out.Height())

	assert.ErrorIs(t, k.OutputRect(Rect{Y: -1}), ErrInvalidDimensions)
}

func TestFreshTarget(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{0, 1, 0, 1}))

	require.NoError(t, k.Output(NewTarget()))
	tg.trace.Reset()
	_, err := k.Run()
	assert.ErrorIs(t, err, ErrTargetDimensions)
	assert.Empty(t, tg.trace.Calls())

	require.NoError(t, k.OutputRect(Rect{Width: 3, Height: 2}))
	out, err := k.Run()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 3, out.Width())
	assert.Equal(t, 2, out.Height())

	got, err := out.Download()
	require.NoError(t, err)
	assert.Equal(t, solid(3, 2, [4]byte{0, 255, 0, 255}), got)

	second, err := k.Run()
	require.NoError(t, err)
	assert.NotSame(t, out, second, "every run allocates a new texture")

	assert.ErrorIs(t, k.OutputTo(NewTarget(), Rect{X: 1, Width: 2, Height: 2}), ErrInvalidDimensions)
}

func TestCanvasTarget(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 3, Height: 2})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{0, 0, 1, 1}))
	_, err := k.RunTo(Canvas())
	require.NoError(t, err)

	got, err := tg.DownloadCanvas()
	require.NoError(t, err)
	assert.Equal(t, solid(3, 2, [4]byte{0, 0, 255, 255}), got)

	img, err := tg.CanvasImage()
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
}

func TestOutputRect(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{1, 1, 1, 1}))

	dst, err := tg.NewTexture(4, 4)
	require.NoError(t, err)
	require.NoError(t, k.OutputTo(To(dst), Rect{X: 1, Y: 1, Width: 2, Height: 2}))
	assert.True(t, dst.IsInitialized(), "selecting a target zero-fills it")
	_, err = k.Run()
	require.NoError(t, err)

	got, err := dst.Download()
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := byte(0)
			if x >= 1 && x <= 2 && y >= 1 && y <= 2 {
				want = 255
			}
			assert.Equal(t, want, got[(y*4+x)*4], "texel %d,%d", x, y)
		}
	}

	assert.ErrorIs(t, k.OutputRect(Rect{Width: -1}), ErrInvalidDimensions)
}

func TestDimensionUniforms(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	src := `uniform sampler2D img;
uniform vec2 glu_img_dimensions;
void main() { gl_FragColor = texture2D(img, vec2(0)) + vec4(glu_img_dimensions, 0.0, 1.0); }`
	k := tg.kernel(t, src, func(f *soft.Fragment) [4]float32 {
		c := f.Texture2D("img", 0, 0)
		in := f.Vec2(SamplerDimensionsName("img"))
		out := f.Vec2("glu_output_dimensions")
		return [4]float32{c[0] + in[0]/255, c[1] + in[1]/255, c[2] + out[0]/255, out[1] / 255}
	})
	img, err := tg.NewTexture(5, 7)
	require.NoError(t, err)
	require.NoError(t, k.Bind("img", img))
	out, err := k.RunTo(NewTarget())
	assert.ErrorIs(t, err, ErrTargetDimensions)
	assert.Nil(t, out)

	require.NoError(t, k.OutputTo(NewTarget(), Rect{Width: 2, Height: 3}))
	out, err = k.Run()
	require.NoError(t, err)
	px, err := out.DownloadRegion(image.Rect(0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 7, 2, 3}, px)
}

func TestSamplerUnitsBoundAtRun(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	src := `uniform sampler2D a;
uniform sampler2D b;
void main() { gl_FragColor = texture2D(a, vec2(0)) + texture2D(b, vec2(0)); }`
	k := tg.kernel(t, src, func(f *soft.Fragment) [4]float32 {
		a := f.Texture2D("a", 0.5, 0.5)
		b := f.Texture2D("b", 0.5, 0.5)
		return [4]float32{a[0], b[0], 0, 1}
	})
	ta, err := tg.NewTexture(1, 1)
	require.NoError(t, err)
	require.NoError(t, ta.Upload([]byte{10, 0, 0, 255}))
	tb, err := tg.NewTexture(1, 1)
	require.NoError(t, err)
	require.NoError(t, tb.Upload([]byte{20, 0, 0, 255}))

	require.NoError(t, k.Bind("a", ta))
	require.NoError(t, k.Bind("b", tb))
	assert.Zero(t, tg.trace.Count("BindTexture"), "textures are bound to units at run")

	require.NoError(t, k.OutputTo(NewTarget(), Rect{Width: 1, Height: 1}))
	out, err := k.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, tg.trace.Count("BindTexture"))
	got, err := out.Download()
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 0, 255}, got)
}

func TestKernelRelease(t *testing.T) {
	tg := newTestGPU(t, soft.Config{})
	k := tg.kernel(t, constantSource, constant)
	assert.Equal(t, 1, tg.Stats().Kernels)
	k.Release()
	k.Release()
	assert.Equal(t, KernelReleased, k.State())
	assert.Zero(t, tg.Stats().Kernels)
	_, err := k.Run()
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, k.Bind("color", Vec4{}), ErrReleased)
	assert.ErrorIs(t, k.Output(Canvas()), ErrReleased)
}

func TestRunStats(t *testing.T) {
	tg := newTestGPU(t, soft.Config{Width: 4, Height: 2})
	k := tg.kernel(t, constantSource, constant)
	require.NoError(t, k.Bind("color", Vec4{}))
	_, err := k.RunTo(Canvas())
	require.NoError(t, err)
	s := tg.Stats()
	assert.EqualValues(t, 1, s.Runs)
	assert.EqualValues(t, 8, s.Pixels)
	assert.Equal(t, 1, tg.trace.Count("DrawArrays"))
}

func TestFloats(t *testing.T) {
	v, err := Floats(1)
	require.NoError(t, err)
	assert.Equal(t, Float(1), v)
	v, err = Floats(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, Vec3{1, 2, 3}, v)
	_, err = Floats()
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = Floats(1, 2, 3, 4, 5)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
