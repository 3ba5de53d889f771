package soft

import (
	"image"
	"testing"

	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVertex = `attribute vec4 a_position;
varying vec2 v_pos;
void main() {
  v_pos = a_position.xy;
  gl_Position = a_position;
}`

const testFragment = `precision mediump float;
uniform vec4 color;
uniform float unused;
void main() {
  gl_FragColor = color;
}`

var quad = []float32{-1, -1, -1, 1, 1, -1, 1, 1}

func newProgram(t *testing.T, d *Device, fs string, fn FragmentFunc) driver.Program {
	t.Helper()
	d.RegisterFragment(fs, fn)
	vs, err := d.NewShader(gputypes.ShaderStageVertex, testVertex)
	require.NoError(t, err)
	f, err := d.NewShader(gputypes.ShaderStageFragment, fs)
	require.NoError(t, err)
	p, err := d.NewProgram(vs, f)
	require.NoError(t, err)
	return p
}

func draw(t *testing.T, d *Device, p driver.Program) {
	t.Helper()
	buf, err := d.NewVertexBuffer(quad)
	require.NoError(t, err)
	attrib, ok := p.Attrib("a_position")
	require.True(t, ok)
	d.UseProgram(p)
	d.BindVertexBuffer(buf, attrib, 2)
	d.DrawArrays(gputypes.PrimitiveTopologyTriangleStrip, 0, 4)
}

func newTarget(t *testing.T, d *Device, w, h int) (driver.Texture, driver.Framebuffer) {
	t.Helper()
	tex, err := d.NewTexture(driver.ComputeTextureDesc("target"))
	require.NoError(t, err)
	require.NoError(t, tex.Allocate(w, h, nil))
	fb, err := d.NewFramebuffer(tex)
	require.NoError(t, err)
	return tex, fb
}

func TestCompileErrors(t *testing.T) {
	d := New(Config{Width: 4, Height: 4})
	tests := []struct {
		name string
		src  string
	}{
		{"no entry point", "uniform float a;"},
		{"unclosed brace", "void main() {\n  gl_FragColor = vec4(1.0);\n"},
		{"stray paren", "void main() ) {}"},
		{"void without main", "void other() {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.NewShader(gputypes.ShaderStageVertex, tt.src)
			var se *driver.ShaderError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, gputypes.ShaderStageVertex, se.Stage)
			assert.Contains(t, se.Log, "ERROR: 0:")
		})
	}
}

func TestUnregisteredFragment(t *testing.T) {
	d := New(Config{})
	_, err := d.NewShader(gputypes.ShaderStageFragment, "void main() { gl_FragColor = vec4(1.0); }")
	var se *driver.ShaderError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gputypes.ShaderStageFragment, se.Stage)
}

func TestFragmentKeyIgnoresWhitespace(t *testing.T) {
	d := New(Config{})
	d.RegisterFragment("void main() {\n\tgl_FragColor = vec4(1.0);\n}", func(*Fragment) [4]float32 {
		return [4]float32{}
	})
	_, err := d.NewShader(gputypes.ShaderStageFragment, "  void   main() { gl_FragColor = vec4(1.0); }")
	assert.NoError(t, err)
}

func TestActiveUniforms(t *testing.T) {
	d := New(Config{})
	p := newProgram(t, d, testFragment, func(f *Fragment) [4]float32 { return f.Vec4("color") })

	_, ok := p.Uniform("color")
	assert.True(t, ok, "color is read and must be active")
	_, ok = p.Uniform("unused")
	assert.False(t, ok, "unused is never referenced and must have no location")
	_, ok = p.Uniform("missing")
	assert.False(t, ok)
}

func TestReferencedButUnreadUniform(t *testing.T) {
	d := New(Config{})
	fs := `uniform mediump float foo;
uniform mediump vec4 color;
void main() {
  float unused = foo;
  gl_FragColor = color;
}`
	p := newProgram(t, d, fs, func(f *Fragment) [4]float32 { return f.Vec4("color") })

	_, ok := p.Uniform("foo")
	assert.False(t, ok, "foo does not affect the output")
	_, ok = p.Uniform("color")
	assert.True(t, ok)
}

func TestPanickingFragmentFallsBackToSource(t *testing.T) {
	d := New(Config{})
	fs := "uniform float level;\nvoid main() { gl_FragColor = vec4(level); }"
	p := newProgram(t, d, fs, func(f *Fragment) [4]float32 {
		if f.dev == nil {
			panic("needs a device")
		}
		return [4]float32{}
	})
	_, ok := p.Uniform("level")
	assert.True(t, ok, "source references decide when the function cannot be called")
}

func TestLinkTypeMismatch(t *testing.T) {
	d := New(Config{})
	fs := "uniform vec2 size;\nvoid main() { gl_FragColor = vec4(size, 0.0, 1.0); }"
	d.RegisterFragment(fs, func(*Fragment) [4]float32 { return [4]float32{} })
	vs, err := d.NewShader(gputypes.ShaderStageVertex,
		"attribute vec4 a_position;\nuniform float size;\nvoid main() { gl_Position = a_position * size; }")
	require.NoError(t, err)
	f, err := d.NewShader(gputypes.ShaderStageFragment, fs)
	require.NoError(t, err)

	_, err = d.NewProgram(vs, f)
	var le *driver.LinkError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Log, "size")
}

func TestDrawConstantColor(t *testing.T) {
	d := New(Config{})
	p := newProgram(t, d, testFragment, func(f *Fragment) [4]float32 {
		return f.Vec4("color")
	})
	_, fb := newTarget(t, d, 3, 2)

	d.UseProgram(p)
	loc, _ := p.Uniform("color")
	d.Uniform4f(loc, 1, 0.5, 0, 1)
	d.BindFramebuffer(fb)
	d.Viewport(0, 0, 3, 2)
	draw(t, d, p)

	got := make([]byte, 3*2*4)
	require.NoError(t, d.ReadPixels(fb, driver.FullRect(3, 2), got))
	for i := 0; i < len(got); i += 4 {
		assert.Equal(t, []byte{255, 128, 0, 255}, got[i:i+4], "pixel %d", i/4)
	}
	assert.Equal(t, 1, d.Stats().DrawCalls)
	assert.EqualValues(t, 6, d.Stats().FragmentsShaded, "shared edge must not shade twice")
}

func TestDrawPositions(t *testing.T) {
	d := New(Config{})
	p := newProgram(t, d, testFragment, func(f *Fragment) [4]float32 {
		x, y := f.Normalized()
		return [4]float32{x, y, 0, 1}
	})
	_, fb := newTarget(t, d, 2, 2)
	d.BindFramebuffer(fb)
	d.Viewport(0, 0, 2, 2)
	draw(t, d, p)

	got := make([]byte, 16)
	require.NoError(t, d.ReadPixels(fb, driver.FullRect(2, 2), got))
	// Pixel centres sit at 0.25 and 0.75 of the viewport.
	assert.Equal(t, []byte{64, 64, 0, 255}, got[0:4])
	assert.Equal(t, []byte{191, 64, 0, 255}, got[4:8])
	assert.Equal(t, []byte{64, 191, 0, 255}, got[8:12])
	assert.Equal(t, []byte{191, 191, 0, 255}, got[12:16])
}

func TestDrawViewportSubset(t *testing.T) {
	d := New(Config{})
	p := newProgram(t, d, testFragment, func(*Fragment) [4]float32 {
		return [4]float32{1, 1, 1, 1}
	})
	_, fb := newTarget(t, d, 4, 4)
	d.BindFramebuffer(fb)
	d.Viewport(1, 2, 2, 1)
	draw(t, d, p)

	got := make([]byte, 4*4*4)
	require.NoError(t, d.ReadPixels(fb, driver.FullRect(4, 4), got))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := byte(0)
			if y == 2 && (x == 1 || x == 2) {
				want = 255
			}
			assert.Equal(t, want, got[(y*4+x)*4], "pixel %d,%d", x, y)
		}
	}
}

func TestDrawToSurface(t *testing.T) {
	d := New(Config{Width: 2, Height: 1})
	p := newProgram(t, d, testFragment, func(f *Fragment) [4]float32 {
		x, _ := f.Coord()
		return [4]float32{x / 2, 0, 0, 1}
	})
	d.BindFramebuffer(nil)
	d.Viewport(0, 0, 2, 1)
	draw(t, d, p)

	img := d.Surface()
	assert.Equal(t, uint8(64), img.Pix[0])
	assert.Equal(t, uint8(191), img.Pix[4])
}

func TestTexture2D(t *testing.T) {
	d := New(Config{})
	fs := "uniform sampler2D src;\nvoid main() { gl_FragColor = texture2D(src, vec2(0.0)); }"
	p := newProgram(t, d, fs, func(f *Fragment) [4]float32 {
		x, y := f.Normalized()
		return f.Texture2D("src", x, y)
	})
	src, err := d.NewTexture(driver.ComputeTextureDesc("src"))
	require.NoError(t, err)
	pixels := []byte{
		10, 0, 0, 255, 20, 0, 0, 255,
		30, 0, 0, 255, 40, 0, 0, 255,
	}
	require.NoError(t, src.Allocate(2, 2, pixels))
	_, fb := newTarget(t, d, 2, 2)

	d.UseProgram(p)
	loc, ok := p.Uniform("src")
	require.True(t, ok)
	d.BindTexture(3, src)
	d.Uniform1i(loc, 3)
	d.BindFramebuffer(fb)
	d.Viewport(0, 0, 2, 2)
	draw(t, d, p)

	got := make([]byte, 16)
	require.NoError(t, d.ReadPixels(fb, driver.FullRect(2, 2), got))
	assert.Equal(t, pixels, got)
}

func TestTexture2DUnboundIsBlack(t *testing.T) {
	d := New(Config{})
	fs := "uniform sampler2D src;\nvoid main() { gl_FragColor = texture2D(src, vec2(0.5)); }"
	p := newProgram(t, d, fs, func(f *Fragment) [4]float32 {
		return f.Texture2D("src", 0.5, 0.5)
	})
	_, fb := newTarget(t, d, 1, 1)
	d.BindFramebuffer(fb)
	d.Viewport(0, 0, 1, 1)
	draw(t, d, p)

	got := make([]byte, 4)
	require.NoError(t, d.ReadPixels(fb, driver.FullRect(1, 1), got))
	assert.Equal(t, []byte{0, 0, 0, 255}, got)
}

func TestSampleLinear(t *testing.T) {
	d := New(Config{})
	desc := driver.ComputeTextureDesc("linear")
	desc.MagFilter = gputypes.FilterModeLinear
	tex, err := d.NewTexture(desc)
	require.NoError(t, err)
	require.NoError(t, tex.Allocate(2, 1, []byte{0, 0, 0, 255, 255, 0, 0, 255}))

	c := sample(tex.(*texture), 0.5, 0.5)
	assert.InDelta(t, 0.5, c[0], 1e-6)
	c = sample(tex.(*texture), 0.25, 0.5)
	assert.InDelta(t, 0.0, c[0], 1e-6)
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		i, n int
		mode gputypes.AddressMode
		want int
	}{
		{"clamp low", -3, 4, gputypes.AddressModeClampToEdge, 0},
		{"clamp high", 9, 4, gputypes.AddressModeClampToEdge, 3},
		{"repeat", 5, 4, gputypes.AddressModeRepeat, 1},
		{"repeat negative", -1, 4, gputypes.AddressModeRepeat, 3},
		{"mirror", 4, 4, gputypes.AddressModeMirrorRepeat, 3},
		{"mirror far", 6, 4, gputypes.AddressModeMirrorRepeat, 1},
		{"mirror negative", -1, 4, gputypes.AddressModeMirrorRepeat, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrap(tt.i, tt.n, tt.mode))
		})
	}
}

func TestUnorm8(t *testing.T) {
	assert.Equal(t, byte(0), unorm8(-1))
	assert.Equal(t, byte(255), unorm8(2))
	assert.Equal(t, byte(128), unorm8(0.5))
	assert.Equal(t, byte(51), unorm8(0.2))
}

func TestTextureUploadAndRead(t *testing.T) {
	d := New(Config{})
	tex, fb := newTarget(t, d, 2, 2)
	require.NoError(t, tex.Upload(image.Rect(1, 1, 2, 2), []byte{1, 2, 3, 4}))

	got := make([]byte, 4)
	require.NoError(t, d.ReadPixels(fb, image.Rect(1, 1, 2, 2), got))
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	assert.Error(t, tex.Upload(image.Rect(1, 1, 3, 2), make([]byte, 8)), "region out of bounds")
	assert.Error(t, tex.Upload(image.Rect(0, 0, 2, 2), make([]byte, 4)), "short data")
	assert.Error(t, d.ReadPixels(fb, image.Rect(0, 0, 3, 1), make([]byte, 12)), "read out of bounds")
	assert.Error(t, d.ReadPixels(fb, image.Rect(0, 0, 2, 2), make([]byte, 4)), "short destination")
}

func TestTextureWithoutStorage(t *testing.T) {
	d := New(Config{})
	tex, err := d.NewTexture(driver.ComputeTextureDesc("empty"))
	require.NoError(t, err)
	assert.Error(t, tex.Upload(image.Rect(0, 0, 1, 1), make([]byte, 4)))

	fb, err := d.NewFramebuffer(tex)
	require.NoError(t, err)
	assert.Error(t, d.ReadPixels(fb, image.Rect(0, 0, 0, 0), nil))
}

func TestZeroSizeTexture(t *testing.T) {
	d := New(Config{})
	tex, fb := newTarget(t, d, 0, 0)
	assert.NoError(t, tex.Upload(image.Rectangle{}, nil))
	assert.NoError(t, d.ReadPixels(fb, image.Rectangle{}, nil))
}

func TestReleasedDevice(t *testing.T) {
	d := New(Config{})
	d.Release()
	_, err := d.NewTexture(driver.ComputeTextureDesc("x"))
	assert.ErrorIs(t, err, ErrReleased)
	_, err = d.NewShader(gputypes.ShaderStageVertex, testVertex)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestForeignObjects(t *testing.T) {
	a, b := New(Config{}), New(Config{})
	tex, err := a.NewTexture(driver.ComputeTextureDesc("a"))
	require.NoError(t, err)
	_, err = b.NewFramebuffer(tex)
	assert.ErrorIs(t, err, ErrForeignObject)
}

func TestRegistered(t *testing.T) {
	dev, err := driver.Open(driver.NameSoft, driver.Config{Width: 5, Height: 7})
	require.NoError(t, err)
	w, h := dev.SurfaceSize()
	assert.Equal(t, 5, w)
	assert.Equal(t, 7, h)
	assert.True(t, dev.Caps().BottomLeftOrigin)
}
