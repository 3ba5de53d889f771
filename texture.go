package gpgpu

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gpgpu/driver"
)

// TextureState is the lifecycle state of a Texture.
type TextureState int

const (
	// TextureUninitialized is a texture whose storage was never written.
	TextureUninitialized TextureState = iota

	// TextureInitialized is a texture with storage and a framebuffer.
	TextureInitialized

	// TextureReleased is a released texture.
	TextureReleased
)

func (s TextureState) String() string {
	switch s {
	case TextureUninitialized:
		return "uninitialized"
	case TextureInitialized:
		return "initialized"
	case TextureReleased:
		return "released"
	}
	return fmt.Sprintf("TextureState(%d)", int(s))
}

// Texture is a width x height grid of 8-bit RGBA texels on the device.
//
// Pixel data is exchanged as tightly packed rows, row 0 first. Row 0 is
// the row at y = 0 in the device's framebuffer coordinates, which is the
// bottom row on devices whose Caps report BottomLeftOrigin. The image
// helpers (UploadImage, Image) account for this.
//
// A texture is created uninitialized. The first Fill, FillColor or Upload
// allocates its storage and attaches a framebuffer so that it can be a
// kernel target and be read back.
type Texture struct {
	g      *GPU
	width  int
	height int
	state  TextureState
	tex    driver.Texture
	fb     driver.Framebuffer
}

// NewTexture creates an uninitialized width x height texture with nearest
// filtering and clamp-to-edge addressing. Zero sizes are allowed.
func (g *GPU) NewTexture(width, height int) (*Texture, error) {
	if g.closed {
		return nil, ErrClosed
	}
	if err := g.checkSize(width, height); err != nil {
		return nil, err
	}
	tex, err := g.dev.NewTexture(driver.ComputeTextureDesc(fmt.Sprintf("gpgpu %dx%d", width, height)))
	if err != nil {
		return nil, fmt.Errorf("gpgpu: create texture: %w", err)
	}
	t := &Texture{g: g, width: width, height: height, tex: tex}
	g.textures[t] = struct{}{}
	return t, nil
}

// Width returns the width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the height in texels.
func (t *Texture) Height() int { return t.height }

// Size returns the width and height.
func (t *Texture) Size() (width, height int) { return t.width, t.height }

// Bounds returns the rectangle covering the texture.
func (t *Texture) Bounds() image.Rectangle { return driver.FullRect(t.width, t.height) }

// State returns the lifecycle state.
func (t *Texture) State() TextureState { return t.state }

// IsInitialized reports whether the texture holds data.
func (t *Texture) IsInitialized() bool { return t.state == TextureInitialized }

// Fill sets every channel of every texel to v.
func (t *Texture) Fill(v byte) error {
	if err := t.usable(); err != nil {
		return err
	}
	var pixels []byte
	if v != 0 {
		pixels = make([]byte, t.byteLen())
		for i := range pixels {
			pixels[i] = v
		}
	}
	return t.define(pixels)
}

// FillColor sets every texel to c, converted to non-premultiplied RGBA.
func (t *Texture) FillColor(c color.Color) error {
	if err := t.usable(); err != nil {
		return err
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	pixels := make([]byte, t.byteLen())
	for i := 0; i < len(pixels); i += 4 {
		pixels[i+0] = n.R
		pixels[i+1] = n.G
		pixels[i+2] = n.B
		pixels[i+3] = n.A
	}
	return t.define(pixels)
}

// Upload replaces the whole texture. data must hold exactly
// Width*Height*4 bytes.
func (t *Texture) Upload(data []byte) error {
	if err := t.usable(); err != nil {
		return err
	}
	if len(data) != t.byteLen() {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d",
			ErrDataSize, len(data), t.byteLen(), t.width, t.height)
	}
	return t.define(data)
}

// UploadFunc fills the texture with fn(col, row) for every texel.
func (t *Texture) UploadFunc(fn func(col, row int) color.RGBA) error {
	if err := t.usable(); err != nil {
		return err
	}
	pixels := make([]byte, t.byteLen())
	i := 0
	for row := 0; row < t.height; row++ {
		for col := 0; col < t.width; col++ {
			c := fn(col, row)
			pixels[i+0], pixels[i+1], pixels[i+2], pixels[i+3] = c.R, c.G, c.B, c.A
			i += 4
		}
	}
	return t.define(pixels)
}

// UploadRegion replaces the texels in r. The texture must be initialized.
//
// The length of data is checked in bytes, not texels: a region of w×h
// texels needs at least w*h*4 bytes of RGBA data, otherwise ErrDataSize is
// returned. Bytes past that length are ignored, unlike Upload, which wants
// the exact size of the whole texture.
func (t *Texture) UploadRegion(r image.Rectangle, data []byte) error {
	if err := t.readable(); err != nil {
		return err
	}
	if err := t.checkRegion(r); err != nil {
		return err
	}
	n := r.Dx() * r.Dy() * 4
	if len(data) < n {
		return fmt.Errorf("%w: got %d bytes, want %d for %v", ErrDataSize, len(data), n, r)
	}
	if n == 0 {
		return nil
	}
	if err := t.tex.Upload(r, data[:n]); err != nil {
		return fmt.Errorf("gpgpu: upload region: %w", err)
	}
	t.g.stats.BytesUploaded += uint64(n)
	return nil
}

// Download reads the whole texture.
func (t *Texture) Download() ([]byte, error) {
	return t.DownloadRegion(t.Bounds())
}

// DownloadInto reads the whole texture into buf, which must hold at least
// Width*Height*4 bytes.
func (t *Texture) DownloadInto(buf []byte) error {
	return t.DownloadRegionInto(t.Bounds(), buf)
}

// DownloadRegion reads the texels in r.
func (t *Texture) DownloadRegion(r image.Rectangle) ([]byte, error) {
	if err := t.readable(); err != nil {
		return nil, err
	}
	if err := t.checkRegion(r); err != nil {
		return nil, err
	}
	buf := make([]byte, r.Dx()*r.Dy()*4)
	if err := t.DownloadRegionInto(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DownloadRegionInto reads the texels in r into buf, which must hold at
// least r.Dx()*r.Dy()*4 bytes.
func (t *Texture) DownloadRegionInto(r image.Rectangle, buf []byte) error {
	if err := t.readable(); err != nil {
		return err
	}
	if err := t.checkRegion(r); err != nil {
		return err
	}
	n := r.Dx() * r.Dy() * 4
	if len(buf) < n {
		return fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrDataSize, len(buf), n)
	}
	if n == 0 {
		return nil
	}
	if err := t.g.dev.ReadPixels(t.fb, r, buf[:n]); err != nil {
		return fmt.Errorf("gpgpu: read pixels: %w", err)
	}
	t.g.stats.BytesDownloaded += uint64(n)
	return nil
}

// Release frees the device storage. Release is idempotent.
func (t *Texture) Release() {
	if t.state == TextureReleased {
		return
	}
	if t.fb != nil {
		t.fb.Release()
		t.fb = nil
	}
	t.tex.Release()
	t.tex = nil
	t.state = TextureReleased
	delete(t.g.textures, t)
}

// define (re)allocates storage with pixels (nil for zeros) and attaches the
// framebuffer the first time.
func (t *Texture) define(pixels []byte) error {
	if err := t.tex.Allocate(t.width, t.height, pixels); err != nil {
		return fmt.Errorf("gpgpu: allocate texture: %w", err)
	}
	t.g.stats.BytesUploaded += uint64(len(pixels))
	if t.fb == nil {
		fb, err := t.g.dev.NewFramebuffer(t.tex)
		if err != nil {
			return fmt.Errorf("gpgpu: attach framebuffer: %w", err)
		}
		t.fb = fb
	}
	t.state = TextureInitialized
	return nil
}

func (t *Texture) usable() error {
	if t.state == TextureReleased {
		return ErrReleased
	}
	if t.g.closed {
		return ErrClosed
	}
	return nil
}

func (t *Texture) readable() error {
	if err := t.usable(); err != nil {
		return err
	}
	if t.state != TextureInitialized {
		return ErrNotInitialized
	}
	return nil
}

func (t *Texture) checkRegion(r image.Rectangle) error {
	if r.Dx() < 0 || r.Dy() < 0 || r.Min.X < 0 || r.Min.Y < 0 ||
		r.Max.X > t.width || r.Max.Y > t.height {
		return fmt.Errorf("%w: %v not within %dx%d", ErrRegionBounds, r, t.width, t.height)
	}
	return nil
}

func (t *Texture) byteLen() int { return t.width * t.height * 4 }
