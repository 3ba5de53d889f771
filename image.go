package gpgpu

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// NewTextureFromImage creates a texture the size of img and uploads it.
func (g *GPU) NewTextureFromImage(img image.Image) (*Texture, error) {
	b := img.Bounds()
	t, err := g.NewTexture(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	if err := t.UploadImage(img); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// UploadImage replaces the texture with img, whose size must match the
// texture. The image's top row lands at the top of the texture.
func (t *Texture) UploadImage(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != t.width || b.Dy() != t.height {
		return fmt.Errorf("%w: image is %dx%d, texture is %dx%d",
			ErrInvalidDimensions, b.Dx(), b.Dy(), t.width, t.height)
	}
	nrgba := image.NewNRGBA(t.Bounds())
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	if t.g.caps.BottomLeftOrigin {
		flipRows(nrgba.Pix, t.width*4)
	}
	return t.Upload(nrgba.Pix)
}

// Image reads the texture back as an image with its top row first.
func (t *Texture) Image() (*image.RGBA, error) {
	pix, err := t.Download()
	if err != nil {
		return nil, err
	}
	return t.g.toImage(pix, t.width, t.height), nil
}

// CanvasImage reads the visible surface back as an image.
func (g *GPU) CanvasImage() (*image.RGBA, error) {
	pix, err := g.DownloadCanvas()
	if err != nil {
		return nil, err
	}
	w, h := g.CanvasSize()
	return g.toImage(pix, w, h), nil
}

// ScaleImage resamples img to width x height with Catmull-Rom filtering.
// It is used to fit kernel inputs to an output size.
func ScaleImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// toImage wraps texel rows as an image. Texels are straight alpha, which
// matches image.NRGBA; the result is converted to premultiplied RGBA.
func (g *GPU) toImage(pix []byte, w, h int) *image.RGBA {
	if g.caps.BottomLeftOrigin {
		flipRows(pix, w*4)
	}
	src := &image.NRGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	dst := image.NewRGBA(src.Rect)
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
	return dst
}

func flipRows(pix []byte, stride int) {
	if stride == 0 {
		return
	}
	tmp := make([]byte, stride)
	for top, bot := 0, len(pix)/stride-1; top < bot; top, bot = top+1, bot-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bot*stride : (bot+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
