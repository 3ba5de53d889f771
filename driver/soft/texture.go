package soft

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpgpu/driver"
)

// texture is a host-memory RGBA8 texture. Row 0 is the bottom row.
type texture struct {
	dev       *Device
	desc      driver.TextureDesc
	width     int
	height    int
	pix       []byte
	allocated bool
	released  bool
}

func (t *texture) Allocate(width, height int, pixels []byte) error {
	if t.released {
		return ErrReleased
	}
	if width < 0 || height < 0 || width > t.dev.caps.MaxTextureSize || height > t.dev.caps.MaxTextureSize {
		return fmt.Errorf("soft: invalid texture size %dx%d", width, height)
	}
	if pixels != nil && len(pixels) < width*height*4 {
		return fmt.Errorf("soft: %d bytes supplied for %dx%d texture", len(pixels), width, height)
	}
	t.define(width, height, pixels)
	return nil
}

func (t *texture) define(width, height int, pixels []byte) {
	t.width, t.height = width, height
	t.pix = make([]byte, width*height*4)
	if pixels != nil {
		copy(t.pix, pixels)
	}
	t.allocated = true
}

func (t *texture) Upload(r image.Rectangle, pixels []byte) error {
	if t.released {
		return ErrReleased
	}
	if !t.allocated {
		return errors.New("soft: upload to texture without storage")
	}
	if !r.In(t.bounds()) {
		return fmt.Errorf("soft: upload rectangle %v outside %v", r, t.bounds())
	}
	row := r.Dx() * 4
	if len(pixels) < row*r.Dy() {
		return fmt.Errorf("soft: %d bytes supplied for %v", len(pixels), r)
	}
	for y := 0; y < r.Dy(); y++ {
		off := t.offset(r.Min.X, r.Min.Y+y)
		copy(t.pix[off:off+row], pixels[y*row:(y+1)*row])
	}
	return nil
}

func (t *texture) Release() {
	for i, u := range t.dev.units {
		if u == t {
			t.dev.units[i] = nil
		}
	}
	t.released = true
	t.pix = nil
}

func (t *texture) bounds() image.Rectangle {
	return image.Rect(0, 0, t.width, t.height)
}

func (t *texture) offset(x, y int) int {
	return (y*t.width + x) * 4
}
