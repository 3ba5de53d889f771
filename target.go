package gpgpu

import (
	"fmt"

	"github.com/gogpu/gpgpu/driver"
)

type targetKind int

const (
	targetNone targetKind = iota
	targetCanvas
	targetTexture
	targetFresh
)

// Target selects where a kernel run draws.
type Target struct {
	kind targetKind
	tex  *Texture
}

// Canvas targets the visible surface.
func Canvas() Target { return Target{kind: targetCanvas} }

// To targets an existing texture.
func To(t *Texture) Target { return Target{kind: targetTexture, tex: t} }

// NewTarget targets a texture allocated, zero-filled, by each run and
// returned from Run. Its size must be given with a Rect.
func NewTarget() Target { return Target{kind: targetFresh} }

// Texture returns the target texture of a To target, or nil.
func (t Target) Texture() *Texture { return t.tex }

func (t Target) String() string {
	switch t.kind {
	case targetCanvas:
		return "canvas"
	case targetTexture:
		if t.tex == nil {
			return "texture <nil>"
		}
		return fmt.Sprintf("texture %dx%d", t.tex.width, t.tex.height)
	case targetFresh:
		return "new texture"
	}
	return "none"
}

// Rect is the output rectangle of a run, in target pixels. A zero Width or
// Height selects the target's own width or height.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Output selects the target and keeps the current rectangle.
func (k *Kernel) Output(t Target) error {
	return k.OutputTo(t, k.rect)
}

// OutputRect changes the rectangle and keeps the current target. Before a
// target is selected the rectangle is stored for the next Output.
func (k *Kernel) OutputRect(r Rect) error {
	if k.target.kind == targetNone {
		if err := k.usable(); err != nil {
			return err
		}
		if err := r.check(); err != nil {
			return err
		}
		k.rect = r
		return nil
	}
	return k.OutputTo(k.target, r)
}

func (r Rect) check() error {
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: rectangle %+v", ErrInvalidDimensions, r)
	}
	return nil
}

// OutputTo selects the target and the rectangle. An uninitialized target
// texture is zero-filled so that it can be drawn to.
func (k *Kernel) OutputTo(t Target, r Rect) error {
	if err := k.usable(); err != nil {
		return err
	}
	if err := r.check(); err != nil {
		return err
	}
	switch t.kind {
	case targetNone:
		return ErrNoTarget
	case targetTexture:
		if t.tex == nil {
			return fmt.Errorf("%w: nil texture", ErrNoTarget)
		}
		if t.tex.g != k.g {
			return ErrWrongContext
		}
		if t.tex.state == TextureReleased {
			return fmt.Errorf("%w: target texture", ErrReleased)
		}
		if t.tex.state == TextureUninitialized {
			if err := t.tex.Fill(0); err != nil {
				return err
			}
		}
	case targetFresh:
		if r.X != 0 || r.Y != 0 {
			return fmt.Errorf("%w: a new target has no offset, got %d,%d", ErrInvalidDimensions, r.X, r.Y)
		}
	}
	k.target, k.rect = t, r
	k.state = KernelConfigured
	return nil
}

// Target returns the selected target and rectangle.
func (k *Kernel) Target() (Target, Rect) { return k.target, k.rect }

// geometry is a resolved target.
type geometry struct {
	dst        *Texture
	fb         driver.Framebuffer
	x, y, w, h int
	fresh      bool
}

func (k *Kernel) resolve() (geometry, error) {
	r := k.rect
	geo := geometry{x: r.X, y: r.Y, w: r.Width, h: r.Height}
	natural := func(w, h int) {
		if geo.w == 0 {
			geo.w = w
		}
		if geo.h == 0 {
			geo.h = h
		}
	}
	switch k.target.kind {
	case targetCanvas:
		natural(k.g.CanvasSize())
	case targetTexture:
		t := k.target.tex
		if t.state == TextureReleased {
			return geometry{}, fmt.Errorf("%w: target texture", ErrReleased)
		}
		geo.dst, geo.fb = t, t.fb
		natural(t.width, t.height)
	case targetFresh:
		if geo.w == 0 || geo.h == 0 {
			return geometry{}, fmt.Errorf("%w: got %dx%d", ErrTargetDimensions, geo.w, geo.h)
		}
		if err := k.g.checkSize(geo.w, geo.h); err != nil {
			return geometry{}, err
		}
		geo.fresh = true
	default:
		return geometry{}, ErrNoTarget
	}
	return geo, nil
}
