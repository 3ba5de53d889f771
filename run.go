package gpgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Run draws the kernel over the output rectangle, invoking the fragment
// stage once per pixel. When the target is NewTarget, the freshly allocated
// texture is returned; otherwise the result is nil.
//
// All bindings and the target are checked before anything is sent to the
// device, so a failed Run leaves no partial output.
func (k *Kernel) Run() (*Texture, error) {
	if err := k.usable(); err != nil {
		return nil, err
	}
	if k.target.kind == targetNone {
		return nil, ErrNoTarget
	}
	geo, err := k.resolve()
	if err != nil {
		return nil, err
	}
	if err := k.checkBindings(geo.dst); err != nil {
		return nil, err
	}

	var out *Texture
	if geo.fresh {
		out, err = k.g.NewTexture(geo.w, geo.h)
		if err != nil {
			return nil, err
		}
		if err := out.Fill(0); err != nil {
			out.Release()
			return nil, err
		}
		geo.dst, geo.fb = out, out.fb
	}

	dev := k.g.dev
	dev.UseProgram(k.prog)
	dev.BindFramebuffer(geo.fb)
	for i, p := range k.params {
		if p.Kind != KindSampler2D {
			continue
		}
		t := k.bindings[i].tex
		dev.BindTexture(p.Unit, t.tex)
		dev.Uniform1i(p.loc, int32(p.Unit))
		if p.hasDims {
			dev.Uniform2f(p.dims, float32(t.width), float32(t.height))
		}
	}
	if k.hasOutDims {
		dev.Uniform2f(k.outDims, float32(geo.w), float32(geo.h))
	}
	dev.BindVertexBuffer(k.quad, k.attrib, 2)
	dev.Viewport(geo.x, geo.y, geo.w, geo.h)
	dev.DrawArrays(gputypes.PrimitiveTopologyTriangleStrip, 0, len(quadVertices)/2)

	k.g.stats.Runs++
	k.g.stats.Pixels += uint64(geo.w) * uint64(geo.h)
	Logger().Debug("gpgpu: run",
		"kernel", k.label, "target", k.target, "x", geo.x, "y", geo.y, "width", geo.w, "height", geo.h)
	return out, nil
}

// RunTo selects t as the output, keeping the current rectangle, and runs.
func (k *Kernel) RunTo(t Target) (*Texture, error) {
	if err := k.Output(t); err != nil {
		return nil, err
	}
	return k.Run()
}

// checkBindings reports the first parameter that prevents a run.
func (k *Kernel) checkBindings(dst *Texture) error {
	for i, p := range k.params {
		b := k.bindings[i]
		if p.Kind != KindSampler2D {
			if !b.set {
				return fmt.Errorf("%w: %q", ErrUnsetParam, p.Name)
			}
			continue
		}
		switch {
		case b.tex == nil:
			return fmt.Errorf("%w: %q", ErrUnboundSampler, p.Name)
		case b.tex.state == TextureReleased:
			return fmt.Errorf("%w: texture bound to %q", ErrReleased, p.Name)
		case dst != nil && b.tex == dst:
			return fmt.Errorf("%w: %q", ErrFeedbackLoop, p.Name)
		}
	}
	return nil
}
