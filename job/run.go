package job

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/driver"
	"github.com/gogpu/gpgpu/driver/soft"
	"github.com/gogpu/gpgpu/kernels"
)

// Open opens the GPU the job asks for. opts are applied after the job's own.
func Open(j *Job, opts ...gpgpu.Option) (*gpgpu.GPU, error) {
	return gpgpu.Open(j.Driver, append(j.Options(), opts...)...)
}

// Run executes j on g and returns the result. When j.Output.Image is set the
// result is also saved there.
//
// On the soft driver the builtin kernels are installed first; a shader file
// has no CPU implementation there and fails to compile.
func Run(g *gpgpu.GPU, j *Job) (*image.RGBA, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	src, label, err := j.source()
	if err != nil {
		return nil, err
	}
	if sd := softDevice(g.Device()); sd != nil {
		kernels.Install(sd)
	}

	k, err := g.NewKernel(src, gpgpu.WithLabel(label))
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", label, err)
	}
	defer k.Release()

	images := make([]image.Image, len(j.Inputs))
	for i, in := range j.Inputs {
		img, err := imaging.Open(j.resolve(in.Image), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Param, err)
		}
		images[i] = img
	}
	w, h := j.outputSize(g, images)

	var textures []*gpgpu.Texture
	defer func() {
		for _, t := range textures {
			t.Release()
		}
	}()
	for i, in := range j.Inputs {
		img := images[i]
		if in.Fit && (img.Bounds().Dx() != w || img.Bounds().Dy() != h) {
			img = gpgpu.ScaleImage(img, w, h)
		}
		tex, err := g.NewTextureFromImage(img)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Param, err)
		}
		textures = append(textures, tex)
		if err := k.Bind(in.Param, tex); err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Param, err)
		}
	}

	names := make([]string, 0, len(j.Params))
	for name := range j.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v, err := toValue(j.Params[name])
		if err != nil {
			return nil, fmt.Errorf("%w: params: %q: %v", ErrInvalid, name, err)
		}
		if err := k.Bind(name, v); err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
	}

	var img *image.RGBA
	if j.Output.Target == TargetCanvas {
		if err := k.OutputTo(gpgpu.Canvas(), gpgpu.Rect{Width: w, Height: h}); err != nil {
			return nil, err
		}
		if _, err := k.Run(); err != nil {
			return nil, err
		}
		if img, err = g.CanvasImage(); err != nil {
			return nil, err
		}
	} else {
		if err := k.OutputTo(gpgpu.NewTarget(), gpgpu.Rect{Width: w, Height: h}); err != nil {
			return nil, err
		}
		out, err := k.Run()
		if err != nil {
			return nil, err
		}
		defer out.Release()
		if img, err = out.Image(); err != nil {
			return nil, err
		}
	}

	if j.Output.Image != "" {
		path := j.resolve(j.Output.Image)
		if err := imaging.Save(img, path); err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
		gpgpu.Logger().Info("job: saved", "kernel", label, "path", path,
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	}
	return img, nil
}

// source returns the fragment shader and a label for it.
func (j *Job) source() (src, label string, err error) {
	if j.Kernel.Builtin != "" {
		k, ok := kernels.Lookup(j.Kernel.Builtin)
		if !ok {
			return "", "", fmt.Errorf("%w: unknown builtin %q", ErrInvalid, j.Kernel.Builtin)
		}
		return k.Source, k.Name, nil
	}
	path := j.resolve(j.Kernel.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("kernel: %w", err)
	}
	return string(data), filepath.Base(path), nil
}

// outputSize fills the unset output dimensions from the canvas or the
// first input.
func (j *Job) outputSize(g *gpgpu.GPU, images []image.Image) (w, h int) {
	w, h = j.Output.Width, j.Output.Height
	if w > 0 && h > 0 {
		return w, h
	}
	var nw, nh int
	switch {
	case j.Output.Target == TargetCanvas:
		nw, nh = g.CanvasSize()
	case len(images) > 0:
		b := images[0].Bounds()
		nw, nh = b.Dx(), b.Dy()
	}
	if w == 0 {
		w = nw
	}
	if h == 0 {
		h = nh
	}
	return w, h
}

// softDevice finds a soft device behind dev and any wrappers around it.
func softDevice(dev driver.Device) *soft.Device {
	for dev != nil {
		switch d := dev.(type) {
		case *soft.Device:
			return d
		case interface{ Unwrap() driver.Device }:
			dev = d.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
