// Package job describes a kernel run declaratively, in a TOML or YAML file.
//
// A job names a kernel (a builtin from package kernels or a fragment shader
// file), the images bound to its sampler parameters, the values of its other
// parameters and where the result goes:
//
//	driver = "soft"
//
//	[kernel]
//	builtin = "threshold"
//
//	[[inputs]]
//	param = "src"
//	image = "photo.png"
//
//	[params]
//	level = 0.4
//
//	[output]
//	image = "mask.png"
//
// Relative paths are resolved against the directory of the job file.
package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/kernels"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Errors returned by Load, Parse and Validate.
var (
	// ErrFormat is returned for a job file in an unknown format.
	ErrFormat = errors.New("job: unknown format")

	// ErrInvalid is returned for a job that cannot be run.
	ErrInvalid = errors.New("job: invalid job")
)

// Format is the encoding of a job file.
type Format string

// Supported formats.
const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

// Output targets.
const (
	TargetTexture = "texture"
	TargetCanvas  = "canvas"
)

// Job is one kernel run.
type Job struct {
	// Driver is the driver name; empty selects the best available one.
	Driver string `toml:"driver" yaml:"driver"`

	// Canvas is the size of the visible surface. Zero keeps the driver
	// default.
	Canvas Size `toml:"canvas" yaml:"canvas"`

	Kernel Kernel  `toml:"kernel" yaml:"kernel"`
	Inputs []Input `toml:"inputs" yaml:"inputs"`

	// Params maps parameter names to a number or a list of two to four
	// numbers.
	Params map[string]any `toml:"params" yaml:"params"`

	Output Output `toml:"output" yaml:"output"`

	path string
	dir  string
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`
}

// Kernel selects the shader. Exactly one field must be set.
type Kernel struct {
	Builtin string `toml:"builtin" yaml:"builtin"`
	Path    string `toml:"path" yaml:"path"`
}

// Input binds an image to a sampler parameter.
type Input struct {
	Param string `toml:"param" yaml:"param"`
	Image string `toml:"image" yaml:"image"`

	// Fit scales the image to the output size before upload.
	Fit bool `toml:"fit" yaml:"fit"`
}

// Output describes the target of the run.
type Output struct {
	// Target is "texture" (default) or "canvas".
	Target string `toml:"target" yaml:"target"`

	// Width and Height give the output size. Zero takes the size of the
	// canvas, or for a texture target the size of the first input.
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`

	// Image is the file the result is saved to; the extension selects the
	// encoding. Empty skips saving.
	Image string `toml:"image" yaml:"image"`
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrFormat, path)
}

// Load reads and validates the job file at path.
func Load(path string) (*Job, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	j, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	j.path = path
	j.dir = filepath.Dir(path)
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return j, nil
}

// Parse decodes a job. Unknown keys are an error. The job is not validated.
func Parse(data []byte, format Format) (*Job, error) {
	var j Job
	switch format {
	case TOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&j); err != nil {
			return nil, fmt.Errorf("job: decode toml: %w", err)
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&j); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("job: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, format)
	}
	return &j, nil
}

// Validate checks the job for errors that can be found without a GPU.
func (j *Job) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	switch {
	case j.Kernel.Builtin == "" && j.Kernel.Path == "":
		return invalid("kernel: one of builtin or path is required")
	case j.Kernel.Builtin != "" && j.Kernel.Path != "":
		return invalid("kernel: builtin and path are exclusive")
	case j.Kernel.Builtin != "":
		if _, ok := kernels.Lookup(j.Kernel.Builtin); !ok {
			return invalid("kernel: unknown builtin %q (have %s)",
				j.Kernel.Builtin, strings.Join(kernels.Names(), ", "))
		}
	}

	if j.Canvas.Width < 0 || j.Canvas.Height < 0 {
		return invalid("canvas: negative size %dx%d", j.Canvas.Width, j.Canvas.Height)
	}

	seen := make(map[string]bool)
	for i, in := range j.Inputs {
		switch {
		case in.Param == "":
			return invalid("inputs[%d]: param is required", i)
		case in.Image == "":
			return invalid("inputs[%d]: image is required", i)
		case seen[in.Param]:
			return invalid("inputs[%d]: param %q bound twice", i, in.Param)
		}
		seen[in.Param] = true
	}
	for name, v := range j.Params {
		if seen[name] {
			return invalid("params: %q is also an input", name)
		}
		if _, err := toValue(v); err != nil {
			return invalid("params: %q: %v", name, err)
		}
	}

	o := j.Output
	switch o.Target {
	case "", TargetTexture:
		if (o.Width == 0 || o.Height == 0) && len(j.Inputs) == 0 {
			return invalid("output: a texture target needs a size or an input")
		}
	case TargetCanvas:
	default:
		return invalid("output: unknown target %q", o.Target)
	}
	if o.Width < 0 || o.Height < 0 {
		return invalid("output: negative size %dx%d", o.Width, o.Height)
	}
	return nil
}

// Path returns the file the job was loaded from, or "".
func (j *Job) Path() string { return j.path }

// Files returns the files the job reads: the job file, the shader and the
// input images.
func (j *Job) Files() []string {
	var files []string
	if j.path != "" {
		files = append(files, j.path)
	}
	if j.Kernel.Path != "" {
		files = append(files, j.resolve(j.Kernel.Path))
	}
	for _, in := range j.Inputs {
		files = append(files, j.resolve(in.Image))
	}
	return files
}

// Options returns the gpgpu options for opening the job's GPU.
func (j *Job) Options() []gpgpu.Option {
	var opts []gpgpu.Option
	if j.Canvas.Width > 0 && j.Canvas.Height > 0 {
		opts = append(opts, gpgpu.WithCanvasSize(j.Canvas.Width, j.Canvas.Height))
	}
	return opts
}

func (j *Job) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || j.dir == "" {
		return path
	}
	return filepath.Join(j.dir, path)
}

// toValue converts a decoded parameter to a kernel value.
func toValue(v any) (gpgpu.Value, error) {
	if list, ok := v.([]any); ok {
		fs := make([]float32, len(list))
		for i, e := range list {
			f, err := toFloat(e)
			if err != nil {
				return nil, err
			}
			fs[i] = f
		}
		return gpgpu.Floats(fs...)
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return gpgpu.Float(f), nil
}

func toFloat(v any) (float32, error) {
	switch v := v.(type) {
	case float64:
		return float32(v), nil
	case float32:
		return v, nil
	case int:
		return float32(v), nil
	case int64:
		return float32(v), nil
	case uint64:
		return float32(v), nil
	}
	return 0, fmt.Errorf("not a number: %v (%T)", v, v)
}
