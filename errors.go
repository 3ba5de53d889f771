package gpgpu

import (
	"errors"
	"fmt"
)

// Construction errors.
var (
	// ErrCompile wraps a *driver.ShaderError or *driver.LinkError.
	ErrCompile = errors.New("gpgpu: shader compilation failed")

	// ErrReservedName is returned for a uniform named "output".
	ErrReservedName = errors.New("gpgpu: reserved uniform name")

	// ErrUnsupportedType is returned for a uniform whose type is not float,
	// vec2, vec3, vec4 or sampler2D, for uniform arrays, and for uniform
	// lines that cannot be parsed.
	ErrUnsupportedType = errors.New("gpgpu: unsupported uniform type")

	// ErrDuplicateParam is returned when a uniform is declared twice.
	ErrDuplicateParam = errors.New("gpgpu: duplicate uniform declaration")

	// ErrUnusedParam is returned when the driver optimised a declared
	// uniform out of the program. See AllowUnusedParams.
	ErrUnusedParam = errors.New("gpgpu: declared uniform is not used by the shader")

	// ErrTooManySamplers is returned when a kernel declares more samplers
	// than the device has texture units.
	ErrTooManySamplers = errors.New("gpgpu: too many samplers")
)

// Configuration errors.
var (
	// ErrUnknownParam is returned when binding a name that is not in the
	// parameter table.
	ErrUnknownParam = errors.New("gpgpu: unknown parameter")

	// ErrTypeMismatch is matched by *ParamTypeError.
	ErrTypeMismatch = errors.New("gpgpu: parameter type mismatch")

	// ErrInvalidDimensions is returned for negative or oversized sizes and
	// rectangles.
	ErrInvalidDimensions = errors.New("gpgpu: invalid dimensions")

	// ErrTargetDimensions is returned at run when a fresh target has no
	// width or height.
	ErrTargetDimensions = errors.New("gpgpu: fresh target needs explicit width and height")

	// ErrNoTarget is returned when running a kernel without a target.
	ErrNoTarget = errors.New("gpgpu: no output target")

	// ErrUnsetParam is returned at run when a float or vector parameter was
	// never bound.
	ErrUnsetParam = errors.New("gpgpu: parameter not set")

	// ErrUnboundSampler is returned at run when a sampler has no texture.
	ErrUnboundSampler = errors.New("gpgpu: sampler has no texture")

	// ErrFeedbackLoop is returned at run when the target texture is also
	// bound as a sampler.
	ErrFeedbackLoop = errors.New("gpgpu: target texture is also a kernel input")

	// ErrWrongContext is returned when a texture created by one GPU is used
	// with another.
	ErrWrongContext = errors.New("gpgpu: texture belongs to another GPU")
)

// Data errors.
var (
	// ErrDataSize is returned when a pixel buffer has the wrong length.
	ErrDataSize = errors.New("gpgpu: wrong pixel buffer size")

	// ErrNotInitialized is returned when reading or partially writing a
	// texture that was never filled or uploaded.
	ErrNotInitialized = errors.New("gpgpu: texture not initialized")

	// ErrRegionBounds is returned for regions outside the texture.
	ErrRegionBounds = errors.New("gpgpu: region outside texture bounds")
)

// Lifecycle errors.
var (
	// ErrReleased is returned when using a released texture or kernel.
	ErrReleased = errors.New("gpgpu: released")

	// ErrClosed is returned when using a closed GPU.
	ErrClosed = errors.New("gpgpu: GPU closed")
)

// ParamTypeError reports a value of the wrong kind bound to a parameter.
type ParamTypeError struct {
	Name string
	Want ParamKind
	Got  ParamKind
}

func (e *ParamTypeError) Error() string {
	return fmt.Sprintf("gpgpu: parameter %q is %s, got %s", e.Name, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrTypeMismatch) report true.
func (e *ParamTypeError) Is(target error) bool { return target == ErrTypeMismatch }
