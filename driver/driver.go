// Package driver defines the contract between gpgpu and a graphics API.
//
// The contract is shaped after the OpenGL ES 2.0 / WebGL 1 model that a
// fragment-shader compute layer needs: 2-D RGBA8 textures, framebuffers with
// a single colour attachment, shader stages compiled from source text,
// linked programs with named uniforms, one vertex buffer, a viewport and a
// triangle-strip draw, and synchronous pixel readback.
//
// A Device is bound to a single thread of execution. Implementations keep
// the bind-then-operate model of the underlying API, but every method that
// needs an object bound takes it explicitly and binds it itself, so callers
// never rely on state left behind by an earlier call.
package driver

import (
	"errors"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// ErrNotAvailable is returned when a requested device cannot be created,
// e.g. the driver is not compiled in or no graphics context can be opened.
var ErrNotAvailable = errors.New("driver: not available")

// Device is a graphics context.
type Device interface {
	// Info describes the adapter behind the device.
	Info() gpucontext.AdapterInfo

	// Caps reports device limits.
	Caps() Caps

	// SurfaceSize returns the size of the visible drawing surface.
	SurfaceSize() (width, height int)

	// NewTexture creates a texture object with the sampling parameters of
	// desc. Storage is not allocated until Texture.Allocate.
	NewTexture(desc TextureDesc) (Texture, error)

	// NewFramebuffer creates a framebuffer with t as its colour attachment.
	NewFramebuffer(t Texture) (Framebuffer, error)

	// NewShader compiles one shader stage. Compile failures are reported as
	// *ShaderError.
	NewShader(stage gputypes.ShaderStage, src string) (Shader, error)

	// NewProgram links a vertex and a fragment shader. Link failures are
	// reported as *LinkError.
	NewProgram(vs, fs Shader) (Program, error)

	// NewVertexBuffer creates a static vertex buffer holding data.
	NewVertexBuffer(data []float32) (Buffer, error)

	// UseProgram makes p the current program for uniform updates and draws.
	UseProgram(p Program)

	// BindFramebuffer selects the draw destination. nil selects the surface.
	BindFramebuffer(fb Framebuffer)

	// BindTexture binds t to the given texture unit.
	BindTexture(unit int, t Texture)

	// BindVertexBuffer feeds b to the vertex attribute at index attrib,
	// reading components floats per vertex.
	BindVertexBuffer(b Buffer, attrib, components int)

	// Uniform1i sets an integer (sampler) uniform of the current program.
	Uniform1i(loc UniformLocation, v int32)

	// Uniform1f through Uniform4f set float uniforms of the current program.
	Uniform1f(loc UniformLocation, x float32)
	Uniform2f(loc UniformLocation, x, y float32)
	Uniform3f(loc UniformLocation, x, y, z float32)
	Uniform4f(loc UniformLocation, x, y, z, w float32)

	// Viewport sets the rectangle that clip space is mapped to.
	Viewport(x, y, width, height int)

	// DrawArrays draws count vertices starting at first.
	DrawArrays(mode gputypes.PrimitiveTopology, first, count int)

	// ReadPixels copies r from fb (nil for the surface) into dst as tightly
	// packed 8-bit RGBA rows, row 0 being r.Min.Y.
	ReadPixels(fb Framebuffer, r image.Rectangle, dst []byte) error

	// Release destroys the context. Objects created from it become invalid.
	Release()
}

// Caps describes device limits.
type Caps struct {
	// MaxTextureSize is the largest supported texture width or height.
	MaxTextureSize int

	// MaxTextureUnits is the number of texture units a fragment shader can
	// sample from.
	MaxTextureUnits int

	// BottomLeftOrigin is true when row 0 of a texture or framebuffer is the
	// bottom row of the picture, as in OpenGL.
	BottomLeftOrigin bool
}

// TextureDesc describes a texture object.
type TextureDesc struct {
	Format    gputypes.TextureFormat
	MinFilter gputypes.FilterMode
	MagFilter gputypes.FilterMode
	AddressU  gputypes.AddressMode
	AddressV  gputypes.AddressMode
	Label     string
}

// ComputeTextureDesc returns the descriptor used for compute textures:
// RGBA8, nearest filtering and clamp-to-edge addressing, so that every texel
// is addressed exactly and nothing bleeds in at the edges.
func ComputeTextureDesc(label string) TextureDesc {
	return TextureDesc{
		Format:    gputypes.TextureFormatRGBA8Unorm,
		MinFilter: gputypes.FilterModeNearest,
		MagFilter: gputypes.FilterModeNearest,
		AddressU:  gputypes.AddressModeClampToEdge,
		AddressV:  gputypes.AddressModeClampToEdge,
		Label:     label,
	}
}

// Texture is a 2-D RGBA8 texture.
type Texture interface {
	// Allocate (re)defines the storage as width x height. pixels holds
	// width*height*4 bytes, or is nil to allocate zeroed storage.
	Allocate(width, height int, pixels []byte) error

	// Upload replaces the texels in r with pixels.
	Upload(r image.Rectangle, pixels []byte) error

	Release()
}

// Framebuffer is an off-surface render destination.
type Framebuffer interface {
	Release()
}

// Shader is a compiled shader stage.
type Shader interface {
	Release()
}

// Buffer is a vertex buffer.
type Buffer interface {
	Release()
}

// UniformLocation identifies a uniform within a program. Its dynamic type is
// driver specific.
type UniformLocation any

// Program is a linked shader program.
type Program interface {
	// Uniform returns the location of the named uniform. ok is false when the
	// uniform does not exist or is not used by the program.
	Uniform(name string) (loc UniformLocation, ok bool)

	// Attrib returns the index of the named vertex attribute.
	Attrib(name string) (index int, ok bool)

	Release()
}

// FullRect returns the rectangle covering a width x height image.
func FullRect(width, height int) image.Rectangle {
	return image.Rect(0, 0, width, height)
}
