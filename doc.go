// Package gpgpu runs fragment shaders as elementwise compute kernels.
//
// # Overview
//
// A kernel is a fragment shader drawn once over a full-screen quad. The
// shader's uniforms are its typed parameters, textures are its inputs, and
// the pixels it writes are its output. gpgpu scans the declared uniforms
// into a parameter table, checks that every parameter is bound before a
// run, manages texture storage and framebuffers, and reads results back.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpgpu"
//	    _ "github.com/gogpu/gpgpu/driver/soft"
//	)
//
//	g, err := gpgpu.Open("")
//	defer g.Close()
//
//	src, _ := g.NewTexture(4, 4)
//	src.Upload(pixels)
//
//	k, err := g.NewKernel(`precision mediump float;
//	uniform sampler2D src;
//	varying float glu_x_normalized;
//	varying float glu_y_normalized;
//	void main() {
//	  gl_FragColor = texture2D(src, vec2(glu_x_normalized, glu_y_normalized));
//	}`)
//	k.Bind("src", src)
//	k.OutputTo(gpgpu.NewTarget(), gpgpu.Rect{Width: 4, Height: 4})
//	out, err := k.Run()
//	data, err := out.Download()
//
// # Parameters
//
// Uniforms are recognised on lines of the form
//
//	uniform [lowp|mediump|highp] <type> <name>;
//
// before the first line starting with "void". The types float, vec2, vec3,
// vec4 and sampler2D are supported. The name "output" is reserved, and
// names starting with "glu_" are supplied by the runtime:
//
//	glu_x, glu_y, glu_x_normalized, glu_y_normalized  varyings, see VertexSource
//	glu_output_dimensions                             output rectangle size
//	glu_<sampler>_dimensions                          size of a sampler's texture
//
// A declared uniform that the shader never reads is optimised out by the
// driver; NewKernel reports it as ErrUnusedParam unless AllowUnusedParams
// is given.
//
// # Drivers
//
// The GPU is reached through the driver package. Drivers register
// themselves when imported: driver/gles (OpenGL ES 2.0, build tag gles),
// driver/webgl (js/wasm) and driver/soft, a CPU implementation used by the
// tests. driver/trace wraps any device to log and count its calls.
//
// # Coordinate System
//
// Pixel data is exchanged as rows starting at y = 0 of the framebuffer.
// On OpenGL style devices (Caps.BottomLeftOrigin) that is the bottom row.
// UploadImage and Image convert between that layout and image.Image.
//
// # Concurrency
//
// A GPU and everything created from it must be used from one goroutine.
// OpenGL drivers also require that goroutine to stay on the OS thread that
// opened the device (see runtime.LockOSThread).
package gpgpu
