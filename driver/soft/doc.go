// Package soft provides a CPU implementation of the driver.Device contract.
//
// Textures and the surface live in host memory. Draws are rasterised at
// pixel centres over the intersection of the viewport and the bound
// framebuffer. There is no shading-language compiler: the vertex stage is a
// pass-through of the position attribute, and a fragment shader resolves to
// a Go function registered for its source text with RegisterFragment.
//
// Importing the package registers the driver under driver.NameSoft:
//
//	import _ "github.com/gogpu/gpgpu/driver/soft"
//
// Shader sources are still checked. A source without an entry point or with
// unbalanced braces fails to compile with a *driver.ShaderError, and a
// uniform declared in both stages with different types fails to link with a
// *driver.LinkError.
//
// A GLSL compiler gives no location to uniforms that do not affect the
// output. The soft driver approximates that: at link time it calls the
// fragment function once with every input reading as zero, and a fragment
// uniform is active only if the function read it through Fragment's
// accessors. Vertex uniforms are active when the vertex body refers to them.
package soft
