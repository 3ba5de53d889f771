// Package gles implements the driver contract on OpenGL ES 2.0.
//
// The context comes from a hidden glfw window created through EGL, and GL
// calls go through go-gl's gles2 bindings. The implementation needs cgo and
// is only compiled with the gles build tag:
//
//	go build -tags gles ./...
//
// Without the tag the package is empty and importing it has no effect, so
// programs can import it unconditionally:
//
//	import _ "github.com/gogpu/gpgpu/driver/gles"
//
// When compiled in, the driver registers itself under driver.NameGLES. GL
// contexts are bound to the OS thread that created them: open the device
// and make every call from a goroutine locked with runtime.LockOSThread,
// usually the main goroutine.
package gles
